package admintools

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/export"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/parsing"
	"github.com/thetakeaway/takeaway/src/tkdata"
	"github.com/thetakeaway/takeaway/src/website"
)

const excerptLength = 48

func init() {
	digestsCommand := &cobra.Command{
		Use:   "digests",
		Short: "Inspect digests",
	}
	website.WebsiteCommand.AddCommand(digestsCommand)

	var q tkdata.DigestsQuery
	var sort string
	listCommand := &cobra.Command{
		Use:   "list",
		Short: "List digests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Sort = tkdata.DigestSort(sort)
			if q.Sort != "" && !q.Sort.Valid() {
				return fmt.Errorf("unknown sort %q", sort)
			}

			ctx := context.Background()
			conn, err := db.NewConnPool()
			if err != nil {
				return err
			}
			defer conn.Close()

			digests, err := tkdata.FetchDigests(ctx, conn, q)
			if err != nil {
				return err
			}
			if len(digests) == 0 {
				fmt.Println("No digests.")
				return nil
			}
			fmt.Println(digestsTable(digests))
			return nil
		},
	}
	listCommand.Flags().StringVarP(&q.Search, "search", "q", "", "Only digests whose title or description contains this")
	listCommand.Flags().BoolVar(&q.FeaturedOnly, "featured", false, "Only featured digests")
	listCommand.Flags().StringVar(&sort, "sort", string(tkdata.SortDateDesc), "date-desc, date-asc, clarity-desc, or clarity-asc")
	listCommand.Flags().IntVarP(&q.Limit, "limit", "n", 20, "How many digests to show")
	digestsCommand.AddCommand(listCommand)

	var outPath string
	exportCommand := &cobra.Command{
		Use:   "export <digest id>",
		Short: "Print a digest as Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%q is not a digest id", args[0])
			}

			ctx := context.Background()
			conn, err := db.NewConnPool()
			if err != nil {
				return err
			}
			defer conn.Close()

			digest, err := tkdata.FetchDigest(ctx, conn, id)
			if err != nil {
				return err
			}
			markdown, err := export.Markdown(digest)
			if err != nil {
				return err
			}

			if outPath == "" {
				fmt.Print(markdown)
				return nil
			}
			if err := os.WriteFile(outPath, []byte(markdown), 0644); err != nil {
				return oops.New(err, "failed to write export")
			}
			fmt.Printf("Wrote %s\n", outPath)
			return nil
		},
	}
	exportCommand.Flags().StringVarP(&outPath, "out", "o", "", "Write to this file instead of stdout")
	digestsCommand.AddCommand(exportCommand)
}

func digestsTable(digests []*tkdata.DigestWithIdeas) string {
	rows := make([][]string, 0, len(digests))
	for _, d := range digests {
		featured := ""
		if d.Digest.Featured {
			featured = "★"
		}
		description := ""
		if d.Digest.Description != nil {
			description = parsing.Excerpt(*d.Digest.Description, excerptLength)
		}
		rows = append(rows, []string{
			d.Digest.PublishedDate.Format("2006-01-02"),
			d.Digest.Title,
			description,
			strconv.Itoa(len(d.Ideas)),
			averageClarity(d),
			featured,
			d.Digest.ID.String(),
		})
	}
	return renderTable(
		[]string{"Published", "Title", "Description", "Ideas", "Clarity", "Featured", "ID"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func averageClarity(d *tkdata.DigestWithIdeas) string {
	if len(d.Ideas) == 0 {
		return "-"
	}
	total := 0
	for _, idea := range d.Ideas {
		if idea.Idea.ClarityScore != nil {
			total += *idea.Idea.ClarityScore
		}
	}
	return strconv.FormatFloat(float64(total)/float64(len(d.Ideas)), 'f', 1, 64)
}
