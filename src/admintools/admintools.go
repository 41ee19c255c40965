package admintools

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/thetakeaway/takeaway/src/auth"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/feeds"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/tkdata"
	"github.com/thetakeaway/takeaway/src/website"
	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultCategories []byte

func init() {
	adminCommand := &cobra.Command{
		Use:   "admin",
		Short: "Miscellaneous admin commands",
	}
	website.WebsiteCommand.AddCommand(adminCommand)

	hashTokenCommand := &cobra.Command{
		Use:   "hashtoken [token]",
		Short: "Hash an admin API token for the admin.tokenhash config value",
		Long:  "Hashes the given token. With no token, generates a new random one and prints it along with its hash.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) > 0 {
				token = args[0]
			} else {
				token = auth.GenerateToken()
				fmt.Printf("Token: %s\n", token)
			}

			hashed, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Printf("Hash:  %s\n", hashed.String())
			return nil
		},
	}
	adminCommand.AddCommand(hashTokenCommand)

	syncCategoriesCommand := &cobra.Command{
		Use:   "synccategories [file.yaml]",
		Short: "Create or update categories from a YAML list",
		Long:  "Creates or updates categories by slug. With no file, syncs the categories the extraction prompt uses.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := defaultCategories
			if len(args) > 0 {
				var err error
				source, err = os.ReadFile(args[0])
				if err != nil {
					return oops.New(err, "failed to read categories file")
				}
			}

			inputs, err := ParseCategories(source)
			if err != nil {
				return err
			}

			ctx := context.Background()
			conn, err := db.NewConnPool()
			if err != nil {
				return err
			}
			defer conn.Close()

			categories, err := tkdata.SyncCategories(ctx, conn, inputs)
			if err != nil {
				return err
			}
			for _, c := range categories {
				fmt.Printf("%s (%s)\n", c.Name, c.Slug)
			}
			fmt.Printf("Synced %d categories\n", len(categories))
			return nil
		},
	}
	adminCommand.AddCommand(syncCategoriesCommand)

	importFeedCommand := &cobra.Command{
		Use:   "importfeed <feed url>",
		Short: "Add a podcast from its RSS or Atom feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			feed, err := feeds.NewFetcher(nil).Fetch(ctx, args[0])
			if err != nil {
				return err
			}

			conn, err := db.NewConnPool()
			if err != nil {
				return err
			}
			defer conn.Close()

			podcast, err := tkdata.FindOrCreatePodcast(ctx, conn, feed.PodcastInput())
			if err != nil {
				return err
			}
			printPodcast(os.Stdout, podcast.ID.String(), feed)
			return nil
		},
	}
	adminCommand.AddCommand(importFeedCommand)
}

func ParseCategories(source []byte) ([]tkdata.CategoryInput, error) {
	var inputs []tkdata.CategoryInput
	if err := yaml.Unmarshal(source, &inputs); err != nil {
		return nil, oops.New(err, "categories file is not a valid YAML list")
	}
	if len(inputs) == 0 {
		return nil, oops.New(nil, "categories file has no categories")
	}
	for i, input := range inputs {
		if input.Name == "" {
			return nil, oops.New(nil, "category %d has no name", i+1)
		}
	}
	return inputs, nil
}

func printPodcast(w io.Writer, id string, feed *feeds.PodcastFeed) {
	fmt.Fprintf(w, "Podcast:  %s\n", feed.Name)
	fmt.Fprintf(w, "ID:       %s\n", id)
	if feed.Host != "" {
		fmt.Fprintf(w, "Host:     %s\n", feed.Host)
	}
	if feed.Url != "" {
		fmt.Fprintf(w, "Url:      %s\n", feed.Url)
	}
	fmt.Fprintf(w, "Episodes: %d\n", len(feed.Episodes))
}
