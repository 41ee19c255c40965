package admintools

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/thetakeaway/takeaway/src/config"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/ingest"
	"github.com/thetakeaway/takeaway/src/llm"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/progress"
	"github.com/thetakeaway/takeaway/src/transcript"
	"github.com/thetakeaway/takeaway/src/website"
)

// Prints progress events as they happen, in place of a browser subscriber.
type progressPrinter struct {
	out io.Writer
}

func (p progressPrinter) Emit(jobID string, ev progress.Event) bool {
	fmt.Fprintf(p.out, "[%3d%%] %s\n", ev.Progress, ev.Message)
	return true
}

func init() {
	var req ingest.Request
	ingestCommand := &cobra.Command{
		Use:   "ingest [transcript file]",
		Short: "Turn a transcript into a digest",
		Long:  "Runs a transcript through the same pipeline as the API. Reads the transcript from a file, from stdin if the file is -, or from --url.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				text, err := readTranscript(args[0])
				if err != nil {
					return err
				}
				req.Transcript = text
			} else if req.TranscriptURL == "" {
				return fmt.Errorf("give a transcript file or --url")
			}
			req.JobID = uuid.NewString()

			ctx := context.Background()
			conn, err := db.NewConnPool()
			if err != nil {
				return err
			}
			defer conn.Close()

			orchestrator := ingest.NewOrchestrator(
				ingest.NewPostgresStore(conn),
				llm.NewClient(config.Config.LLM),
				config.Config.Ingest,
				ingest.WithProgress(progressPrinter{out: os.Stdout}),
				ingest.WithTranscriptFetcher(transcript.NewFetcher(nil)),
			)
			res, err := orchestrator.Process(ctx, req)
			if err != nil {
				msg, details := ingest.PublicMessage(err)
				if details != "" {
					msg += ": " + details
				}
				return fmt.Errorf("%s", msg)
			}

			fmt.Printf("\nDigest %q (%s)\n", res.Digest.Title, res.Digest.ID)
			for i, idea := range res.Ideas {
				fmt.Printf("  %d. %s\n", i+1, idea.Title)
			}
			if res.Podcast != nil {
				fmt.Printf("Podcast: %s\n", res.Podcast.Name)
			}
			return nil
		},
	}
	flags := ingestCommand.Flags()
	flags.StringVar(&req.TranscriptURL, "url", "", "Fetch the transcript from this page")
	flags.StringVar(&req.PodcastID, "podcast-id", "", "Existing podcast id")
	flags.StringVar(&req.PodcastName, "podcast-name", "", "Podcast name; the podcast is created if it does not exist")
	flags.StringVar(&req.PodcastHost, "podcast-host", "", "Host, when creating the podcast")
	flags.StringVar(&req.DigestTitle, "title", "", "Digest title (default: the transcript's main thesis)")
	flags.StringVar(&req.DigestDescription, "description", "", "Digest description")
	flags.StringVar(&req.DigestImageURL, "image-url", "", "Digest cover image URL")

	website.WebsiteCommand.AddCommand(ingestCommand)
}

func readTranscript(path string) (string, error) {
	var b []byte
	var err error
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", oops.New(err, "failed to read transcript")
	}
	return string(b), nil
}
