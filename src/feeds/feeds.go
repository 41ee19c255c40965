package feeds

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/tkdata"
)

// What a podcast's RSS or Atom feed says about the show.
type PodcastFeed struct {
	Name     string
	Host     string
	Url      string
	ImageUrl string
	Episodes []Episode
}

type Episode struct {
	Title     string
	Link      string
	Published *time.Time
}

type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		client: client,
		parser: gofeed.NewParser(),
	}
}

func (f *Fetcher) Fetch(ctx context.Context, feedUrl string) (*PodcastFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedUrl, nil)
	if err != nil {
		return nil, oops.New(err, "failed to build feed request")
	}
	req.Header.Set("User-Agent", "TheTakeaway/1.0")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, oops.New(err, "failed to fetch feed")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, oops.New(nil, "feed returned %s", res.Status)
	}

	feed, err := f.parse(res.Body)
	if err != nil {
		return nil, err
	}
	if feed.Url == "" {
		feed.Url = feedUrl
	}
	return feed, nil
}

func Parse(r io.Reader) (*PodcastFeed, error) {
	return NewFetcher(nil).parse(r)
}

func (f *Fetcher) parse(r io.Reader) (*PodcastFeed, error) {
	parsed, err := f.parser.Parse(r)
	if err != nil {
		return nil, oops.New(err, "failed to parse feed")
	}

	name := strings.TrimSpace(parsed.Title)
	if name == "" {
		return nil, oops.New(nil, "feed has no title")
	}

	feed := &PodcastFeed{
		Name: name,
		Host: feedHost(parsed),
		Url:  strings.TrimSpace(parsed.Link),
	}
	if parsed.Image != nil {
		feed.ImageUrl = parsed.Image.URL
	}
	if feed.ImageUrl == "" && parsed.ITunesExt != nil {
		feed.ImageUrl = parsed.ITunesExt.Image
	}

	for _, item := range parsed.Items {
		episode := Episode{
			Title: strings.TrimSpace(item.Title),
			Link:  item.Link,
		}
		if episode.Link == "" && len(item.Links) > 0 {
			episode.Link = item.Links[0]
		}
		if item.PublishedParsed != nil {
			episode.Published = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			episode.Published = item.UpdatedParsed
		}
		feed.Episodes = append(feed.Episodes, episode)
	}

	return feed, nil
}

func feedHost(parsed *gofeed.Feed) string {
	if parsed.ITunesExt != nil && strings.TrimSpace(parsed.ITunesExt.Author) != "" {
		return strings.TrimSpace(parsed.ITunesExt.Author)
	}
	for _, author := range parsed.Authors {
		if author != nil && strings.TrimSpace(author.Name) != "" {
			return strings.TrimSpace(author.Name)
		}
	}
	return ""
}

func (f *PodcastFeed) PodcastInput() tkdata.PodcastInput {
	return tkdata.PodcastInput{
		Name:     f.Name,
		Host:     optional(f.Host),
		Url:      optional(f.Url),
		ImageUrl: optional(f.ImageUrl),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
