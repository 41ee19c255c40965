package transcript

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/thetakeaway/takeaway/src/oops"
)

// Pages bigger than this are refused rather than truncated.
const maxPageBytes = 8 * 1024 * 1024

var (
	ErrBadURL      = errors.New("transcript URL must be an absolute http or https URL")
	ErrNoText      = errors.New("no transcript text found on the page")
	ErrPageTooBig  = errors.New("transcript page is too large")
	reSpaceRun     = regexp.MustCompile(`[ \t\r\f\v]+`)
	reBlankLineRun = regexp.MustCompile(`\n{3,}`)
)

// Places a transcript is usually found on a podcast's episode page, most
// specific first.
var containerSelectors = []string{
	"#transcript",
	".transcript",
	"[class*=transcript]",
	"[id*=transcript]",
	"article",
	"main",
	"body",
}

type Fetcher struct {
	client *http.Client
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client}
}

// Downloads the page at rawURL and returns its transcript text. Plain text
// responses are returned as-is. HTML pages are reduced to the text of the
// most likely transcript container.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrBadURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", oops.New(err, "failed to build transcript request")
	}
	req.Header.Set("User-Agent", "TheTakeaway/1.0")
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.5")

	res, err := f.client.Do(req)
	if err != nil {
		return "", oops.New(err, "failed to fetch transcript from %s", u.Host)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", oops.New(nil, "transcript page returned %s", res.Status)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxPageBytes+1))
	if err != nil {
		return "", oops.New(err, "failed to read transcript page")
	}
	if len(body) > maxPageBytes {
		return "", ErrPageTooBig
	}

	mediaType, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
	var text string
	if mediaType == "text/plain" {
		text = Clean(string(body))
	} else {
		text, err = ExtractText(strings.NewReader(string(body)))
		if err != nil {
			return "", err
		}
	}

	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Pulls readable text out of an HTML page, one line per block element.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", oops.New(err, "failed to parse transcript page")
	}

	doc.Find("script, style, noscript, template, svg, nav, header, footer, aside, form").Remove()

	for _, selector := range containerSelectors {
		container := doc.Find(selector).First()
		if container.Length() == 0 {
			continue
		}
		if text := blockText(container); text != "" {
			return text, nil
		}
	}
	return "", nil
}

func blockText(sel *goquery.Selection) string {
	var lines []string
	blocks := sel.Find("p, li, h1, h2, h3, h4, h5, h6, blockquote, dt, dd, pre")
	if blocks.Length() == 0 {
		return Clean(sel.Text())
	}
	blocks.Each(func(_ int, block *goquery.Selection) {
		// Nested blocks are covered by their innermost match.
		if block.Find("p, li, blockquote, pre").Length() > 0 {
			return
		}
		if line := strings.Join(strings.Fields(block.Text()), " "); line != "" {
			lines = append(lines, line)
		}
	})
	return Clean(strings.Join(lines, "\n\n"))
}

// Collapses runs of spaces and blank lines.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = reSpaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = reBlankLineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
