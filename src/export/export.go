package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/templates"
	"github.com/thetakeaway/takeaway/src/tkdata"
)

type exportData struct {
	Title         string
	Description   string
	PublishedDate time.Time
	Ideas         []exportIdea
}

type exportIdea struct {
	Title              string
	Meta               []string
	Summary            string
	ActionableTakeaway string
}

// Renders a digest and its ideas, in stored order, as a standalone Markdown
// document.
func Markdown(d *tkdata.DigestWithIdeas) (string, error) {
	data := exportData{
		Title:         models.CleanTitle(d.Digest.Title),
		PublishedDate: d.Digest.PublishedDate,
	}
	if d.Digest.Description != nil {
		data.Description = escapeIdeaHeadings(*d.Digest.Description)
	}

	for _, idea := range d.Ideas {
		var meta []string
		if idea.Podcast != nil && idea.Podcast.Name != "" {
			meta = append(meta, "**Podcast:** "+idea.Podcast.Name)
		}
		if idea.Category != nil && idea.Category.Name != "" {
			meta = append(meta, "**Category:** "+idea.Category.Name)
		}
		if idea.Idea.ClarityScore != nil {
			meta = append(meta, fmt.Sprintf("**Clarity:** %d/10", *idea.Idea.ClarityScore))
		}

		e := exportIdea{
			Title:   models.CleanTitle(idea.Idea.Title),
			Meta:    meta,
			Summary: escapeIdeaHeadings(idea.Idea.Summary),
		}
		if idea.Idea.ActionableTakeaway != nil {
			e.ActionableTakeaway = escapeIdeaHeadings(*idea.Idea.ActionableTakeaway)
		}
		data.Ideas = append(data.Ideas, e)
	}

	return templates.Render("export.md", data)
}

var reIdeaHeading = regexp.MustCompile(`(?m)^## (\d+)\. (.*)$`)

// Body text that happens to contain a line like "## 2. Something" would read
// back as an idea. The backslash keeps it a literal "##" in rendered Markdown.
func escapeIdeaHeadings(text string) string {
	return reIdeaHeading.ReplaceAllString(text, `\$0`)
}

/*
Recovers the idea titles from an exported document, in document order. Only
numbered level-two headings count, so headings inside an idea's summary
("### Actionable Takeaway", or a "## Notes" the model wrote) are ignored.
*/
func ParseIdeaTitles(markdown string) []string {
	var titles []string
	expected := 1
	for _, m := range reIdeaHeading.FindAllStringSubmatch(markdown, -1) {
		if m[1] != fmt.Sprint(expected) {
			continue
		}
		titles = append(titles, strings.TrimRight(m[2], "\r"))
		expected++
	}
	return titles
}

// The download name for a digest's export, e.g. "compound-growth.md".
func Filename(d *models.Digest) string {
	slug := models.GenerateSlug(d.Title)
	if slug == "" {
		slug = "digest"
	}
	return slug + ".md"
}
