package export

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/tkdata"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func sampleDigest() *tkdata.DigestWithIdeas {
	digestID := uuid.New()
	podcast := &models.Podcast{ID: uuid.New(), Name: "The Knowledge Project"}
	category := &models.Category{ID: uuid.New(), Name: "Mindset", Slug: "mindset"}

	return &tkdata.DigestWithIdeas{
		Digest: models.Digest{
			ID:            digestID,
			Title:         "Compound growth beats linear progress",
			Description:   strPtr("Key insights on compounding."),
			PublishedDate: time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
		},
		Ideas: []*tkdata.IdeaAndStuff{
			{
				Idea: models.Idea{
					DigestID:           digestID,
					Title:              "Small improvements create exponential returns",
					Summary:            "**Compounding** works through gains.\n\n## Notes\n\nNot a numbered heading.",
					ActionableTakeaway: strPtr("Start with:\n1. Identify one improvement"),
					ClarityScore:       intPtr(9),
					Position:           0,
				},
				Podcast:  podcast,
				Category: category,
			},
			{
				Idea: models.Idea{
					DigestID: digestID,
					Title:    "Consistency over\nintensity",
					Summary:  "Show up daily.",
					Position: 1,
				},
			},
			{
				Idea: models.Idea{
					DigestID: digestID,
					Title:    "## 2. Tricky title",
					Summary:  "Titles can look like headings too.",
					Position: 2,
				},
			},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md, err := Markdown(sampleDigest())
	require.Nil(t, err)

	assert.True(t, strings.HasPrefix(md, "# Compound growth beats linear progress\n\nKey insights on compounding.\n\n*Published: March 9, 2026*\n\n---\n\n"))
	assert.Contains(t, md, "## 1. Small improvements create exponential returns\n\n**Podcast:** The Knowledge Project | **Category:** Mindset | **Clarity:** 9/10\n\n")
	assert.Contains(t, md, "### Actionable Takeaway\n\nStart with:")
	assert.Contains(t, md, "## 2. Consistency over intensity\n\nShow up daily.\n\n---")
	assert.Contains(t, md, "*Exported from The Takeaway*")
}

func TestMarkdownWithoutDescription(t *testing.T) {
	d := sampleDigest()
	d.Digest.Description = nil
	d.Ideas = nil

	md, err := Markdown(d)
	require.Nil(t, err)
	assert.Equal(t, "# Compound growth beats linear progress\n\n*Published: March 9, 2026*\n\n---\n\n*Exported from The Takeaway*\n", md)
}

func TestRoundTrip(t *testing.T) {
	d := sampleDigest()
	md, err := Markdown(d)
	require.Nil(t, err)

	assert.Equal(t, []string{
		"Small improvements create exponential returns",
		"Consistency over intensity",
		"## 2. Tricky title",
	}, ParseIdeaTitles(md))
}

func TestRoundTripWithHeadingsInBody(t *testing.T) {
	digestID := uuid.New()
	d := &tkdata.DigestWithIdeas{
		Digest: models.Digest{
			ID:            digestID,
			Title:         "Headings everywhere",
			Description:   strPtr("## 1. Not an idea either"),
			PublishedDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		Ideas: []*tkdata.IdeaAndStuff{
			{Idea: models.Idea{DigestID: digestID, Title: "Real one", Summary: "Intro\n\n## 2. Fake heading", Position: 0}},
			{Idea: models.Idea{DigestID: digestID, Title: "Real two", Summary: "Plain.", ActionableTakeaway: strPtr("## 3. Also fake\r\nthen text"), Position: 1}},
			{Idea: models.Idea{DigestID: digestID, Title: "Spaced  title", Summary: "Spacing inside titles survives.", Position: 2}},
		},
	}

	md, err := Markdown(d)
	require.Nil(t, err)
	assert.Contains(t, md, "Intro\n\n\\## 2. Fake heading")
	assert.Contains(t, md, "\\## 1. Not an idea either")

	assert.Equal(t, []string{"Real one", "Real two", "Spaced  title"}, ParseIdeaTitles(md))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "compound-growth-beats-linear-progress.md", Filename(&models.Digest{Title: "Compound growth beats linear progress"}))
	assert.Equal(t, "digest.md", Filename(&models.Digest{Title: "???"}))
}
