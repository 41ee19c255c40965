package website

import (
	"time"

	"github.com/google/uuid"
	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/parsing"
	"github.com/thetakeaway/takeaway/src/tkdata"
)

// Response shapes for the API. Field names are snake_case to match the
// column names the browser client was written against.

type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Podcast struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Host      *string   `json:"host"`
	Url       *string   `json:"url"`
	ImageUrl  *string   `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

type DigestRef struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

type Idea struct {
	ID         uuid.UUID  `json:"id"`
	DigestID   uuid.UUID  `json:"digest_id"`
	PodcastID  *uuid.UUID `json:"podcast_id"`
	CategoryID *uuid.UUID `json:"category_id"`

	Title                  string  `json:"title"`
	Summary                string  `json:"summary"`
	SummaryHtml            string  `json:"summary_html"`
	ActionableTakeaway     *string `json:"actionable_takeaway"`
	ActionableTakeawayHtml *string `json:"actionable_takeaway_html"`
	ClarityScore           *int    `json:"clarity_score"`
	Timestamp              *string `json:"timestamp"`
	Position               int     `json:"position"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Podcast  *Podcast   `json:"podcast,omitempty"`
	Category *Category  `json:"category,omitempty"`
	Digest   *DigestRef `json:"digest,omitempty"`
}

type Digest struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	Description   *string   `json:"description"`
	ImageUrl      *string   `json:"image_url"`
	PublishedDate time.Time `json:"published_date"`
	Featured      bool      `json:"featured"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Ideas      []Idea   `json:"ideas,omitempty"`
	AvgClarity *float64 `json:"avg_clarity,omitempty"`
}

func CategoryToJson(c *models.Category) *Category {
	if c == nil {
		return nil
	}
	return &Category{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}

func CategoriesToJson(cats []*models.Category) []*Category {
	result := make([]*Category, 0, len(cats))
	for _, c := range cats {
		result = append(result, CategoryToJson(c))
	}
	return result
}

func PodcastToJson(p *models.Podcast) *Podcast {
	if p == nil {
		return nil
	}
	return &Podcast{
		ID:        p.ID,
		Name:      p.Name,
		Host:      p.Host,
		Url:       p.Url,
		ImageUrl:  p.ImageUrl,
		CreatedAt: p.CreatedAt,
	}
}

func PodcastsToJson(podcasts []*models.Podcast) []*Podcast {
	result := make([]*Podcast, 0, len(podcasts))
	for _, p := range podcasts {
		result = append(result, PodcastToJson(p))
	}
	return result
}

func IdeaToJson(i *models.Idea) Idea {
	res := Idea{
		ID:                 i.ID,
		DigestID:           i.DigestID,
		PodcastID:          i.PodcastID,
		CategoryID:         i.CategoryID,
		Title:              i.Title,
		Summary:            i.Summary,
		SummaryHtml:        parsing.ParseMarkdown(i.Summary, parsing.IdeaMarkdown),
		ActionableTakeaway: i.ActionableTakeaway,
		ClarityScore:       i.ClarityScore,
		Timestamp:          i.Timestamp,
		Position:           i.Position,
		CreatedAt:          i.CreatedAt,
		UpdatedAt:          i.UpdatedAt,
	}
	if i.ActionableTakeaway != nil {
		html := parsing.ParseMarkdown(*i.ActionableTakeaway, parsing.IdeaMarkdown)
		res.ActionableTakeawayHtml = &html
	}
	return res
}

func IdeaAndStuffToJson(i *tkdata.IdeaAndStuff) Idea {
	res := IdeaToJson(&i.Idea)
	res.Podcast = PodcastToJson(i.Podcast)
	res.Category = CategoryToJson(i.Category)
	return res
}

func IdeaAndDigestToJson(i *tkdata.IdeaAndDigest) Idea {
	res := IdeaToJson(&i.Idea)
	res.Podcast = PodcastToJson(i.Podcast)
	res.Category = CategoryToJson(i.Category)
	res.Digest = &DigestRef{ID: i.Digest.ID, Title: i.Digest.Title}
	return res
}

func DigestToJson(d *models.Digest) Digest {
	return Digest{
		ID:            d.ID,
		Title:         d.Title,
		Description:   d.Description,
		ImageUrl:      d.ImageUrl,
		PublishedDate: d.PublishedDate,
		Featured:      d.Featured,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func DigestWithIdeasToJson(d *tkdata.DigestWithIdeas) Digest {
	res := DigestToJson(&d.Digest)
	res.Ideas = make([]Idea, 0, len(d.Ideas))
	for _, idea := range d.Ideas {
		res.Ideas = append(res.Ideas, IdeaAndStuffToJson(idea))
	}
	res.AvgClarity = averageClarity(d.Ideas)
	return res
}

// Unscored ideas count as zero, the same as the clarity sort does.
func averageClarity(ideas []*tkdata.IdeaAndStuff) *float64 {
	if len(ideas) == 0 {
		return nil
	}
	total := 0
	for _, idea := range ideas {
		if idea.Idea.ClarityScore != nil {
			total += *idea.Idea.ClarityScore
		}
	}
	avg := float64(total) / float64(len(ideas))
	return &avg
}
