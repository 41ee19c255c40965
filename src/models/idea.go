package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinClarityScore = 1
	MaxClarityScore = 10
)

type Idea struct {
	ID uuid.UUID `db:"id"`

	DigestID   uuid.UUID  `db:"digest_id"`
	PodcastID  *uuid.UUID `db:"podcast_id"`
	CategoryID *uuid.UUID `db:"category_id"`

	Title              string  `db:"title"`
	Summary            string  `db:"summary"`
	ActionableTakeaway *string `db:"actionable_takeaway"`
	ClarityScore       *int    `db:"clarity_score"`
	Timestamp          *string `db:"timestamp"`

	// Order the idea was extracted or entered in, starting at 0.
	Position int `db:"position"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func ClarityInRange(score int) bool {
	return MinClarityScore <= score && score <= MaxClarityScore
}

var reTitleLineBreaks = regexp.MustCompile(`[ \t]*[\r\n]+[ \t]*`)

// Idea titles are one line: each line break, with the spaces around it,
// becomes a single space. Other spacing is kept as written.
func CleanTitle(title string) string {
	return strings.TrimSpace(reTitleLineBreaks.ReplaceAllString(title, " "))
}
