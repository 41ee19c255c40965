package models

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

type Podcast struct {
	ID uuid.UUID `db:"id"`

	Name           string  `db:"name"`
	NormalizedName string  `db:"normalized_name"`
	Host           *string `db:"host"`
	Url            *string `db:"url"`
	ImageUrl       *string `db:"image_url"`

	CreatedAt time.Time `db:"created_at"`
}

/*
The key two podcast names share when they refer to the same show. Case is
folded and runs of whitespace collapse, so "The  Tim Ferriss Show" and "the tim
ferriss show " find the same row.
*/
func NormalizePodcastName(name string) string {
	return cases.Fold().String(strings.Join(strings.FieldsFunc(name, unicode.IsSpace), " "))
}
