package models

import (
	"time"

	"github.com/google/uuid"
)

type Digest struct {
	ID uuid.UUID `db:"id"`

	Title         string    `db:"title"`
	Description   *string   `db:"description"`
	ImageUrl      *string   `db:"image_url"`
	PublishedDate time.Time `db:"published_date"`
	Featured      bool      `db:"featured"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
