package models

import (
	"time"

	"github.com/google/uuid"
)

type Category struct {
	ID uuid.UUID `db:"id"`

	Name        string  `db:"name"`
	Slug        string  `db:"slug"`
	Description *string `db:"description"`

	CreatedAt time.Time `db:"created_at"`
}
