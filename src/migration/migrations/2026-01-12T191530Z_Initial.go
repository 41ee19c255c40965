package migrations

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/thetakeaway/takeaway/src/migration/types"
)

func init() {
	registerMigration(Initial{})
}

type Initial struct{}

func (m Initial) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 1, 12, 19, 15, 30, 0, time.UTC))
}

func (m Initial) Name() string {
	return "Initial"
}

func (m Initial) Description() string {
	return "Create the category, podcast, digest, and idea tables"
}

func (m Initial) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE EXTENSION IF NOT EXISTS pgcrypto;

		CREATE TABLE category (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			description TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);

		CREATE TABLE podcast (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			normalized_name TEXT NOT NULL UNIQUE,
			host TEXT,
			url TEXT,
			image_url TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);

		CREATE TABLE digest (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title TEXT NOT NULL,
			description TEXT,
			image_url TEXT,
			published_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			featured BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);

		CREATE TABLE idea (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			digest_id UUID NOT NULL REFERENCES digest (id) ON DELETE CASCADE,
			podcast_id UUID REFERENCES podcast (id) ON DELETE SET NULL,
			category_id UUID REFERENCES category (id) ON DELETE SET NULL,
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			actionable_takeaway TEXT,
			clarity_score INTEGER CHECK (clarity_score BETWEEN 1 AND 10),
			timestamp TEXT,
			position INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);

		CREATE INDEX idea_digest_id ON idea (digest_id, position);
		CREATE INDEX idea_category_id ON idea (category_id);
		CREATE INDEX idea_podcast_id ON idea (podcast_id);
		CREATE INDEX digest_published_date ON digest (published_date DESC);
		`,
	)
	return err
}

func (m Initial) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE idea;
		DROP TABLE digest;
		DROP TABLE podcast;
		DROP TABLE category;
		`,
	)
	return err
}
