package tkdata

import (
	"context"

	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/perf"
)

func FetchCategories(ctx context.Context, dbConn db.ConnOrTx) ([]*models.Category, error) {
	categories, err := db.Query[models.Category](ctx, dbConn,
		`
		---- Fetch categories
		SELECT $columns
		FROM category
		ORDER BY name
		`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch categories")
	}
	return categories, nil
}

// Returns db.NotFound if no category has the slug.
func FetchCategoryBySlug(ctx context.Context, dbConn db.ConnOrTx, slug string) (*models.Category, error) {
	category, err := db.QueryOne[models.Category](ctx, dbConn,
		`
		---- Fetch category by slug
		SELECT $columns
		FROM category
		WHERE slug = $1
		`,
		slug,
	)
	if err != nil {
		if err == db.NotFound {
			return nil, db.NotFound
		}
		return nil, oops.New(err, "failed to fetch category")
	}
	return category, nil
}

type CategoryInput struct {
	Name        string  `yaml:"name"`
	Slug        string  `yaml:"slug"`
	Description *string `yaml:"description"`
}

/*
Creates or updates categories keyed by slug. A missing slug is generated from
the name. Runs in one transaction so a bad entry leaves the table untouched.
*/
func SyncCategories(ctx context.Context, dbConn db.ConnOrTx, inputs []CategoryInput) ([]*models.Category, error) {
	p := perf.ExtractPerf(ctx)
	p.StartBlock("SQL", "Sync categories")
	defer p.EndBlock()

	tx, err := dbConn.Begin(ctx)
	if err != nil {
		return nil, oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	var result []*models.Category
	for _, input := range inputs {
		slug := input.Slug
		if slug == "" {
			slug = models.GenerateSlug(input.Name)
		}
		if input.Name == "" || slug == "" {
			return nil, oops.New(nil, "category %q needs a name and a usable slug", input.Name)
		}

		category, err := db.QueryOne[models.Category](ctx, tx,
			`
			---- Upsert category
			INSERT INTO category (name, slug, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (slug) DO UPDATE SET
				name = EXCLUDED.name,
				description = COALESCE(EXCLUDED.description, category.description)
			RETURNING $columns
			`,
			input.Name, slug, input.Description,
		)
		if err != nil {
			return nil, oops.New(err, "failed to upsert category %s", slug)
		}
		result = append(result, category)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, oops.New(err, "failed to commit category sync")
	}
	return result, nil
}
