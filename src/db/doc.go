/*
This package contains lowish-level APIs for making queries against the Postgres
content store. It maps result rows onto Go types while letting you write
arbitrary SQL.

The primary functions are Query and QueryIterator.

Query syntax

Arguments use the usual $1, $2 placeholders and go straight through to pgx.

	count, err := db.QueryOneScalar[int](ctx, conn,
		`
		SELECT COUNT(*)
		FROM category
		WHERE slug = ANY($1)
		`,
		[]string{"productivity", "mindset"},
	)

(If you want to use a slice in your query, use Postgres arrays instead of IN.)

To query multiple columns at once, use a struct type with `db:"column_name"`
tags and the special $columns placeholder:

	type Podcast struct {
		ID   uuid.UUID `db:"id"`
		Name string    `db:"name"`
	}
	podcasts, err := db.Query[Podcast](ctx, conn, `SELECT $columns FROM podcast`)
	// SELECT id, name FROM podcast

When a JOIN makes column names ambiguous, give the placeholder a table prefix
with $columns{prefix}:

	ideas, err := db.Query[models.Idea](ctx, conn, `
		SELECT $columns{i}
		FROM idea AS i JOIN digest AS d ON d.id = i.digest_id
		WHERE d.featured
	`)
	// SELECT i.id, i.digest_id, ... FROM ...

A struct of tagged structs selects from several tables at once. Each nested
tag becomes a table qualifier, and pointer fields stay nil when every one of
their columns is NULL, which is what a LEFT JOIN with no match produces:

	type digestAndPodcast struct {
		Digest  models.Digest   `db:"d"`
		Podcast *models.Podcast `db:"p"`
	}
	rows, err := db.Query[digestAndPodcast](ctx, conn, `
		SELECT $columns
		FROM digest AS d LEFT JOIN podcast AS p ON p.id = d.podcast_id
	`)

Aggregates such as AVG return NUMERIC, which does not map onto float64. Cast
them with ::float8.
*/
package db
