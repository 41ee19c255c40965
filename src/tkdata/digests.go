package tkdata

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/perf"
)

type DigestSort string

const (
	SortDateDesc    DigestSort = "date-desc"
	SortDateAsc     DigestSort = "date-asc"
	SortClarityDesc DigestSort = "clarity-desc"
	SortClarityAsc  DigestSort = "clarity-asc"
)

func (s DigestSort) Valid() bool {
	switch s {
	case SortDateDesc, SortDateAsc, SortClarityDesc, SortClarityAsc:
		return true
	}
	return false
}

type DigestsQuery struct {
	// Case-insensitive substring of the title or description.
	Search string

	// A digest matches if any of its ideas is in one of these categories, or
	// from one of these podcasts. Empty means no filter.
	CategoryIDs []uuid.UUID
	PodcastIDs  []uuid.UUID

	FeaturedOnly bool

	// Defaults to SortDateDesc.
	Sort DigestSort

	// Ignored by CountDigests.
	Limit, Offset int // if empty, no pagination
}

type DigestWithIdeas struct {
	Digest models.Digest
	Ideas  []*IdeaAndStuff
}

// Average clarity over every idea in the digest, counting unscored ideas as
// zero. Digests without ideas average zero.
const avgClaritySQL = `(
	SELECT COALESCE(AVG(COALESCE(ci.clarity_score, 0)), 0)::float8
	FROM idea AS ci
	WHERE ci.digest_id = digest.id
)`

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func applyDigestFilters(b sq.SelectBuilder, q DigestsQuery) sq.SelectBuilder {
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		b = b.Where(sq.Or{
			sq.Expr("digest.title ILIKE ?", pattern),
			sq.Expr("digest.description ILIKE ?", pattern),
		})
	}
	if len(q.CategoryIDs) > 0 {
		b = b.Where(
			"EXISTS (SELECT 1 FROM idea AS fi WHERE fi.digest_id = digest.id AND fi.category_id = ANY (?::uuid[]))",
			uuidStrings(q.CategoryIDs),
		)
	}
	if len(q.PodcastIDs) > 0 {
		b = b.Where(
			"EXISTS (SELECT 1 FROM idea AS fi WHERE fi.digest_id = digest.id AND fi.podcast_id = ANY (?::uuid[]))",
			uuidStrings(q.PodcastIDs),
		)
	}
	if q.FeaturedOnly {
		b = b.Where("digest.featured")
	}
	return b
}

func buildDigestsQuery(q DigestsQuery) (string, []any, error) {
	b := sq.Select("$columns{digest}").
		Prefix("---- Fetch digests\n").
		From("digest").
		PlaceholderFormat(sq.Dollar)
	b = applyDigestFilters(b, q)

	switch q.Sort {
	case SortDateAsc:
		b = b.OrderBy("digest.published_date ASC", "digest.created_at ASC")
	case SortClarityDesc:
		b = b.OrderBy(avgClaritySQL+" DESC", "digest.published_date DESC")
	case SortClarityAsc:
		b = b.OrderBy(avgClaritySQL+" ASC", "digest.published_date DESC")
	default:
		b = b.OrderBy("digest.published_date DESC", "digest.created_at DESC")
	}

	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit)).Offset(uint64(q.Offset))
	}
	return b.ToSql()
}

func buildCountDigestsQuery(q DigestsQuery) (string, []any, error) {
	b := sq.Select("COUNT(*)").
		Prefix("---- Count digests\n").
		From("digest").
		PlaceholderFormat(sq.Dollar)
	return applyDigestFilters(b, q).ToSql()
}

func FetchDigests(ctx context.Context, dbConn db.ConnOrTx, q DigestsQuery) ([]*DigestWithIdeas, error) {
	p := perf.ExtractPerf(ctx)
	p.StartBlock("SQL", "Fetch digests")
	defer p.EndBlock()

	sql, args, err := buildDigestsQuery(q)
	if err != nil {
		return nil, oops.New(err, "failed to build digests query")
	}

	digests, err := db.Query[models.Digest](ctx, dbConn, sql, args...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch digests")
	}

	return attachIdeas(ctx, dbConn, digests)
}

func CountDigests(ctx context.Context, dbConn db.ConnOrTx, q DigestsQuery) (int, error) {
	sql, args, err := buildCountDigestsQuery(q)
	if err != nil {
		return 0, oops.New(err, "failed to build digest count query")
	}
	count, err := db.QueryOneScalar[int](ctx, dbConn, sql, args...)
	if err != nil {
		return 0, oops.New(err, "failed to count digests")
	}
	return count, nil
}

// Returns db.NotFound if there is no such digest.
func FetchDigest(ctx context.Context, dbConn db.ConnOrTx, id uuid.UUID) (*DigestWithIdeas, error) {
	p := perf.ExtractPerf(ctx)
	p.StartBlock("SQL", "Fetch digest")
	defer p.EndBlock()

	digest, err := db.QueryOne[models.Digest](ctx, dbConn,
		`
		---- Fetch digest
		SELECT $columns
		FROM digest
		WHERE id = $1
		`,
		id,
	)
	if err != nil {
		if err == db.NotFound {
			return nil, db.NotFound
		}
		return nil, oops.New(err, "failed to fetch digest")
	}

	result, err := attachIdeas(ctx, dbConn, []*models.Digest{digest})
	if err != nil {
		return nil, err
	}
	return result[0], nil
}

func attachIdeas(ctx context.Context, dbConn db.ConnOrTx, digests []*models.Digest) ([]*DigestWithIdeas, error) {
	ids := make([]uuid.UUID, len(digests))
	for i, d := range digests {
		ids[i] = d.ID
	}
	ideas, err := FetchIdeasForDigests(ctx, dbConn, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*DigestWithIdeas, len(digests))
	for i, d := range digests {
		result[i] = &DigestWithIdeas{
			Digest: *d,
			Ideas:  ideas[d.ID],
		}
	}
	return result, nil
}

type DigestInput struct {
	Title         string
	Description   *string
	ImageUrl      *string
	PublishedDate *time.Time // defaults to now
	Featured      bool
}

func CreateDigest(ctx context.Context, dbConn db.ConnOrTx, input DigestInput) (*models.Digest, error) {
	digest, err := db.QueryOne[models.Digest](ctx, dbConn,
		`
		---- Create digest
		INSERT INTO digest (title, description, image_url, published_date, featured)
		VALUES ($1, $2, $3, COALESCE($4, now()), $5)
		RETURNING $columns
		`,
		input.Title, input.Description, input.ImageUrl, input.PublishedDate, input.Featured,
	)
	if err != nil {
		return nil, oops.New(err, "failed to create digest")
	}
	return digest, nil
}

// Fields left nil are not changed. For Description and ImageUrl, a pointer to
// the empty string clears the column.
type DigestUpdate struct {
	Title         *string
	Description   *string
	ImageUrl      *string
	PublishedDate *time.Time
	Featured      *bool
}

func (u DigestUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.ImageUrl == nil && u.PublishedDate == nil && u.Featured == nil
}

func nullIfEmpty(s *string) any {
	if *s == "" {
		return nil
	}
	return *s
}

func buildUpdateDigest(id uuid.UUID, u DigestUpdate) (string, []any, error) {
	b := sq.Update("digest").
		Prefix("---- Update digest\n").
		Set("updated_at", sq.Expr("now()")).
		Where("id = ?", id).
		Suffix("RETURNING $columns").
		PlaceholderFormat(sq.Dollar)
	if u.Title != nil {
		b = b.Set("title", *u.Title)
	}
	if u.Description != nil {
		b = b.Set("description", nullIfEmpty(u.Description))
	}
	if u.ImageUrl != nil {
		b = b.Set("image_url", nullIfEmpty(u.ImageUrl))
	}
	if u.PublishedDate != nil {
		b = b.Set("published_date", *u.PublishedDate)
	}
	if u.Featured != nil {
		b = b.Set("featured", *u.Featured)
	}
	return b.ToSql()
}

// Returns db.NotFound if there is no such digest.
func UpdateDigest(ctx context.Context, dbConn db.ConnOrTx, id uuid.UUID, update DigestUpdate) (*models.Digest, error) {
	sql, args, err := buildUpdateDigest(id, update)
	if err != nil {
		return nil, oops.New(err, "failed to build digest update")
	}

	digest, err := db.QueryOne[models.Digest](ctx, dbConn, sql, args...)
	if err != nil {
		if err == db.NotFound {
			return nil, db.NotFound
		}
		return nil, oops.New(err, "failed to update digest")
	}
	return digest, nil
}

// Deletes the digest and, through the foreign key, its ideas. Returns
// db.NotFound if there was nothing to delete.
func DeleteDigest(ctx context.Context, dbConn db.ConnOrTx, id uuid.UUID) error {
	tag, err := dbConn.Exec(ctx,
		`
		---- Delete digest
		DELETE FROM digest
		WHERE id = $1
		`,
		id,
	)
	if err != nil {
		return oops.New(err, "failed to delete digest")
	}
	if tag.RowsAffected() == 0 {
		return db.NotFound
	}
	return nil
}

type FilterOption struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// The categories and podcasts that at least one idea refers to, sorted by
// name. These are the values worth offering as digest filters.
func FetchFilterOptions(ctx context.Context, dbConn db.ConnOrTx) (categories []*FilterOption, podcasts []*FilterOption, err error) {
	categories, err = db.Query[FilterOption](ctx, dbConn,
		`
		---- Fetch category filter options
		SELECT $columns{category}
		FROM category
		WHERE EXISTS (SELECT 1 FROM idea WHERE idea.category_id = category.id)
		ORDER BY category.name
		`,
	)
	if err != nil {
		return nil, nil, oops.New(err, "failed to fetch category filter options")
	}

	podcasts, err = db.Query[FilterOption](ctx, dbConn,
		`
		---- Fetch podcast filter options
		SELECT $columns{podcast}
		FROM podcast
		WHERE EXISTS (SELECT 1 FROM idea WHERE idea.podcast_id = podcast.id)
		ORDER BY podcast.name
		`,
	)
	if err != nil {
		return nil, nil, oops.New(err, "failed to fetch podcast filter options")
	}

	return categories, podcasts, nil
}
