package tkdata

import (
	"context"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/perf"
)

type IdeaInput struct {
	DigestID           uuid.UUID
	PodcastID          *uuid.UUID
	CategoryID         *uuid.UUID
	Title              string
	Summary            string
	ActionableTakeaway *string
	ClarityScore       *int
	Timestamp          *string
	Position           int
}

// An idea with the rows it points at. Podcast and Category are nil when the
// reference is null.
type IdeaAndStuff struct {
	Idea     models.Idea      `db:"idea"`
	Podcast  *models.Podcast  `db:"podcast"`
	Category *models.Category `db:"category"`
}

type IdeaAndDigest struct {
	Idea     models.Idea      `db:"idea"`
	Podcast  *models.Podcast  `db:"podcast"`
	Category *models.Category `db:"category"`
	Digest   models.Digest    `db:"digest"`
}

func buildInsertIdeas(ideas []IdeaInput) (string, []any, error) {
	insert := sq.Insert("idea").
		Prefix("---- Insert ideas\n").
		Columns(
			"digest_id", "podcast_id", "category_id",
			"title", "summary", "actionable_takeaway",
			"clarity_score", "timestamp", "position",
		).
		Suffix("RETURNING $columns").
		PlaceholderFormat(sq.Dollar)
	for _, idea := range ideas {
		insert = insert.Values(
			idea.DigestID, idea.PodcastID, idea.CategoryID,
			idea.Title, idea.Summary, idea.ActionableTakeaway,
			idea.ClarityScore, idea.Timestamp, idea.Position,
		)
	}
	return insert.ToSql()
}

/*
Inserts all ideas in a single statement and returns the stored rows ordered by
position. Either every idea is written or none are.
*/
func InsertIdeas(ctx context.Context, dbConn db.ConnOrTx, ideas []IdeaInput) ([]*models.Idea, error) {
	if len(ideas) == 0 {
		return nil, nil
	}

	sql, args, err := buildInsertIdeas(ideas)
	if err != nil {
		return nil, oops.New(err, "failed to build idea insert")
	}

	inserted, err := db.Query[models.Idea](ctx, dbConn, sql, args...)
	if err != nil {
		return nil, oops.New(err, "failed to insert ideas")
	}
	sort.SliceStable(inserted, func(i, j int) bool {
		return inserted[i].Position < inserted[j].Position
	})
	return inserted, nil
}

/*
Adds one idea to the end of an existing digest. Used for manual entry, where
the caller does not know how many ideas are already there.
*/
func AppendIdea(ctx context.Context, dbConn db.ConnOrTx, input IdeaInput) (*models.Idea, error) {
	idea, err := db.QueryOne[models.Idea](ctx, dbConn,
		`
		---- Append idea
		INSERT INTO idea (
			digest_id, podcast_id, category_id,
			title, summary, actionable_takeaway,
			clarity_score, timestamp, position
		)
		VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM idea WHERE digest_id = $1)
		)
		RETURNING $columns
		`,
		input.DigestID, input.PodcastID, input.CategoryID,
		input.Title, input.Summary, input.ActionableTakeaway,
		input.ClarityScore, input.Timestamp,
	)
	if err != nil {
		return nil, oops.New(err, "failed to insert idea")
	}
	return idea, nil
}

// Ideas for each digest, in stored order.
func FetchIdeasForDigests(ctx context.Context, dbConn db.ConnOrTx, digestIDs []uuid.UUID) (map[uuid.UUID][]*IdeaAndStuff, error) {
	result := make(map[uuid.UUID][]*IdeaAndStuff, len(digestIDs))
	if len(digestIDs) == 0 {
		return result, nil
	}

	ideas, err := db.Query[IdeaAndStuff](ctx, dbConn,
		`
		---- Fetch ideas for digests
		SELECT $columns
		FROM
			idea
			LEFT JOIN podcast ON podcast.id = idea.podcast_id
			LEFT JOIN category ON category.id = idea.category_id
		WHERE idea.digest_id = ANY ($1::uuid[])
		ORDER BY idea.digest_id, idea.position, idea.created_at
		`,
		uuidStrings(digestIDs),
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch ideas")
	}

	for _, idea := range ideas {
		result[idea.Idea.DigestID] = append(result[idea.Idea.DigestID], idea)
	}
	return result, nil
}

// Ideas in a category, clearest first, each with the digest it belongs to.
func FetchIdeasByCategory(ctx context.Context, dbConn db.ConnOrTx, categoryID uuid.UUID) ([]*IdeaAndDigest, error) {
	p := perf.ExtractPerf(ctx)
	p.StartBlock("SQL", "Fetch ideas by category")
	defer p.EndBlock()

	ideas, err := db.Query[IdeaAndDigest](ctx, dbConn,
		`
		---- Fetch ideas by category
		SELECT $columns
		FROM
			idea
			JOIN digest ON digest.id = idea.digest_id
			LEFT JOIN podcast ON podcast.id = idea.podcast_id
			LEFT JOIN category ON category.id = idea.category_id
		WHERE idea.category_id = $1
		ORDER BY idea.clarity_score DESC NULLS LAST, idea.created_at DESC
		`,
		categoryID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch ideas for category")
	}
	return ideas, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	result := make([]string, len(ids))
	for i, id := range ids {
		result[i] = id.String()
	}
	return result
}
