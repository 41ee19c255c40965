package tkdata

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% focus`, escapeLike("100% focus"))
	assert.Equal(t, `deep\_work`, escapeLike("deep_work"))
	assert.Equal(t, `a\\b`, escapeLike(`a\b`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestBuildDigestsQuery(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		sql, args, err := buildDigestsQuery(DigestsQuery{})
		require.Nil(t, err)
		assert.Contains(t, sql, "SELECT $columns{digest} FROM digest")
		assert.Contains(t, sql, "ORDER BY digest.published_date DESC")
		assert.NotContains(t, sql, "WHERE")
		assert.NotContains(t, sql, "LIMIT")
		assert.Len(t, args, 0)
	})
	t.Run("every filter", func(t *testing.T) {
		cat := uuid.New()
		pod := uuid.New()
		sql, args, err := buildDigestsQuery(DigestsQuery{
			Search:       "  habits ",
			CategoryIDs:  []uuid.UUID{cat},
			PodcastIDs:   []uuid.UUID{pod},
			FeaturedOnly: true,
			Sort:         SortClarityDesc,
			Limit:        20,
			Offset:       40,
		})
		require.Nil(t, err)
		assert.Contains(t, sql, "digest.title ILIKE $1")
		assert.Contains(t, sql, "digest.description ILIKE $2")
		assert.Contains(t, sql, "fi.category_id = ANY ($3::uuid[])")
		assert.Contains(t, sql, "fi.podcast_id = ANY ($4::uuid[])")
		assert.Contains(t, sql, "digest.featured")
		assert.Contains(t, sql, "AVG(COALESCE(ci.clarity_score, 0))")
		assert.Contains(t, sql, "LIMIT 20 OFFSET 40")
		assert.Equal(t, []any{"%habits%", "%habits%", []string{cat.String()}, []string{pod.String()}}, args)
	})
	t.Run("clarity ascending", func(t *testing.T) {
		sql, _, err := buildDigestsQuery(DigestsQuery{Sort: SortClarityAsc})
		require.Nil(t, err)
		assert.Contains(t, sql, "ci.digest_id = digest.id\n) ASC")
	})
}

func TestBuildCountDigestsQuery(t *testing.T) {
	sql, args, err := buildCountDigestsQuery(DigestsQuery{Search: "x", Sort: SortClarityDesc, Limit: 5})
	require.Nil(t, err)
	assert.Contains(t, sql, "SELECT COUNT(*) FROM digest")
	assert.NotContains(t, sql, "ORDER BY")
	assert.NotContains(t, sql, "LIMIT")
	assert.Len(t, args, 2)
}

func TestDigestSortValid(t *testing.T) {
	assert.True(t, SortDateDesc.Valid())
	assert.True(t, SortClarityAsc.Valid())
	assert.False(t, DigestSort("newest").Valid())
}

func TestBuildInsertIdeas(t *testing.T) {
	digestID := uuid.New()
	score := 8
	sql, args, err := buildInsertIdeas([]IdeaInput{
		{DigestID: digestID, Title: "One", Summary: "First", ClarityScore: &score, Position: 0},
		{DigestID: digestID, Title: "Two", Summary: "Second", Position: 1},
	})
	require.Nil(t, err)
	assert.True(t, strings.HasPrefix(sql, "---- Insert ideas\n"))
	assert.Contains(t, sql, "INSERT INTO idea (digest_id,podcast_id,category_id,title,summary,actionable_takeaway,clarity_score,timestamp,position)")
	assert.Contains(t, sql, "($10,$11,$12,$13,$14,$15,$16,$17,$18)")
	assert.True(t, strings.HasSuffix(sql, "RETURNING $columns"))
	assert.Len(t, args, 18)
	assert.Equal(t, "Two", args[12])
}

func TestBuildUpdateDigest(t *testing.T) {
	id := uuid.New()
	title := "New title"
	empty := ""
	featured := true
	date := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	update := DigestUpdate{Title: &title, Description: &empty, Featured: &featured, PublishedDate: &date}
	assert.False(t, update.Empty())
	assert.True(t, DigestUpdate{}.Empty())

	sql, args, err := buildUpdateDigest(id, update)
	require.Nil(t, err)
	assert.Contains(t, sql, "UPDATE digest SET updated_at = now(), title = $1, description = $2, published_date = $3, featured = $4 WHERE id = $5")
	assert.Equal(t, []any{"New title", nil, date, true, id}, args)
}
