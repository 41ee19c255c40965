package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	lorem "github.com/HandmadeNetwork/golorem"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thetakeaway/takeaway/src/config"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/llm"
	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/progress"
	"github.com/thetakeaway/takeaway/src/tkdata"
	"github.com/thetakeaway/takeaway/src/utils"
)

// In-memory Store. Writes made in a transaction only become visible on
// commit.
type memStore struct {
	mu         sync.Mutex
	categories []*models.Category
	podcasts   []*models.Podcast
	digests    []*models.Digest
	ideas      []*models.Idea

	failIdeas bool
	begins    int
}

type memTx struct {
	s        *memStore
	podcasts []*models.Podcast
	digests  []*models.Digest
	ideas    []*models.Idea
	done     bool
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	return &memTx{s: s}, nil
}

func (s *memStore) counts() (podcasts, digests, ideas int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.podcasts), len(s.digests), len(s.ideas)
}

func (t *memTx) FetchPodcast(ctx context.Context, id uuid.UUID) (*models.Podcast, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, p := range append(t.s.podcasts, t.podcasts...) {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, db.NotFound
}

func (t *memTx) FindOrCreatePodcast(ctx context.Context, input tkdata.PodcastInput) (*models.Podcast, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	normalized := models.NormalizePodcastName(input.Name)
	for _, p := range append(t.s.podcasts, t.podcasts...) {
		if p.NormalizedName == normalized {
			return p, nil
		}
	}
	p := &models.Podcast{
		ID:             uuid.New(),
		Name:           input.Name,
		NormalizedName: normalized,
		Host:           input.Host,
		CreatedAt:      time.Now(),
	}
	t.podcasts = append(t.podcasts, p)
	return p, nil
}

func (t *memTx) CreateDigest(ctx context.Context, input tkdata.DigestInput) (*models.Digest, error) {
	now := time.Now()
	d := &models.Digest{
		ID:            uuid.New(),
		Title:         input.Title,
		Description:   input.Description,
		ImageUrl:      input.ImageUrl,
		PublishedDate: now,
		Featured:      input.Featured,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	t.digests = append(t.digests, d)
	return d, nil
}

func (t *memTx) FetchCategories(ctx context.Context) ([]*models.Category, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.categories, nil
}

func (t *memTx) InsertIdeas(ctx context.Context, inputs []tkdata.IdeaInput) ([]*models.Idea, error) {
	if t.s.failIdeas {
		return nil, errors.New(`pq: insert or update on table "idea" violates foreign key constraint "idea_digest_id_fkey"`)
	}
	var ideas []*models.Idea
	for _, in := range inputs {
		ideas = append(ideas, &models.Idea{
			ID:                 uuid.New(),
			DigestID:           in.DigestID,
			PodcastID:          in.PodcastID,
			CategoryID:         in.CategoryID,
			Title:              in.Title,
			Summary:            in.Summary,
			ActionableTakeaway: in.ActionableTakeaway,
			ClarityScore:       in.ClarityScore,
			Position:           in.Position,
		})
	}
	t.ideas = append(t.ideas, ideas...)
	return ideas, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.podcasts = append(t.s.podcasts, t.podcasts...)
	t.s.digests = append(t.s.digests, t.digests...)
	t.s.ideas = append(t.s.ideas, t.ideas...)
	t.done = true
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.podcasts, t.digests, t.ideas = nil, nil, nil
	t.done = true
	return nil
}

// An LLM API that always replies with the given text.
type fakeLLM struct {
	srv   *httptest.Server
	mu    sync.Mutex
	reply string
	calls int
}

func newFakeLLM(t *testing.T) *fakeLLM {
	f := &fakeLLM{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls++
		reply := f.reply
		f.mu.Unlock()

		if reply == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"secret upstream detail"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": reply}},
			"stop_reason": "end_turn",
		})
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLLM) Reply(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = text
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLLM) Client() *llm.Client {
	return llm.NewClient(config.LLMConfig{BaseUrl: f.srv.URL, ApiKey: "sk-test", Model: "test-model"})
}

type replyIdea struct {
	Title              string `json:"title"`
	Summary            string `json:"summary"`
	ActionableTakeaway string `json:"actionable_takeaway,omitempty"`
	ClarityScore       *int   `json:"clarity_score,omitempty"`
	Category           string `json:"category,omitempty"`
}

func makeReply(thesis, description string, ideas ...replyIdea) string {
	b, err := json.Marshal(map[string]any{
		"thesis":      thesis,
		"description": description,
		"ideas":       ideas,
	})
	if err != nil {
		panic(err)
	}
	return "```json\n" + string(b) + "\n```"
}

func makeIdeas(n int) []replyIdea {
	var ideas []replyIdea
	for i := 0; i < n; i++ {
		ideas = append(ideas, replyIdea{
			Title:              fmt.Sprintf("Idea %d", i+1),
			Summary:            lorem.Paragraph(1, 3),
			ActionableTakeaway: lorem.Sentence(4, 10),
			ClarityScore:       utils.P(1 + i%10),
			Category:           "Strategy",
		})
	}
	return ideas
}

type harness struct {
	store    *memStore
	llm      *fakeLLM
	registry *progress.Registry
	orch     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		store: &memStore{categories: []*models.Category{
			{ID: uuid.New(), Name: "Productivity", Slug: "productivity"},
			{ID: uuid.New(), Name: "Strategy", Slug: "strategy"},
			{ID: uuid.New(), Name: "Mindset", Slug: "mindset"},
		}},
		llm:      newFakeLLM(t),
		registry: progress.NewRegistry(10, time.Minute),
	}
	h.orch = NewOrchestrator(h.store, h.llm.Client(), config.IngestConfig{
		MaxIdeas:         7,
		MaxTranscriptLen: 10_000,
		PromptCategories: []string{"Productivity", "Strategy", "Mindset"},
	}, WithProgress(h.registry))
	return h
}

func (h *harness) subscribe(t *testing.T, jobID string) *progress.Subscription {
	sub, err := h.registry.Register(jobID)
	require.Nil(t, err)
	t.Cleanup(sub.Close)
	return sub
}

func drain(sub *progress.Subscription) []progress.Event {
	var events []progress.Event
	for {
		select {
		case ev := <-sub.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func transcriptText() string {
	return "HOST: " + lorem.Paragraph(3, 6) + "\n\nGUEST: " + lorem.Paragraph(3, 6)
}

func TestProcessCreatesDigestAndIdeas(t *testing.T) {
	for n := 1; n <= 7; n++ {
		t.Run(fmt.Sprintf("%d ideas", n), func(t *testing.T) {
			h := newHarness(t)
			h.llm.Reply(makeReply("Compound growth beats linear progress", "Key insights.", makeIdeas(n)...))

			res, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText()})
			require.Nil(t, err)

			_, digests, ideas := h.store.counts()
			assert.Equal(t, 1, digests)
			assert.Equal(t, n, ideas)
			require.Len(t, res.Ideas, n)
			for i, idea := range res.Ideas {
				assert.Equal(t, res.Digest.ID, idea.DigestID)
				assert.Equal(t, i, idea.Position)
				assert.Equal(t, fmt.Sprintf("Idea %d", i+1), idea.Title)
			}
			assert.Equal(t, "Compound growth beats linear progress", res.Digest.Title)
			assert.Equal(t, "Key insights.", *res.Digest.Description)
			assert.Nil(t, res.Podcast)
		})
	}
}

func TestProcessProgressOrder(t *testing.T) {
	h := newHarness(t)
	sub := h.subscribe(t, "job-123")
	h.llm.Reply(makeReply("Thesis", "", makeIdeas(3)...))

	_, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText(), JobID: "job-123"})
	require.Nil(t, err)

	events := drain(sub)
	var stages []progress.Stage
	var pcts []int
	for _, ev := range events {
		stages = append(stages, ev.Stage)
		pcts = append(pcts, ev.Progress)
	}
	assert.Equal(t, []progress.Stage{
		progress.StageSending,
		progress.StageAnalyzing,
		progress.StageExtracting,
		progress.StageSaving,
		progress.StageSaving,
		progress.StageComplete,
	}, stages)
	assert.Equal(t, []int{5, 40, 60, 75, 85, 100}, pcts)
	assert.Equal(t, "Saving 3 ideas...", events[4].Message)
}

func TestProcessEmptyTranscript(t *testing.T) {
	h := newHarness(t)
	sub := h.subscribe(t, "job")
	h.llm.Reply(makeReply("Thesis", "", makeIdeas(2)...))

	_, err := h.orch.Process(context.Background(), Request{Transcript: "   \n\t", JobID: "job"})

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	msg, _ := PublicMessage(err)
	assert.Equal(t, "Transcript is required", msg)
	assert.Equal(t, 0, h.llm.Calls())
	assert.Equal(t, 0, h.store.begins)

	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, progress.StageError, events[0].Stage)
	assert.Equal(t, 0, events[0].Progress)
	assert.Equal(t, "Transcript is required", events[0].Message)
}

func TestProcessTranscriptTooLong(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Process(context.Background(), Request{Transcript: strings.Repeat("é", 10_001)})
	assert.True(t, IsValidation(err))
	assert.Equal(t, 0, h.llm.Calls())
}

func TestProcessNoIdeas(t *testing.T) {
	h := newHarness(t)
	sub := h.subscribe(t, "job")
	h.llm.Reply(makeReply("Thesis", "Nothing useful here."))

	_, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText(), JobID: "job"})

	assert.True(t, IsValidation(err))
	msg, _ := PublicMessage(err)
	assert.Equal(t, "No ideas extracted from transcript", msg)
	assert.Equal(t, 0, h.store.begins)
	_, digests, ideas := h.store.counts()
	assert.Equal(t, 0, digests)
	assert.Equal(t, 0, ideas)

	events := drain(sub)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, progress.StageError, last.Stage)
	for i := 1; i < len(events)-1; i++ {
		assert.GreaterOrEqual(t, events[i].Progress, events[i-1].Progress)
	}
}

func TestProcessSchemaViolation(t *testing.T) {
	h := newHarness(t)
	h.llm.Reply(makeReply("Thesis", "", replyIdea{Title: "Good", Summary: "s", ClarityScore: utils.P(11)}))

	_, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText()})

	assert.True(t, IsValidation(err))
	_, details := PublicMessage(err)
	assert.Contains(t, details, "clarity_score 11")
	assert.Equal(t, 0, h.store.begins)
}

func TestProcessWrongTypeInReply(t *testing.T) {
	h := newHarness(t)
	h.llm.Reply(`{"thesis": "Thesis", "ideas": [{"title": "Good", "summary": "s", "clarity_score": "8"}]}`)

	_, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText()})

	// Same status as an out-of-range score.
	assert.True(t, IsValidation(err))
	msg, details := PublicMessage(err)
	assert.Equal(t, "The AI response did not match the expected format", msg)
	assert.Contains(t, details, "clarity_score is a JSON string")
	assert.Equal(t, 0, h.store.begins)
}

func TestProcessMalformedReply(t *testing.T) {
	h := newHarness(t)
	h.llm.Reply(`Sure! Here is your JSON: {"thesis": "cut o`)

	_, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText()})

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	msg, details := PublicMessage(err)
	assert.Equal(t, "Failed to process transcript", msg)
	assert.Equal(t, "The summarization service returned an unreadable response", details)
	assert.NotContains(t, details, "cut o")
}

func TestProcessLLMFailure(t *testing.T) {
	h := newHarness(t)
	h.llm.Reply("")

	_, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText()})

	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	msg, details := PublicMessage(err)
	assert.Equal(t, "Failed to process transcript", msg)
	assert.Empty(t, details)
	assert.Contains(t, err.Error(), "secret upstream detail")
}

func TestProcessCategoryResolution(t *testing.T) {
	h := newHarness(t)
	h.llm.Reply(makeReply("Thesis", "",
		replyIdea{Title: "A", Summary: "s", Category: "productivity"},
		replyIdea{Title: "B", Summary: "s", Category: "MINDSET"},
		replyIdea{Title: "C", Summary: "s", Category: " Strategy "},
		replyIdea{Title: "D", Summary: "s", Category: "Underwater Basket Weaving"},
		replyIdea{Title: "E", Summary: "s"},
	))

	res, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText()})
	require.Nil(t, err)

	cats := h.store.categories
	require.Len(t, res.Ideas, 5)
	assert.Equal(t, cats[0].ID, *res.Ideas[0].CategoryID)
	assert.Equal(t, cats[2].ID, *res.Ideas[1].CategoryID)
	assert.Equal(t, cats[1].ID, *res.Ideas[2].CategoryID)
	assert.Nil(t, res.Ideas[3].CategoryID)
	assert.Nil(t, res.Ideas[4].CategoryID)
}

func TestProcessPodcastResolution(t *testing.T) {
	t.Run("unknown id", func(t *testing.T) {
		h := newHarness(t)
		h.llm.Reply(makeReply("Thesis", "", makeIdeas(2)...))

		res, err := h.orch.Process(context.Background(), Request{
			Transcript: transcriptText(),
			PodcastID:  uuid.NewString(),
		})
		require.Nil(t, err)
		assert.Nil(t, res.Podcast)
		for _, idea := range res.Ideas {
			assert.Nil(t, idea.PodcastID)
		}
	})
	t.Run("malformed id", func(t *testing.T) {
		h := newHarness(t)
		h.llm.Reply(makeReply("Thesis", "", makeIdeas(1)...))

		res, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText(), PodcastID: "not-a-uuid"})
		require.Nil(t, err)
		assert.Nil(t, res.Podcast)
	})
	t.Run("existing id", func(t *testing.T) {
		h := newHarness(t)
		existing := &models.Podcast{ID: uuid.New(), Name: "Acquired", NormalizedName: "acquired"}
		h.store.podcasts = append(h.store.podcasts, existing)
		h.llm.Reply(makeReply("Thesis", "", makeIdeas(2)...))

		res, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText(), PodcastID: existing.ID.String()})
		require.Nil(t, err)
		require.NotNil(t, res.Podcast)
		assert.Equal(t, existing.ID, res.Podcast.ID)
		for _, idea := range res.Ideas {
			assert.Equal(t, existing.ID, *idea.PodcastID)
		}
	})
	t.Run("find or create by name", func(t *testing.T) {
		h := newHarness(t)
		h.llm.Reply(makeReply("", "", makeIdeas(1)...))

		first, err := h.orch.Process(context.Background(), Request{
			Transcript:  transcriptText(),
			PodcastName: "The Tim  Ferriss Show",
			PodcastHost: "Tim Ferriss",
		})
		require.Nil(t, err)
		second, err := h.orch.Process(context.Background(), Request{
			Transcript:  transcriptText(),
			PodcastName: "the tim ferriss show",
		})
		require.Nil(t, err)

		podcasts, digests, _ := h.store.counts()
		assert.Equal(t, 1, podcasts)
		assert.Equal(t, 2, digests)
		assert.Equal(t, first.Podcast.ID, second.Podcast.ID)
		assert.Equal(t, "Tim Ferriss", *first.Podcast.Host)
		assert.Equal(t, "The Tim  Ferriss Show Digest", first.Digest.Title)
		assert.Equal(t, "Key insights extracted from The Tim  Ferriss Show", *first.Digest.Description)
	})
}

func TestProcessRollsBackOnStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.store.failIdeas = true
	sub := h.subscribe(t, "job")
	h.llm.Reply(makeReply("Thesis", "", makeIdeas(3)...))

	_, err := h.orch.Process(context.Background(), Request{
		Transcript:  transcriptText(),
		PodcastName: "New Show",
		JobID:       "job",
	})

	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	msg, details := PublicMessage(err)
	assert.Equal(t, "Failed to save ideas to database", msg)
	assert.Empty(t, details)

	podcasts, digests, ideas := h.store.counts()
	assert.Equal(t, 0, podcasts)
	assert.Equal(t, 0, digests)
	assert.Equal(t, 0, ideas)

	events := drain(sub)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, progress.StageError, last.Stage)
	assert.Equal(t, "Failed to save ideas to database", last.Message)
	assert.NotContains(t, last.Message, "foreign key")
}

func TestProcessCapsIdeas(t *testing.T) {
	h := newHarness(t)
	h.llm.Reply(makeReply("Thesis", "", makeIdeas(9)...))

	res, err := h.orch.Process(context.Background(), Request{Transcript: transcriptText()})
	require.Nil(t, err)
	assert.Len(t, res.Ideas, 7)
	assert.Equal(t, "Idea 7", res.Ideas[6].Title)
}

func TestProcessCallerOverrides(t *testing.T) {
	h := newHarness(t)
	h.llm.Reply(makeReply("AI thesis", "AI description", makeIdeas(1)...))

	res, err := h.orch.Process(context.Background(), Request{
		Transcript:        transcriptText(),
		DigestTitle:       "My Title",
		DigestDescription: "My description",
		DigestImageURL:    "https://img.example.com/cover.png",
	})
	require.Nil(t, err)
	assert.Equal(t, "My Title", res.Digest.Title)
	assert.Equal(t, "My description", *res.Digest.Description)
	assert.Equal(t, "https://img.example.com/cover.png", *res.Digest.ImageUrl)
}

type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if text, ok := f[url]; ok {
		return text, nil
	}
	return "", errors.New("connection refused")
}

func TestProcessTranscriptURL(t *testing.T) {
	h := newHarness(t)
	h.orch = NewOrchestrator(h.store, h.llm.Client(), config.IngestConfig{MaxIdeas: 7},
		WithTranscriptFetcher(fakeFetcher{"https://example.com/ep1": transcriptText()}),
	)
	h.llm.Reply(makeReply("Thesis", "", makeIdeas(2)...))

	res, err := h.orch.Process(context.Background(), Request{TranscriptURL: "https://example.com/ep1"})
	require.Nil(t, err)
	assert.Len(t, res.Ideas, 2)

	_, err = h.orch.Process(context.Background(), Request{TranscriptURL: "https://example.com/missing"})
	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	msg, _ := PublicMessage(err)
	assert.Equal(t, "Failed to fetch transcript", msg)
}

func TestDigestFallbacks(t *testing.T) {
	assert.Equal(t, "Given", DigestTitle(" Given ", "Thesis", "Show"))
	assert.Equal(t, "Thesis", DigestTitle("", "Thesis", "Show"))
	assert.Equal(t, "Show Digest", DigestTitle("", "  ", "Show"))
	assert.Equal(t, "Podcast Digest", DigestTitle("", "", ""))

	assert.Equal(t, "Given", DigestDescription("Given", "AI", "Show"))
	assert.Equal(t, "AI", DigestDescription("", "AI", "Show"))
	assert.Equal(t, "Key insights extracted from Show", DigestDescription("", "", "Show"))
	assert.Equal(t, "Key insights extracted from podcast transcript", DigestDescription("", "", ""))
}

func TestCategoryMap(t *testing.T) {
	id := uuid.New()
	m := CategoryMap([]*models.Category{{ID: id, Name: "Straße"}})
	assert.Equal(t, id, *m.Lookup("STRASSE"))
	assert.Equal(t, id, *m.Lookup("straße"))
	assert.Nil(t, m.Lookup(""))
	assert.Nil(t, m.Lookup("Street"))
}
