package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thetakeaway/takeaway/src/config"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/llm"
	"github.com/thetakeaway/takeaway/src/logging"
	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/perf"
	"github.com/thetakeaway/takeaway/src/progress"
	"github.com/thetakeaway/takeaway/src/tkdata"
	"github.com/thetakeaway/takeaway/src/transcript"
	"github.com/thetakeaway/takeaway/src/utils"
	"golang.org/x/text/cases"
)

type Request struct {
	Transcript    string `json:"transcript"`
	TranscriptURL string `json:"transcriptUrl"`
	JobID         string `json:"jobId"`

	PodcastID   string `json:"podcastId"`
	PodcastName string `json:"podcastName"`
	PodcastHost string `json:"podcastHost"`

	DigestTitle       string `json:"digestTitle"`
	DigestDescription string `json:"digestDescription"`
	DigestImageURL    string `json:"digestImageUrl"`
}

type Result struct {
	Digest  *models.Digest
	Ideas   []*models.Idea
	Podcast *models.Podcast // nil if no podcast was given or found
}

type Completer interface {
	Complete(ctx context.Context, prompt string) (llm.Completion, error)
}

type TranscriptFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Emitter interface {
	Emit(jobID string, ev progress.Event) bool
}

type Orchestrator struct {
	store       Store
	relay       Completer
	progress    Emitter
	transcripts TranscriptFetcher

	maxIdeas         int
	maxTranscriptLen int
	categories       []string
}

type Option func(*Orchestrator)

func WithProgress(e Emitter) Option {
	return func(o *Orchestrator) {
		o.progress = e
	}
}

func WithTranscriptFetcher(f TranscriptFetcher) Option {
	return func(o *Orchestrator) {
		o.transcripts = f
	}
}

func NewOrchestrator(store Store, relay Completer, cfg config.IngestConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:            store,
		relay:            relay,
		maxIdeas:         utils.OrDefault(cfg.MaxIdeas, 7),
		maxTranscriptLen: cfg.MaxTranscriptLen,
		categories:       cfg.PromptCategories,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) emit(jobID string, stage progress.Stage, pct int, msg string) {
	if o.progress == nil || jobID == "" {
		return
	}
	o.progress.Emit(jobID, progress.Event{Stage: stage, Progress: pct, Message: msg})
}

/*
Turns a transcript into a digest and its ideas.

Progress is reported to the job's subscriber, if the request has a job id, in
the order sending, analyzing, extracting, saving (twice), complete. A failure
at any point sends a single error event instead and nothing is written: the
podcast, digest, and ideas are saved in one transaction.

Errors are *ValidationError, *ParseError, or *UpstreamError. Use
PublicMessage to get text that is safe to show the caller.
*/
func (o *Orchestrator) Process(ctx context.Context, req Request) (res *Result, err error) {
	logger := logging.ExtractLogger(ctx).With().Str("jobId", req.JobID).Logger()
	ctx = logging.AttachLoggerToContext(&logger, ctx)

	defer func() {
		if err == nil {
			return
		}
		msg, details := PublicMessage(err)
		if details != "" {
			msg = msg + ": " + details
		}
		o.emit(req.JobID, progress.StageError, 0, msg)

		var event *zerolog.Event
		if IsValidation(err) {
			event = logger.Warn()
		} else {
			event = logger.Error().Stack()
		}
		event.Err(err).Msg("transcript ingestion failed")
	}()

	text, err := o.transcriptText(ctx, req)
	if err != nil {
		return nil, err
	}

	o.emit(req.JobID, progress.StageSending, 5, "Sending to Claude...")
	prompt, err := llm.RenderPrompt(text, o.categories, o.maxIdeas)
	if err != nil {
		return nil, &UpstreamError{Message: msgProcessTranscript, Err: err}
	}
	completion, err := o.relay.Complete(ctx, prompt)
	if err != nil {
		return nil, &UpstreamError{Message: msgProcessTranscript, Err: err}
	}

	o.emit(req.JobID, progress.StageAnalyzing, 40, "Analyzing transcript...")
	extraction, err := llm.ParseExtraction(completion.Text)
	if err != nil {
		var schemaErr *llm.SchemaError
		if errors.As(err, &schemaErr) {
			return nil, schemaValidationError(schemaErr)
		}
		var malformed *llm.MalformedError
		if errors.As(err, &malformed) {
			logger.Warn().
				Bool("truncated", completion.Truncated).
				Str("snippet", malformed.Snippet).
				Msg("unreadable LLM reply")
		}
		return nil, &ParseError{Err: err}
	}

	o.emit(req.JobID, progress.StageExtracting, 60, "Extracting ideas...")
	dropped, err := extraction.Validate(o.maxIdeas)
	if err != nil {
		if errors.Is(err, llm.ErrNoIdeas) {
			return nil, &ValidationError{Message: msgNoIdeas, Err: err}
		}
		var schemaErr *llm.SchemaError
		if errors.As(err, &schemaErr) {
			return nil, schemaValidationError(schemaErr)
		}
		return nil, &ParseError{Err: err}
	}
	if dropped > 0 {
		logger.Warn().Int("dropped", dropped).Int("max", o.maxIdeas).Msg("LLM returned too many ideas; keeping the first ones")
	}

	o.emit(req.JobID, progress.StageSaving, 75, "Saving to database...")
	res, err = o.save(ctx, req, extraction)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Stringer("digestId", res.Digest.ID).
		Int("ideas", len(res.Ideas)).
		Int("llmAttempts", completion.Attempts).
		Msg("transcript ingested")
	o.emit(req.JobID, progress.StageComplete, 100, "Complete!")
	return res, nil
}

func (o *Orchestrator) transcriptText(ctx context.Context, req Request) (string, error) {
	text := strings.TrimSpace(req.Transcript)
	if text == "" && strings.TrimSpace(req.TranscriptURL) != "" {
		if o.transcripts == nil {
			return "", &ValidationError{Message: msgTranscriptRequired, Details: "fetching transcripts by URL is not enabled"}
		}

		perf.ExtractPerf(ctx).StartBlock("HTTP", "Fetch transcript")
		fetched, err := o.transcripts.Fetch(ctx, strings.TrimSpace(req.TranscriptURL))
		perf.ExtractPerf(ctx).EndBlock()
		if err != nil {
			if errors.Is(err, transcript.ErrBadURL) || errors.Is(err, transcript.ErrNoText) {
				return "", &ValidationError{Message: msgFetchTranscript, Details: err.Error(), Err: err}
			}
			return "", &UpstreamError{Message: msgFetchTranscript, Err: err}
		}
		text = fetched
	}

	if text == "" {
		return "", &ValidationError{Message: msgTranscriptRequired}
	}
	if o.maxTranscriptLen > 0 && utf8.RuneCountInString(text) > o.maxTranscriptLen {
		return "", &ValidationError{
			Message: "Transcript is too long",
			Details: fmt.Sprintf("the limit is %d characters", o.maxTranscriptLen),
		}
	}
	return text, nil
}

func (o *Orchestrator) save(ctx context.Context, req Request, extraction *llm.Extraction) (res *Result, err error) {
	p := perf.ExtractPerf(ctx)
	p.StartBlock("INGEST", "Save digest")
	defer p.EndBlock()

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return nil, &UpstreamError{Message: msgCreateDigest, Err: err}
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logging.ExtractLogger(ctx).Error().Err(rbErr).Msg("failed to roll back ingestion")
		}
	}()

	podcast, err := o.resolvePodcast(ctx, tx, req)
	if err != nil {
		return nil, &UpstreamError{Message: msgCreateDigest, Err: err}
	}

	podcastLabel := strings.TrimSpace(req.PodcastName)
	digest, err := tx.CreateDigest(ctx, tkdata.DigestInput{
		Title:       DigestTitle(req.DigestTitle, extraction.Thesis, podcastLabel),
		Description: utils.P(DigestDescription(req.DigestDescription, extraction.Description, podcastLabel)),
		ImageUrl:    optional(req.DigestImageURL),
	})
	if err != nil {
		return nil, &UpstreamError{Message: msgCreateDigest, Err: err}
	}

	categories, err := tx.FetchCategories(ctx)
	if err != nil {
		return nil, &UpstreamError{Message: msgSaveIdeas, Err: err}
	}
	categoryIDs := CategoryMap(categories)

	var podcastID *uuid.UUID
	if podcast != nil {
		podcastID = &podcast.ID
	}

	inputs := make([]tkdata.IdeaInput, 0, len(extraction.Ideas))
	for i, idea := range extraction.Ideas {
		inputs = append(inputs, tkdata.IdeaInput{
			DigestID:           digest.ID,
			PodcastID:          podcastID,
			CategoryID:         categoryIDs.Lookup(idea.Category),
			Title:              idea.Title,
			Summary:            idea.Summary,
			ActionableTakeaway: optional(idea.ActionableTakeaway),
			ClarityScore:       idea.Clarity(),
			Position:           i,
		})
	}

	o.emit(req.JobID, progress.StageSaving, 85, fmt.Sprintf("Saving %d ideas...", len(inputs)))
	ideas, err := tx.InsertIdeas(ctx, inputs)
	if err != nil {
		return nil, &UpstreamError{Message: msgSaveIdeas, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &UpstreamError{Message: msgSaveIdeas, Err: oops.New(err, "failed to commit ingestion")}
	}

	return &Result{
		Digest:  digest,
		Ideas:   ideas,
		Podcast: podcast,
	}, nil
}

// A podcast id that is malformed or unknown resolves to no podcast rather
// than failing the ingestion.
func (o *Orchestrator) resolvePodcast(ctx context.Context, tx Tx, req Request) (*models.Podcast, error) {
	logger := logging.ExtractLogger(ctx)

	if rawID := strings.TrimSpace(req.PodcastID); rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			logger.Warn().Str("podcastId", rawID).Msg("ignoring malformed podcast id")
			return nil, nil
		}
		podcast, err := tx.FetchPodcast(ctx, id)
		if errors.Is(err, db.NotFound) {
			logger.Warn().Str("podcastId", rawID).Msg("podcast not found; saving ideas without one")
			return nil, nil
		} else if err != nil {
			return nil, err
		}
		return podcast, nil
	}

	if name := strings.TrimSpace(req.PodcastName); name != "" {
		return tx.FindOrCreatePodcast(ctx, tkdata.PodcastInput{
			Name: name,
			Host: optional(req.PodcastHost),
		})
	}

	return nil, nil
}

func schemaValidationError(err *llm.SchemaError) *ValidationError {
	return &ValidationError{
		Message: "The AI response did not match the expected format",
		Details: strings.Join(err.Problems, "; "),
		Err:     err,
	}
}

func DigestTitle(given, thesis, podcastName string) string {
	if t := strings.TrimSpace(given); t != "" {
		return t
	}
	if t := strings.TrimSpace(thesis); t != "" {
		return t
	}
	return utils.OrDefault(podcastName, "Podcast") + " Digest"
}

func DigestDescription(given, generated, podcastName string) string {
	if d := strings.TrimSpace(given); d != "" {
		return d
	}
	if d := strings.TrimSpace(generated); d != "" {
		return d
	}
	return "Key insights extracted from " + utils.OrDefault(podcastName, "podcast transcript")
}

// Category ids keyed by case-folded name. Built fresh for every ingestion so
// categories added since the last one are picked up.
type CategoryIDs map[string]uuid.UUID

func CategoryMap(categories []*models.Category) CategoryIDs {
	fold := cases.Fold()
	m := make(CategoryIDs, len(categories))
	for _, cat := range categories {
		m[fold.String(strings.TrimSpace(cat.Name))] = cat.ID
	}
	return m
}

// Returns nil for names that match no category.
func (m CategoryIDs) Lookup(name string) *uuid.UUID {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if id, ok := m[cases.Fold().String(name)]; ok {
		return &id
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
