package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/tkdata"
)

// Where an ingestion's writes go. Every write for one ingestion happens inside
// a single Tx.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

type Tx interface {
	// Returns db.NotFound if there is no such podcast.
	FetchPodcast(ctx context.Context, id uuid.UUID) (*models.Podcast, error)
	FindOrCreatePodcast(ctx context.Context, input tkdata.PodcastInput) (*models.Podcast, error)
	CreateDigest(ctx context.Context, input tkdata.DigestInput) (*models.Digest, error)
	FetchCategories(ctx context.Context) ([]*models.Category, error)
	InsertIdeas(ctx context.Context, ideas []tkdata.IdeaInput) ([]*models.Idea, error)

	Commit(ctx context.Context) error
	// Safe to call after Commit.
	Rollback(ctx context.Context) error
}

type PostgresStore struct {
	Conn *pgxpool.Pool
}

var _ Store = &PostgresStore{}

func NewPostgresStore(conn *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Conn: conn}
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.Conn.Begin(ctx)
	if err != nil {
		return nil, oops.New(err, "failed to start ingestion transaction")
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) FetchPodcast(ctx context.Context, id uuid.UUID) (*models.Podcast, error) {
	return tkdata.FetchPodcast(ctx, t.tx, id)
}

func (t *postgresTx) FindOrCreatePodcast(ctx context.Context, input tkdata.PodcastInput) (*models.Podcast, error) {
	return tkdata.FindOrCreatePodcast(ctx, t.tx, input)
}

func (t *postgresTx) CreateDigest(ctx context.Context, input tkdata.DigestInput) (*models.Digest, error) {
	return tkdata.CreateDigest(ctx, t.tx, input)
}

func (t *postgresTx) FetchCategories(ctx context.Context) ([]*models.Category, error) {
	return tkdata.FetchCategories(ctx, t.tx)
}

func (t *postgresTx) InsertIdeas(ctx context.Context, ideas []tkdata.IdeaInput) ([]*models.Idea, error) {
	return tkdata.InsertIdeas(ctx, t.tx, ideas)
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
