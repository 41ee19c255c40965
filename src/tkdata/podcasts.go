package tkdata

import (
	"context"

	"github.com/google/uuid"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/oops"
)

func FetchPodcasts(ctx context.Context, dbConn db.ConnOrTx) ([]*models.Podcast, error) {
	podcasts, err := db.Query[models.Podcast](ctx, dbConn,
		`
		---- Fetch podcasts
		SELECT $columns
		FROM podcast
		ORDER BY name
		`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch podcasts")
	}
	return podcasts, nil
}

// Returns db.NotFound if there is no such podcast.
func FetchPodcast(ctx context.Context, dbConn db.ConnOrTx, id uuid.UUID) (*models.Podcast, error) {
	podcast, err := db.QueryOne[models.Podcast](ctx, dbConn,
		`
		---- Fetch podcast
		SELECT $columns
		FROM podcast
		WHERE id = $1
		`,
		id,
	)
	if err != nil {
		if err == db.NotFound {
			return nil, db.NotFound
		}
		return nil, oops.New(err, "failed to fetch podcast")
	}
	return podcast, nil
}

type PodcastInput struct {
	Name     string
	Host     *string
	Url      *string
	ImageUrl *string
}

/*
Returns the podcast whose normalized name matches, creating it if there is
none. Details the existing row is missing (host, url, image) are filled in from
the input; details it already has are left alone.
*/
func FindOrCreatePodcast(ctx context.Context, dbConn db.ConnOrTx, input PodcastInput) (*models.Podcast, error) {
	normalized := models.NormalizePodcastName(input.Name)
	if normalized == "" {
		return nil, oops.New(nil, "podcast name is empty")
	}

	podcast, err := db.QueryOne[models.Podcast](ctx, dbConn,
		`
		---- Find or create podcast
		INSERT INTO podcast (name, normalized_name, host, url, image_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (normalized_name) DO UPDATE SET
			host = COALESCE(podcast.host, EXCLUDED.host),
			url = COALESCE(podcast.url, EXCLUDED.url),
			image_url = COALESCE(podcast.image_url, EXCLUDED.image_url)
		RETURNING $columns
		`,
		input.Name, normalized, input.Host, input.Url, input.ImageUrl,
	)
	if err != nil {
		return nil, oops.New(err, "failed to find or create podcast")
	}
	return podcast, nil
}
