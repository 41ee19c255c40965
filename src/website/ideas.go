package website

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/tkdata"
)

type IdeaRequest struct {
	DigestID           *uuid.UUID `json:"digest_id"`
	PodcastID          *uuid.UUID `json:"podcast_id"`
	CategoryID         *uuid.UUID `json:"category_id"`
	Title              string     `json:"title"`
	Summary            string     `json:"summary"`
	ActionableTakeaway *string    `json:"actionable_takeaway"`
	ClarityScore       *int       `json:"clarity_score"`
	Timestamp          *string    `json:"timestamp"`
}

func (r *IdeaRequest) validate() []string {
	var problems []string
	if r.DigestID == nil {
		problems = append(problems, "digest_id is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(r.Summary) == "" {
		problems = append(problems, "summary is required")
	}
	if r.ClarityScore != nil && !models.ClarityInRange(*r.ClarityScore) {
		problems = append(problems, fmt.Sprintf("clarity_score must be between %d and %d", models.MinClarityScore, models.MaxClarityScore))
	}
	return problems
}

const pgForeignKeyViolation = "23503"

func AdminCreateIdea(c *RequestContext) ResponseData {
	var req IdeaRequest
	if err := c.ReadJson(&req); err != nil {
		return c.ErrorResponse(http.StatusBadRequest, err)
	}
	if problems := req.validate(); len(problems) > 0 {
		return c.ErrorResponse(http.StatusBadRequest, &SafeError{
			Msg:     "Invalid idea",
			Details: strings.Join(problems, "; "),
		})
	}

	idea, err := tkdata.AppendIdea(c, c.Deps.Conn, tkdata.IdeaInput{
		DigestID:           *req.DigestID,
		PodcastID:          req.PodcastID,
		CategoryID:         req.CategoryID,
		Title:              models.CleanTitle(req.Title),
		Summary:            strings.TrimSpace(req.Summary),
		ActionableTakeaway: optionalString(req.ActionableTakeaway),
		ClarityScore:       req.ClarityScore,
		Timestamp:          optionalString(req.Timestamp),
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return c.ErrorResponse(http.StatusBadRequest, &SafeError{
				Wrapped: err,
				Msg:     "Invalid idea",
				Details: "the digest, podcast, or category does not exist",
			})
		}
		if errors.Is(err, db.NotFound) {
			return c.ErrorResponse(http.StatusNotFound, errDigestNotFound)
		}
		return c.ErrorResponse(http.StatusInternalServerError, NewSafeError(err, "Failed to save idea"))
	}

	c.Logger.Info().Stringer("ideaId", idea.ID).Stringer("digestId", idea.DigestID).Msg("created idea")
	return JsonResponse(http.StatusCreated, IdeaToJson(idea), c.Perf)
}
