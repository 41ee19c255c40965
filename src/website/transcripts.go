package website

import (
	"context"
	"net/http"

	"github.com/thetakeaway/takeaway/src/ingest"
)

type ProcessTranscriptResponse struct {
	Success    bool     `json:"success"`
	Digest     Digest   `json:"digest"`
	IdeasCount int      `json:"ideasCount"`
	Ideas      []Idea   `json:"ideas"`
	Podcast    *Podcast `json:"podcast"`
}

func ProcessTranscript(c *RequestContext) ResponseData {
	var req ingest.Request
	if err := c.ReadJson(&req); err != nil {
		return c.ErrorResponse(http.StatusBadRequest, err)
	}

	// Ingestion keeps going if the client hangs up. The LLM client bounds the
	// slow part with its own timeout.
	ctx := context.WithoutCancel(c)

	c.Perf.StartBlock("INGEST", "Process transcript")
	result, err := c.Deps.Ingester.Process(ctx, req)
	c.Perf.EndBlock()
	if err != nil {
		// Process has already logged the failure, so the error is not
		// attached to the response.
		status := http.StatusInternalServerError
		if ingest.IsValidation(err) {
			status = http.StatusBadRequest
		}
		msg, details := ingest.PublicMessage(err)
		return JsonResponse(status, ErrorBody{Error: msg, Details: details}, c.Perf)
	}

	res := ProcessTranscriptResponse{
		Success:    true,
		Digest:     DigestToJson(result.Digest),
		IdeasCount: len(result.Ideas),
		Ideas:      make([]Idea, 0, len(result.Ideas)),
		Podcast:    PodcastToJson(result.Podcast),
	}
	for _, idea := range result.Ideas {
		res.Ideas = append(res.Ideas, IdeaToJson(idea))
	}
	return JsonResponse(http.StatusOK, res, c.Perf)
}
