package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/thetakeaway/takeaway/src/models"
	"github.com/thetakeaway/takeaway/src/utils"
)

// What the model is asked to return.
type Extraction struct {
	Thesis      string          `json:"thesis"`
	Description string          `json:"description"`
	Ideas       []ExtractedIdea `json:"ideas"`
}

type ExtractedIdea struct {
	Title              string `json:"title"`
	Summary            string `json:"summary"`
	ActionableTakeaway string `json:"actionable_takeaway"`
	// A float so that 8.5 is reported as a bad score instead of a parse error.
	ClarityScore *float64 `json:"clarity_score"`
	Category     string   `json:"category"`
}

// Only valid after Validate.
func (idea ExtractedIdea) Clarity() *int {
	if idea.ClarityScore == nil {
		return nil
	}
	score := int(*idea.ClarityScore)
	return &score
}

var ErrNoIdeas = errors.New("No ideas extracted from transcript")

// The reply was not JSON.
type MalformedError struct {
	Err     error
	Snippet string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("LLM reply is not valid JSON: %v", e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// The reply parsed, but breaks the rules for what an extraction may contain.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "LLM reply does not match the expected schema: " + strings.Join(e.Problems, "; ")
}

var (
	reLeadingFence  = regexp.MustCompile("^```[a-zA-Z]*[ \t]*\r?\n?")
	reTrailingFence = regexp.MustCompile("\r?\n?```[ \t]*$")
)

// Removes a Markdown code fence wrapped around the whole reply, if there is
// one. Fences inside the JSON (in a summary, say) are left alone.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = reLeadingFence.ReplaceAllString(s, "")
	s = reTrailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

/*
Parses the model's reply. Models sometimes add a sentence before or after the
JSON despite being told not to, so if the cleaned reply does not parse, the
outermost {...} span is tried before giving up.
*/
func ParseExtraction(reply string) (*Extraction, error) {
	cleaned := StripCodeFences(reply)

	extraction, err := decodeExtraction(cleaned)
	if err == nil {
		return extraction, nil
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return nil, err
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		retry, retryErr := decodeExtraction(cleaned[start : end+1])
		if retryErr == nil || errors.As(retryErr, &schemaErr) {
			return retry, retryErr
		}
	}

	return nil, &MalformedError{Err: err, Snippet: utils.Truncate(cleaned, 200)}
}

// Well-formed JSON with a value of the wrong type is reported as a
// *SchemaError, the same as an out-of-range value.
func decodeExtraction(s string) (*Extraction, error) {
	var extraction Extraction
	err := json.Unmarshal([]byte(s), &extraction)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "the reply"
		}
		return nil, &SchemaError{Problems: []string{
			fmt.Sprintf("%s is a JSON %s; expected %s", field, typeErr.Value, typeErr.Type),
		}}
	} else if err != nil {
		return nil, err
	}
	return &extraction, nil
}

/*
Checks the extraction before anything is persisted. Text fields are trimmed
in place. Returns ErrNoIdeas if there are no ideas at all, or a *SchemaError
listing every problem found. Ideas beyond maxIdeas are dropped and the number
dropped is returned.
*/
func (e *Extraction) Validate(maxIdeas int) (dropped int, err error) {
	e.Thesis = strings.TrimSpace(e.Thesis)
	e.Description = strings.TrimSpace(e.Description)

	if len(e.Ideas) == 0 {
		return 0, ErrNoIdeas
	}

	var problems []string
	for i := range e.Ideas {
		idea := &e.Ideas[i]
		idea.Title = models.CleanTitle(idea.Title)
		idea.Summary = strings.TrimSpace(idea.Summary)
		idea.ActionableTakeaway = strings.TrimSpace(idea.ActionableTakeaway)
		idea.Category = strings.TrimSpace(idea.Category)

		if idea.Title == "" {
			problems = append(problems, fmt.Sprintf("idea %d has no title", i+1))
		}
		if idea.Summary == "" {
			problems = append(problems, fmt.Sprintf("idea %d has no summary", i+1))
		}
		if idea.ClarityScore != nil {
			score := *idea.ClarityScore
			if score != math.Trunc(score) || score < models.MinClarityScore || score > models.MaxClarityScore {
				problems = append(problems, fmt.Sprintf("idea %d has clarity_score %v; expected a whole number from %d to %d", i+1, score, models.MinClarityScore, models.MaxClarityScore))
			}
		}
	}
	if len(problems) > 0 {
		return 0, &SchemaError{Problems: problems}
	}

	if maxIdeas > 0 && len(e.Ideas) > maxIdeas {
		dropped = len(e.Ideas) - maxIdeas
		e.Ideas = e.Ideas[:maxIdeas]
	}
	return dropped, nil
}
