package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodReply = `{
  "thesis": "Compound growth beats linear progress",
  "description": "A breakdown of key insights.",
  "ideas": [
    {
      "title": " Small improvements create exponential returns ",
      "summary": "**Compounding** works.\n\n` + "```go\\nfmt.Println()\\n```" + `",
      "actionable_takeaway": "Start small.",
      "clarity_score": 9,
      "category": "Strategy"
    },
    {
      "title": "Systems beat goals",
      "summary": "Goals set direction; systems make progress.",
      "category": "productivity"
    }
  ]
}`

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences("```\n{\"a\":1}\n```\n"))
	assert.Equal(t, `{"a":1}`, StripCodeFences(`  {"a":1}  `))
	assert.Equal(t, "{\"a\":\"```x```\"}", StripCodeFences("```JSON\n{\"a\":\"```x```\"}```"))
}

func TestParseExtraction(t *testing.T) {
	t.Run("fenced", func(t *testing.T) {
		e, err := ParseExtraction("```json\n" + goodReply + "\n```")
		require.Nil(t, err)
		assert.Equal(t, "Compound growth beats linear progress", e.Thesis)
		require.Len(t, e.Ideas, 2)
		assert.Contains(t, e.Ideas[0].Summary, "```go")
		assert.Nil(t, e.Ideas[1].ClarityScore)
	})
	t.Run("surrounded by prose", func(t *testing.T) {
		e, err := ParseExtraction("Here is the idea map you asked for:\n\n" + goodReply + "\n\nLet me know if you want changes.")
		require.Nil(t, err)
		assert.Len(t, e.Ideas, 2)
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := ParseExtraction(`{"thesis": "cut o`)
		var malformed *MalformedError
		require.True(t, errors.As(err, &malformed))
		assert.Equal(t, `{"thesis": "cut o`, malformed.Snippet)
	})
	t.Run("wrong types", func(t *testing.T) {
		_, err := ParseExtraction(`{"ideas": "none"}`)
		var schemaErr *SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Contains(t, schemaErr.Error(), "ideas is a JSON string")
	})
	t.Run("clarity as a string", func(t *testing.T) {
		_, err := ParseExtraction(`{"thesis": "t", "ideas": [{"title": "t", "summary": "s", "clarity_score": "8"}]}`)
		var schemaErr *SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Contains(t, schemaErr.Error(), "clarity_score is a JSON string")
	})
	t.Run("not an object", func(t *testing.T) {
		_, err := ParseExtraction(`["thesis"]`)
		var schemaErr *SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Contains(t, schemaErr.Error(), "the reply is a JSON array")
	})
	t.Run("long garbage keeps whole runes", func(t *testing.T) {
		_, err := ParseExtraction(strings.Repeat("é", 300))
		var malformed *MalformedError
		require.True(t, errors.As(err, &malformed))
		assert.True(t, utf8.ValidString(malformed.Snippet))
		assert.Equal(t, 201, utf8.RuneCountInString(malformed.Snippet))
	})
}

func TestValidate(t *testing.T) {
	t.Run("trims and keeps good ideas", func(t *testing.T) {
		e, err := ParseExtraction(goodReply)
		require.Nil(t, err)
		dropped, err := e.Validate(7)
		require.Nil(t, err)
		assert.Equal(t, 0, dropped)
		assert.Equal(t, "Small improvements create exponential returns", e.Ideas[0].Title)
		assert.Equal(t, 9, *e.Ideas[0].Clarity())
		assert.Nil(t, e.Ideas[1].Clarity())
	})
	t.Run("no ideas", func(t *testing.T) {
		e := &Extraction{Thesis: "Nothing here"}
		_, err := e.Validate(7)
		assert.ErrorIs(t, err, ErrNoIdeas)
	})
	t.Run("schema problems", func(t *testing.T) {
		half := 8.5
		high := 11.0
		e := &Extraction{Ideas: []ExtractedIdea{
			{Title: "  ", Summary: "s"},
			{Title: "t", Summary: "s", ClarityScore: &half},
			{Title: "t", Summary: "", ClarityScore: &high},
		}}
		_, err := e.Validate(7)
		var schemaErr *SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Len(t, schemaErr.Problems, 4)
		assert.Contains(t, schemaErr.Error(), "idea 1 has no title")
		assert.Contains(t, schemaErr.Error(), "idea 2 has clarity_score 8.5")
		assert.Contains(t, schemaErr.Error(), "idea 3 has no summary")
	})
	t.Run("caps idea count", func(t *testing.T) {
		e := &Extraction{}
		for i := 0; i < 9; i++ {
			e.Ideas = append(e.Ideas, ExtractedIdea{Title: fmt.Sprintf("Idea %d", i), Summary: "s"})
		}
		dropped, err := e.Validate(7)
		require.Nil(t, err)
		assert.Equal(t, 2, dropped)
		assert.Len(t, e.Ideas, 7)
		assert.Equal(t, "Idea 6", e.Ideas[6].Title)
	})
}

func TestRenderPrompt(t *testing.T) {
	prompt, err := RenderPrompt("HOST: Welcome back to the show.", []string{"Productivity", "Mindset"}, 7)
	require.Nil(t, err)
	assert.Contains(t, prompt, "Extract 3–5 supporting ideas")
	assert.Contains(t, prompt, "Max 6 total nodes")
	assert.Contains(t, prompt, "One of: Productivity, Mindset")
	assert.Contains(t, prompt, "Podcast Transcript:\nHOST: Welcome back to the show.\n")
	assert.Contains(t, prompt, `"category": "Productivity"`)
	assert.True(t, strings.HasPrefix(prompt, "Build a learning-optimized idea map"))

	small, err := RenderPrompt("x", nil, 2)
	require.Nil(t, err)
	assert.Contains(t, small, "Extract 2–2 supporting ideas")
	assert.Contains(t, small, `"category": "Strategy"`)
}
