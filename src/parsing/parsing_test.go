package parsing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkdown(t *testing.T) {
	t.Run("emphasis and paragraphs", func(t *testing.T) {
		html := ParseMarkdown("**Compounding** works through consistent marginal gains.\n\nKey concept here.", IdeaMarkdown)
		assert.Contains(t, html, "<strong>Compounding</strong>")
		assert.Equal(t, 2, strings.Count(html, "<p>"))
	})
	t.Run("numbered steps", func(t *testing.T) {
		html := ParseMarkdown("Start with:\n1. Identify one 1% improvement\n2. Track it daily", IdeaMarkdown)
		assert.Contains(t, html, "<ol>")
		assert.Equal(t, 2, strings.Count(html, "<li>"))
	})
	t.Run("fenced code blocks", func(t *testing.T) {
		html := ParseMarkdown("```go\nfunc main() {\n\tfmt.Println(\"Hello, world!\")\n}\n```", IdeaMarkdown)
		t.Log(html)
		assert.Equal(t, 1, strings.Count(html, "<pre"))
		assert.Contains(t, html, `class="takeaway-code"`)
		assert.Contains(t, html, "Println")
	})
	t.Run("raw html is dropped", func(t *testing.T) {
		html := ParseMarkdown("Hello <script>alert(1)</script> world", IdeaMarkdown)
		assert.NotContains(t, html, "<script>")
	})
	t.Run("bare links", func(t *testing.T) {
		html := ParseMarkdown("Read more at https://example.com/essay today.", IdeaMarkdown)
		assert.Contains(t, html, `<a href="https://example.com/essay">`)
	})
}

func TestExcerpt(t *testing.T) {
	source := "# Heading\n\n**Bold** start of a *long* paragraph.\n\n- one\n- two\n\n```\ncode()\n```"
	assert.Equal(t, "Heading Bold start of a long paragraph. one two", Excerpt(source, 100))
	assert.Equal(t, "Heading Bold…", Excerpt(source, 13))
}
