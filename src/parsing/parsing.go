package parsing

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/util"
	"mvdan.cc/xurls/v2"
)

// Renders idea summaries and takeaways to HTML. Raw HTML in the source is
// dropped, since the text comes from an LLM or an admin form.
var IdeaMarkdown = goldmark.New(
	goldmark.WithExtensions(makeGoldmarkExtensions()...),
)

// Renders Markdown to a single line of plain text, for previews in lists and
// the CLI.
var PlaintextMarkdown = goldmark.New(
	goldmark.WithExtensions(makeGoldmarkExtensions()...),
	goldmark.WithRenderer(plaintextRenderer{}),
)

func ParseMarkdown(source string, md goldmark.Markdown) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		panic(err)
	}

	return buf.String()
}

// A plain-text preview of at most maxRunes runes.
func Excerpt(source string, maxRunes int) string {
	text := strings.Join(strings.Fields(ParseMarkdown(source, PlaintextMarkdown)), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

// Bare links in idea text become anchors. Only http(s) URLs count.
var urlRegex = xurls.Strict()

func makeGoldmarkExtensions() []goldmark.Extender {
	return []goldmark.Extender{
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
		extension.NewLinkify(
			extension.WithLinkifyAllowedProtocols([][]byte{[]byte("http:"), []byte("https:")}),
			extension.WithLinkifyURLRegexp(urlRegex),
		),
		highlightExtension,
	}
}

var highlightExtension = highlighting.NewHighlighting(
	highlighting.WithFormatOptions(ChromaOptions...),
	highlighting.WithWrapperRenderer(func(w util.BufWriter, context highlighting.CodeBlockContext, entering bool) {
		if entering {
			w.WriteString(`<pre class="takeaway-code">`)
		} else {
			w.WriteString(`</pre>`)
		}
	}),
)
