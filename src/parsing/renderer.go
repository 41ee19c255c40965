package parsing

import (
	"io"
	"regexp"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
)

// Writes only the text of a document. Block boundaries become spaces.
type plaintextRenderer struct{}

var _ renderer.Renderer = plaintextRenderer{}

var backslashRegex = regexp.MustCompile("\\\\(?P<char>[\\\\\\x60!\"#$%&'()*+,-./:;<=>?@\\[\\]^_{|}~])")

func (r plaintextRenderer) Render(w io.Writer, source []byte, n ast.Node) error {
	return ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := n.(type) {
		case *ast.Text:
			if _, err := w.Write(backslashRegex.ReplaceAll(n.Text(source), []byte("$1"))); err != nil {
				return ast.WalkStop, err
			}
			if n.SoftLineBreak() || n.HardLineBreak() {
				if _, err := w.Write([]byte(" ")); err != nil {
					return ast.WalkStop, err
				}
			}
		case *ast.String:
			if _, err := w.Write(n.Value); err != nil {
				return ast.WalkStop, err
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			// Code says little in a one-line preview.
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if _, err := w.Write([]byte(" ")); err != nil {
				return ast.WalkStop, err
			}
		}

		return ast.WalkContinue, nil
	})
}

func (r plaintextRenderer) AddOptions(...renderer.Option) {}
