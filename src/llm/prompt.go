package llm

import (
	"github.com/thetakeaway/takeaway/src/templates"
)

type promptData struct {
	Transcript string
	Categories []string
	MaxIdeas   int
}

// The single user message sent for a transcript. The transcript is embedded
// verbatim.
func RenderPrompt(transcript string, categories []string, maxIdeas int) (string, error) {
	return templates.Render("prompt.txt", promptData{
		Transcript: transcript,
		Categories: categories,
		MaxIdeas:   maxIdeas,
	})
}
