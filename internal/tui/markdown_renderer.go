package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// minMarkdownWidth is the narrowest wrap width handed to glamour.
const minMarkdownWidth = 24

// markdownRenderer renders markdown for overlays. The renderer is rebuilt only when
// the wrap width changes and the last output is reused for identical input.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer

	lastInput  string
	lastOutput string
}

// render converts markdown into ANSI-styled text wrapped at width. On any
// renderer failure the raw markdown is returned.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	wrapWidth := max(width, minMarkdownWidth)

	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
		r.lastInput, r.lastOutput = "", ""
	}
	if r.lastOutput != "" && r.lastInput == markdown {
		return r.lastOutput
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	r.lastInput = markdown
	r.lastOutput = strings.TrimRight(rendered, "\n")
	return r.lastOutput
}
