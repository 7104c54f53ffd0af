package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer styles the assistant's answers for the terminal. Answers
// arrive as Markdown (headings, lists, code fences) and are re-rendered on
// every viewport rebuild, so the glamour renderer is cached per width.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// glamourRenderer builds a terminal renderer wrapped at the given width.
func glamourRenderer(width int) (*glamour.TermRenderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Detect light/dark terminal
		glamour.WithWordWrap(width),
	)
}

// newMarkdownRenderer creates a renderer for the given width, falling back
// to 80 columns when the width is unknown. Returns nil if glamour fails to
// initialize; answers are then shown as plain text.
func newMarkdownRenderer(width int) *markdownRenderer {
	if width <= 0 {
		width = 80
	}

	r, err := glamourRenderer(width)
	if err != nil {
		return nil
	}

	return &markdownRenderer{renderer: r, width: width}
}

// UpdateWidth rebuilds the renderer for a new terminal width. A no-op when
// the width is unchanged or invalid; reports whether a rebuild happened.
func (m *markdownRenderer) UpdateWidth(width int) bool {
	if m == nil || width <= 0 || m.width == width {
		return false
	}

	r, err := glamourRenderer(width)
	if err != nil {
		// Keep rendering at the old width rather than dropping styling
		return false
	}

	m.renderer = r
	m.width = width
	return true
}

// Render converts a Markdown answer to styled terminal output. Any failure
// degrades to the unstyled text instead of hiding the answer.
func (m *markdownRenderer) Render(markdown string) string {
	if m == nil || m.renderer == nil {
		return markdown
	}

	rendered, err := m.renderer.Render(markdown)
	if err != nil {
		return markdown
	}

	// glamour pads the output with trailing newlines
	return strings.TrimSuffix(rendered, "\n")
}
