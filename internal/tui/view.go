package tui

import (
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/docsage/docsage/internal/session"
)

// Layout constants for viewport height calculation.
const (
	separatorLines = 2 // Two separator lines (above and below input)
	helpLines      = 1 // Help bar height
	promptLines    = 1 // Prompt prefix line
	minViewport    = 3 // Minimum viewport height
)

// View implements tea.Model.
// Uses AltScreen with viewport for scrollable message history.
func (m *Model) View() tea.View {
	m.viewBuf.Reset()

	// Viewport (scrollable message area)
	m.viewBuf.WriteString(m.viewport.View())
	m.viewBuf.WriteString("\n")

	// Separator line above input
	m.viewBuf.WriteString(m.renderSeparator())
	m.viewBuf.WriteString("\n")

	// Input prompt - always show and always accept input
	m.viewBuf.WriteString(m.styles.Prompt.Render("> "))
	m.viewBuf.WriteString(m.input.View())
	m.viewBuf.WriteString("\n")

	// Separator line below input
	m.viewBuf.WriteString(m.renderSeparator())
	m.viewBuf.WriteString("\n")

	// Help bar (keyboard shortcuts)
	m.viewBuf.WriteString(m.renderStatusBar())

	v := tea.NewView(m.viewBuf.String())
	v.AltScreen = true
	return v
}

// rebuildViewportContent reconstructs the viewport content from the session
// and UI state. Called when messages, streaming output, or state changes.
func (m *Model) rebuildViewportContent() {
	var b strings.Builder

	// Banner (ASCII art) and tips
	b.WriteString(m.styles.RenderBanner())
	b.WriteString("\n")
	b.WriteString(m.styles.RenderWelcomeTips())
	b.WriteString("\n")

	// Finalized conversation from the session state machine
	for _, msg := range m.session.Messages() {
		switch msg.Role {
		case session.RoleUser:
			b.WriteString(m.styles.User.Render("You> "))
			b.WriteString(msg.Text)
		case session.RoleAssistant:
			b.WriteString(m.styles.Assistant.Render("Sage> "))
			b.WriteString(m.markdown.Render(msg.Text))
			if names := sourceNames(msg.SourceChunks); names != "" {
				b.WriteString("\n")
				b.WriteString(m.styles.System.Render("Sources: " + names))
			}
		}
		b.WriteString("\n\n")
	}

	// Current streaming output
	if pending, ok := m.session.Pending(); ok && pending != "" {
		b.WriteString(m.styles.Assistant.Render("Sage> "))
		b.WriteString(pending)
		b.WriteString("\n\n")
	}

	// Thinking indicator
	if m.state == StateThinking {
		b.WriteString(m.spinner.View())
		b.WriteString(" Thinking...\n\n")
	}

	// Transient notice (help output, errors, cancellations)
	switch m.noticeKind {
	case noticeSystem:
		b.WriteString(m.styles.System.Render(m.notice))
		b.WriteString("\n")
	case noticeError:
		b.WriteString(m.styles.Error.Render("Error: " + m.notice))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
}

// sourceNames returns the deduplicated document names of an answer's
// sources, in retrieval order.
func sourceNames(chunks []session.SourceChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(chunks))
	var names []string
	for _, c := range chunks {
		name := c.DocumentName()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// renderSeparator returns a horizontal line separator.
func (m *Model) renderSeparator() string {
	width := m.width
	if width <= 0 {
		width = 80 // Default width
	}
	return m.styles.Separator.Render(strings.Repeat("─", width))
}

// renderStatusBar returns state-appropriate keyboard shortcut help, with the
// filter state appended when enabled.
func (m *Model) renderStatusBar() string {
	var bindings []key.Binding
	switch m.state {
	case StateInput:
		bindings = []key.Binding{
			m.keys.Submit, m.keys.NewLine, m.keys.History,
			m.keys.Cancel, m.keys.Quit, m.keys.ScrollUp,
		}
	case StateThinking, StateStreaming:
		bindings = []key.Binding{
			m.keys.EscCancel, m.keys.Cancel,
			m.keys.ScrollUp, m.keys.ScrollDown,
		}
	}

	bar := m.help.ShortHelpView(bindings)
	if m.filterEnabled {
		status := "filter: on"
		if len(m.selectedDocs) > 0 {
			status += " (" + strings.Join(m.selectedDocs, ", ") + ")"
		}
		bar += "  " + m.styles.StatusBar.Render(status)
	}
	return bar
}
