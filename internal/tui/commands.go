package tui

import (
	"context"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/docsage/docsage/internal/client"
)

// apiCallTimeout bounds the short management calls (filter, documents).
const apiCallTimeout = 10 * time.Second

type filterStateMsg struct {
	enabled bool
	err     error
}

type documentsListedMsg struct {
	docs []client.DocumentInfo
	err  error
}

// fetchFilterState reads the server-side filter flag. Issued at startup so
// the UI reflects the persisted state before the first question.
func (m *Model) fetchFilterState() tea.Cmd {
	api := m.api
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, apiCallTimeout)
		defer cancel()
		enabled, err := api.Filter(ctx)
		return filterStateMsg{enabled: enabled, err: err}
	}
}

// toggleFilter flips the server-side filter flag.
func (m *Model) toggleFilter(enabled bool) tea.Cmd {
	api := m.api
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, apiCallTimeout)
		defer cancel()
		got, err := api.SetFilter(ctx, enabled)
		return filterStateMsg{enabled: got, err: err}
	}
}

// listDocuments fetches the indexed document names.
func (m *Model) listDocuments() tea.Cmd {
	api := m.api
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, apiCallTimeout)
		defer cancel()
		docs, err := api.Documents(ctx)
		return documentsListedMsg{docs: docs, err: err}
	}
}
