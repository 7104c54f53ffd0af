package tui

import (
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/docsage/docsage/internal/client"
	"github.com/docsage/docsage/internal/session"
)

// Slash command constants.
const (
	cmdHelp   = "/help"
	cmdClear  = "/clear"
	cmdDocs   = "/docs"
	cmdFilter = "/filter"
	cmdUse    = "/use"
	cmdExit   = "/exit"
	cmdQuit   = "/quit"
)

// keyMap holds key bindings for help bar display.
type keyMap struct {
	Submit     key.Binding
	NewLine    key.Binding
	History    key.Binding
	Cancel     key.Binding
	Quit       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	EscCancel  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		NewLine:    key.NewBinding(key.WithKeys("shift+enter"), key.WithHelp("s+enter", "newline")),
		History:    key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "history")),
		Cancel:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "cancel")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "exit")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		EscCancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

//nolint:gocyclo // Keyboard handler requires branching for all key combinations
func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	// Check for Ctrl modifier
	if k.Mod&tea.ModCtrl != 0 {
		switch k.Code {
		case 'c':
			return m.handleCtrlC()
		case 'd':
			cmd := m.cleanup()
			return m, cmd
		}
	}

	// Check special keys
	switch k.Code {
	case tea.KeyEnter:
		if m.state == StateInput {
			// Enter without Shift = submit
			// Shift+Enter = newline (pass through to textarea)
			if k.Mod&tea.ModShift == 0 {
				return m.handleSubmit()
			}
		}

	case tea.KeyUp:
		// Up at first line navigates history, otherwise pass to textarea
		if m.state == StateInput && m.input.Line() == 0 {
			return m.navigateHistory(-1)
		}

	case tea.KeyDown:
		// Down at last line navigates history, otherwise pass to textarea
		if m.state == StateInput && m.input.Line() == m.input.LineCount()-1 {
			return m.navigateHistory(1)
		}

	case tea.KeyEscape:
		if m.state == StateStreaming || m.state == StateThinking {
			return m.abortStream()
		}

	case tea.KeyPgUp:
		m.viewport.PageUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.PageDown()
		return m, nil
	}

	// Pass keys to textarea for typing - ALWAYS allow typing even during
	// streaming so users can prepare the next question
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleCtrlC() (tea.Model, tea.Cmd) {
	now := time.Now()

	// Double Ctrl+C within 1 second = quit
	if now.Sub(m.lastCtrlC) < time.Second {
		cmd := m.cleanup()
		return m, cmd
	}
	m.lastCtrlC = now

	switch m.state {
	case StateInput:
		m.input.Reset()
		return m, nil

	case StateThinking, StateStreaming:
		return m.abortStream()
	}

	return m, nil
}

// abortStream cancels the in-flight stream and resets the session to idle
// without finalizing an assistant message.
func (m *Model) abortStream() (tea.Model, tea.Cmd) {
	m.releaseStream()
	m.session.TransportFailure()
	m.state = StateInput
	m.setNotice(noticeSystem, "(Canceled)")
	m.rebuildViewportContent()
	m.viewport.GotoBottom()
	return m, m.input.Focus()
}

func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		return m, nil
	}

	// Handle slash commands
	if strings.HasPrefix(query, "/") {
		return m.handleSlashCommand(query)
	}

	// Session rejects empty questions and double submits
	if err := m.session.Submit(query); err != nil {
		m.setNotice(noticeError, err.Error())
		m.rebuildViewportContent()
		return m, nil
	}

	// Add to history (enforce maxHistory cap)
	m.history = append(m.history, query)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.historyIdx = len(m.history)

	m.input.Reset()
	m.clearNotice()
	m.state = StateThinking
	m.rebuildViewportContent()
	m.viewport.GotoBottom()

	return m, tea.Batch(
		m.spinner.Tick,
		m.startStream(m.buildChatRequest(query)),
	)
}

// buildChatRequest snapshots the request at submit time: completed history
// pairs ride along, and the document selection is attached only while the
// filter flag is on.
func (m *Model) buildChatRequest(question string) client.ChatRequest {
	pairs := m.session.History()
	history := make([][2]string, len(pairs))
	for i, p := range pairs {
		history[i] = [2]string{p.Question, p.Answer}
	}

	req := client.ChatRequest{
		Question:      question,
		History:       history,
		FilterEnabled: m.filterEnabled,
	}
	if m.filterEnabled {
		req.DocumentFilterSelection = append([]string(nil), m.selectedDocs...)
		req.DocumentFilterCount = len(m.selectedDocs)
	}
	return req
}

func (m *Model) handleSlashCommand(cmd string) (tea.Model, tea.Cmd) {
	m.input.Reset()

	fields := strings.Fields(cmd)
	switch fields[0] {
	case cmdHelp:
		m.setNotice(noticeSystem, helpText())

	case cmdClear:
		// Fresh session: greeting restored, history dropped
		m.session = session.New()
		m.clearNotice()

	case cmdDocs:
		return m, m.listDocuments()

	case cmdFilter:
		return m.handleFilterCommand(fields[1:])

	case cmdUse:
		m.handleUseCommand(fields[1:])

	case cmdExit, cmdQuit:
		cleanupCmd := m.cleanup()
		return m, cleanupCmd

	default:
		m.setNotice(noticeError, "Unknown command: "+fields[0])
	}

	m.rebuildViewportContent()
	m.viewport.GotoBottom()
	return m, nil
}

// handleFilterCommand toggles or sets the server-side filter flag.
func (m *Model) handleFilterCommand(args []string) (tea.Model, tea.Cmd) {
	target := !m.filterEnabled
	if len(args) > 0 {
		switch args[0] {
		case "on":
			target = true
		case "off":
			target = false
		default:
			m.setNotice(noticeError, "Usage: /filter [on|off]")
			m.rebuildViewportContent()
			return m, nil
		}
	}
	return m, m.toggleFilter(target)
}

// handleUseCommand sets the document selection for filtered retrieval.
func (m *Model) handleUseCommand(args []string) {
	if len(args) == 0 {
		m.selectedDocs = nil
		m.setNotice(noticeSystem, "Document selection cleared.")
		return
	}
	m.selectedDocs = splitDocNames(strings.Join(args, " "))
	m.setNotice(noticeSystem, "Answering from: "+strings.Join(m.selectedDocs, ", "))
}

// splitDocNames parses a comma-separated document list.
func splitDocNames(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func helpText() string {
	return "Commands: /help, /clear, /docs, /filter [on|off], /use <doc,...>, /exit\n" +
		"Shortcuts:\n" +
		"  Enter: send question\n" +
		"  Shift+Enter: new line\n" +
		"  Esc / Ctrl+C: cancel answer\n" +
		"  Ctrl+D: exit\n" +
		"  Up/Down: history\n" +
		"  PgUp/PgDn: scroll"
}

func (m *Model) navigateHistory(delta int) (tea.Model, tea.Cmd) {
	if len(m.history) == 0 {
		return m, nil
	}

	m.historyIdx += delta

	if m.historyIdx < 0 {
		m.historyIdx = 0
	}
	if m.historyIdx > len(m.history) {
		m.historyIdx = len(m.history)
	}

	if m.historyIdx == len(m.history) {
		m.input.SetValue("")
	} else {
		m.input.SetValue(m.history[m.historyIdx])
		// Move cursor to end of text
		m.input.CursorEnd()
	}

	return m, nil
}

// cleanup cancels any active stream and returns the quit command.
func (m *Model) cleanup() tea.Cmd {
	// Cancel main context first - this stops all goroutines using m.ctx
	if m.ctxCancel != nil {
		m.ctxCancel()
		m.ctxCancel = nil
	}

	// Then cancel stream-specific context (may already be canceled via parent)
	m.releaseStream()

	return tea.Quit
}
