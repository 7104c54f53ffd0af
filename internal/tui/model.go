// Package tui provides the Bubble Tea terminal client for docsage. It drives
// the session state machine from server-sent stream events delivered through
// the HTTP client.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/docsage/docsage/internal/client"
	"github.com/docsage/docsage/internal/session"
)

// State represents the TUI state machine.
type State int

// TUI state machine states. These track the UI loop; the conversation
// itself lives in the session state machine.
const (
	StateInput     State = iota // Awaiting user input
	StateThinking               // Request submitted, stream not yet open
	StateStreaming              // Tokens arriving
)

// Memory bound for command history.
const maxHistory = 100

// streamTimeout bounds a single answer stream.
const streamTimeout = 5 * time.Minute

// noticeKind selects the style a transient notice is rendered with.
type noticeKind int

const (
	noticeNone noticeKind = iota
	noticeSystem
	noticeError
)

// Model is the Bubble Tea model for the docsage chat client.
type Model struct {
	// Input (textarea for multi-line support, Shift+Enter for newline)
	input      textarea.Model
	history    []string
	historyIdx int

	// State
	state     State
	lastCtrlC time.Time

	// Conversation state machine
	session *session.Session

	// Transient notice shown under the conversation (help text, errors)
	notice     string
	noticeKind noticeKind

	// Output
	spinner spinner.Model
	viewBuf strings.Builder // Reusable buffer for View() to reduce allocations

	// Scrollable message viewport
	viewport viewport.Model

	// Help bar for keyboard shortcuts
	help help.Model
	keys keyMap

	// Stream management
	// Note: No sync.WaitGroup - Bubble Tea's event loop provides synchronization.
	streamCancel  context.CancelFunc
	streamEventCh <-chan client.Event

	// Document filter
	filterEnabled bool
	selectedDocs  []string

	// Dependencies
	api       *client.Client
	ctx       context.Context
	ctxCancel context.CancelFunc // For canceling all operations on exit

	// Dimensions
	width  int
	height int

	// Styles
	styles Styles

	// Markdown rendering (nil = graceful degradation to plain text)
	markdown *markdownRenderer
}

// New creates a Model for chat interaction against the given API client.
//
// IMPORTANT: ctx MUST be the same context passed to tea.WithContext()
// to ensure consistent cancellation behavior.
func New(ctx context.Context, api *client.Client) (*Model, error) {
	if api == nil {
		return nil, errors.New("tui.New: api client is required")
	}
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}

	// Create cancellable context for cleanup on exit
	ctx, cancel := context.WithCancel(ctx)

	// Enter submits, Shift+Enter adds newline (default behavior)
	ta := textarea.New()
	ta.Placeholder = "Ask about your documents..."
	ta.SetHeight(1)
	ta.SetWidth(120) // Updated on WindowSizeMsg
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	// No background colors, just simple text
	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{
		Focused: cleanStyle,
		Blurred: cleanStyle,
	})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// Disable built-in keyboard handling; keys are routed explicitly in
	// handleKey to avoid conflicts with textarea/history navigation.
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{}

	h := help.New()

	return &Model{
		api:       api,
		ctx:       ctx,
		ctxCancel: cancel,
		session:   session.New(),
		input:     ta,
		spinner:   sp,
		viewport:  vp,
		help:      h,
		keys:      newKeyMap(),
		styles:    DefaultStyles(),
		history:   make([]string, 0, maxHistory),
		markdown:  newMarkdownRenderer(80),
		width:     80, // Default width until WindowSizeMsg arrives
	}, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
		m.fetchFilterState(),
	)
}

// Run starts the TUI program and blocks until exit.
func Run(ctx context.Context, api *client.Client) error {
	m, err := New(ctx, api)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err = p.Run()
	return err
}

// setNotice replaces the transient notice line.
func (m *Model) setNotice(kind noticeKind, text string) {
	m.notice = text
	m.noticeKind = kind
}

// clearNotice removes the transient notice line.
func (m *Model) clearNotice() {
	m.notice = ""
	m.noticeKind = noticeNone
}
