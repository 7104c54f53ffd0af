// Package session holds the client-side conversation state machine. It owns
// the ordered message list, the in-flight partial answer, and the buffered
// source chunks, and reconciles them into finalized history entries when a
// stream completes.
//
// A Session is driven from a single event loop (the TUI update loop or a CLI
// read loop) and is not safe for concurrent use.
package session

import (
	"errors"
	"fmt"
)

// Greeting is the fixed assistant message every new session starts with.
const Greeting = "Hi, what would you like to learn about these documents?"

// State is the lifecycle phase of a session. There is no error state;
// failures after the stream opens fold into finalization with a
// possibly-empty answer, and transport failures reset to Idle.
type State int

const (
	// StateIdle accepts a new question.
	StateIdle State = iota
	// StateSubmitting is the window between accepting a question and the
	// transport handshake completing.
	StateSubmitting
	// StateStreaming is the only state in which token and source events
	// are processed.
	StateStreaming
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sentinel errors for invalid transitions.
var (
	// ErrEmptyQuestion rejects a submit with no question text.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrBusy rejects a submit while a stream is in flight.
	ErrBusy = errors.New("a question is already in flight")

	// ErrNotStreaming rejects stream events outside StateStreaming.
	ErrNotStreaming = errors.New("no stream in progress")
)

// Role distinguishes the two message authors.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SourceChunk is one retrieved chunk attached to an assistant message.
type SourceChunk struct {
	Content  string
	Metadata map[string]string
}

// DocumentName returns the source document this chunk came from.
func (c SourceChunk) DocumentName() string {
	return c.Metadata["documentName"]
}

// Message is one entry of the conversation. Immutable once appended.
type Message struct {
	Role         Role
	Text         string
	SourceChunks []SourceChunk
}

// HistoryPair is one completed (question, answer) exchange. Pairs are
// transmitted with every request; the server accepts them but does not
// thread them into generation.
type HistoryPair struct {
	Question string
	Answer   string
}

// Session is the conversation state machine:
// Idle → Submitting → Streaming → (finalize) → Idle.
type Session struct {
	state          State
	messages       []Message
	pending        string
	pendingSources []SourceChunk
	history        []HistoryPair
	question       string
}

// New creates a Session in StateIdle containing only the greeting message.
func New() *Session {
	return &Session{
		state: StateIdle,
		messages: []Message{
			{Role: RoleAssistant, Text: Greeting},
		},
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return s.state
}

// Messages returns a copy of the finalized conversation.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Pending returns the partial answer accumulated so far. ok reports whether
// a stream is in flight (the partial answer may legitimately be empty).
func (s *Session) Pending() (text string, ok bool) {
	if s.state == StateIdle {
		return "", false
	}
	return s.pending, true
}

// History returns a copy of the completed (question, answer) pairs.
func (s *Session) History() []HistoryPair {
	out := make([]HistoryPair, len(s.history))
	copy(out, s.history)
	return out
}

// Question returns the question currently in flight, if any.
func (s *Session) Question() (string, bool) {
	if s.state == StateIdle {
		return "", false
	}
	return s.question, true
}

// Submit accepts a question and moves Idle → Submitting: the user message is
// appended and the partial answer is cleared to the empty string. An empty
// question or an in-flight stream leaves the state untouched.
func (s *Session) Submit(question string) error {
	if s.state != StateIdle {
		return fmt.Errorf("submit in state %s: %w", s.state, ErrBusy)
	}
	if question == "" {
		return ErrEmptyQuestion
	}

	s.messages = append(s.messages, Message{Role: RoleUser, Text: question})
	s.question = question
	s.pending = ""
	s.pendingSources = nil
	s.state = StateSubmitting
	return nil
}

// StreamOpened records the transport handshake completing:
// Submitting → Streaming.
func (s *Session) StreamOpened() error {
	if s.state != StateSubmitting {
		return fmt.Errorf("stream opened in state %s: %w", s.state, ErrNotStreaming)
	}
	s.state = StateStreaming
	return nil
}

// AppendToken appends one token to the partial answer, in arrival order.
// Only valid while streaming.
func (s *Session) AppendToken(token string) error {
	if s.state != StateStreaming {
		return fmt.Errorf("token in state %s: %w", s.state, ErrNotStreaming)
	}
	s.pending += token
	return nil
}

// SetSources replaces the buffered source chunks wholesale. Only valid
// while streaming; at most one such event arrives per stream.
func (s *Session) SetSources(chunks []SourceChunk) error {
	if s.state != StateStreaming {
		return fmt.Errorf("sources in state %s: %w", s.state, ErrNotStreaming)
	}
	s.pendingSources = chunks
	return nil
}

// Finalize handles the stream sentinel: the partial answer and buffered
// sources become a new assistant message, the (question, answer) pair is
// appended to history, and the session returns to Idle. The answer may be
// empty when generation failed server-side; it is finalized regardless.
func (s *Session) Finalize() error {
	if s.state != StateStreaming {
		return fmt.Errorf("finalize in state %s: %w", s.state, ErrNotStreaming)
	}

	s.messages = append(s.messages, Message{
		Role:         RoleAssistant,
		Text:         s.pending,
		SourceChunks: s.pendingSources,
	})
	s.history = append(s.history, HistoryPair{
		Question: s.question,
		Answer:   s.pending,
	})

	s.pending = ""
	s.pendingSources = nil
	s.question = ""
	s.state = StateIdle
	return nil
}

// TransportFailure resets the session to Idle without finalizing a message:
// the partial answer and buffered sources are dropped, no history entry is
// appended, and the already-appended user message stays. Calling it in Idle
// is a no-op, so defensive aborts on teardown are safe.
func (s *Session) TransportFailure() {
	s.pending = ""
	s.pendingSources = nil
	s.question = ""
	s.state = StateIdle
}
