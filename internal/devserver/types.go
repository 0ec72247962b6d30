package devserver

import (
	"time"

	"aider-web/internal/protocol"
)

// Session is one chat session held by the reference backend.
type Session struct {
	ID          string
	Model       string
	ModelConfig protocol.ModelConfig
	// RepoPath is empty when the session has no repository.
	RepoPath  string
	CreatedAt time.Time
	// Files are the repository files added to the chat.
	Files []string
	// History alternates user and assistant turns.
	History []Turn
}

// Turn is one chat message in a session's history.
type Turn struct {
	Role    string
	Content string
}

// OutputEvent is one line of background tool output for a session.
type OutputEvent struct {
	SessionID string
	Output    string
	Timestamp time.Time
	// Seq orders events across sessions.
	Seq uint64
}

// Responder produces the assistant reply for a chat message.
type Responder interface {
	Respond(sess *Session, message string) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(sess *Session, message string) (string, error)

func (f ResponderFunc) Respond(sess *Session, message string) (string, error) {
	return f(sess, message)
}
