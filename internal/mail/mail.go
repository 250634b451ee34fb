package mail

import (
	"context"
	"time"
)

// SendResult carries the provider-side identifiers of a delivered message.
// The thread id is what later reply polling keys on.
type SendResult struct {
	MessageID string
	ThreadID  string
}

// ThreadMessage is one message in a conversation thread, newest last.
type ThreadMessage struct {
	ID       string
	From     string
	Date     time.Time
	Snippet  string
	Body     string
}

// Provider abstracts the mail account used for sending and reading replies.
type Provider interface {
	// Send delivers an email and returns provider ids. A nil threadID starts
	// a new thread; otherwise the message is appended to that thread.
	Send(ctx context.Context, to, subject, body, threadID string) (SendResult, error)

	// Thread returns every message in a thread, oldest first.
	Thread(ctx context.Context, threadID string) ([]ThreadMessage, error)

	// Address returns the authenticated account's email address. Used to
	// tell our own messages apart from replies.
	Address(ctx context.Context) (string, error)
}
