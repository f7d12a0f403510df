package transport

import "context"

// Address is one deliverable destination inside a channel:
// a chat/channel id plus optional account and thread qualifiers.
type Address struct {
	To        string
	AccountID string
	ThreadID  string
}

// MessageRef identifies a message a sink has produced.
// Sinks that cannot report ids return refs with an empty MessageID.
type MessageRef struct {
	Channel   string
	ChannelID string
	MessageID string
	AccountID string
	ChatID    string
}

// Rich is the platform-neutral structured representation of a lifecycle
// event. Each sink renders what its platform supports (Telegram renders the
// buttons as an inline keyboard, Discord an embed, Slack an attachment);
// the plain text that always accompanies it is the fallback.
type Rich struct {
	Title  string
	Body   string
	Footer string
	Color  int
	Fields []Field

	// Buttons are interactive controls. Only sinks that support callbacks
	// render them; an edit with Buttons == nil clears previous controls.
	Buttons []Button
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Button struct {
	Label string
	Data  string
}

// Sink delivers messages for exactly one channel kind.
//
// Send is a single best-effort attempt: no retry, no backoff. A sink may
// produce more than one message for a single call (e.g. length splitting),
// in which case every produced ref is returned.
type Sink interface {
	Channel() string
	Send(ctx context.Context, to Address, text string, rich *Rich) ([]MessageRef, error)
}

// Editor is implemented by sinks whose messages can be updated in place.
type Editor interface {
	Edit(ctx context.Context, ref MessageRef, text string, rich *Rich) error
}
