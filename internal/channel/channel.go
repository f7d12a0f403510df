// Package channel classifies messaging channel identifiers.
//
// Channel names arrive from configuration and from stored session routes in
// whatever spelling the surrounding system used; everything funnels through
// Normalize before comparison or registry lookup.
package channel

import "strings"

const (
	Telegram = "telegram"
	Discord  = "discord"
	Slack    = "slack"
)

// Editable is the single channel kind whose messages can be updated in
// place after sending.
const Editable = Telegram

var aliases = map[string]string{
	"tg":        Telegram,
	"telegram":  Telegram,
	"dc":        Discord,
	"discord":   Discord,
	"slack":     Slack,
	"slack-bot": Slack,
}

var deliverable = map[string]bool{
	Telegram: true,
	Discord:  true,
	Slack:    true,
}

// Normalize maps a channel spelling to its canonical name.
// Unknown spellings pass through unchanged so callers can log them.
func Normalize(ch string) string {
	c := strings.ToLower(strings.TrimSpace(ch))
	if canon, ok := aliases[c]; ok {
		return canon
	}
	return c
}

// Deliverable reports whether the forwarder knows how to send to ch.
func Deliverable(ch string) bool {
	return deliverable[Normalize(ch)]
}

// IsEditable reports whether ch supports in-place message updates.
func IsEditable(ch string) bool {
	return Normalize(ch) == Editable
}

// Classifier is the injectable form of this package, so tests can narrow
// or widen the channel set without touching globals.
type Classifier struct{}

func (Classifier) Normalize(ch string) string { return Normalize(ch) }
func (Classifier) Deliverable(ch string) bool { return Deliverable(ch) }
func (Classifier) IsEditable(ch string) bool  { return IsEditable(ch) }
func (Classifier) EditableKind() string       { return Editable }
