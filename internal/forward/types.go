// Package forward routes approval notifications to messaging destinations,
// tracks each request until it is resolved or expires, and updates the
// previously sent notifications in place when the outcome is known.
package forward

import (
	"strings"
	"time"
)

// Decision is the closed set of outcomes an approval can resolve to.
// Anything outside the set is treated as a denial.
type Decision string

const (
	DecisionAllowOnce   Decision = "allow-once"
	DecisionAllowAlways Decision = "allow-always"
	DecisionDeny        Decision = "deny"
)

// Request describes a command awaiting a human decision.
// Immutable once created; the id is caller-supplied and must be unique.
type Request struct {
	ID      string `json:"id"`
	Command string `json:"command"`

	Cwd   string `json:"cwd,omitempty"`
	Host  string `json:"host,omitempty"`
	Agent string `json:"agent,omitempty"`
	Tier  string `json:"tier,omitempty"`
	Ask   string `json:"ask,omitempty"`

	// SessionKey identifies the originating session; used for target
	// inference and for deriving the agent when Agent is empty.
	SessionKey string `json:"sessionKey,omitempty"`

	CreatedAtMs int64 `json:"createdAtMs"`
	ExpiresAtMs int64 `json:"expiresAtMs"`
}

// Resolution is the terminal outcome event for a request.
type Resolution struct {
	ID         string   `json:"id"`
	Decision   Decision `json:"decision"`
	ResolvedBy string   `json:"resolvedBy,omitempty"`
	TsMs       int64    `json:"ts,omitempty"`
}

// TargetSource records how a forwarding target was discovered.
type TargetSource string

const (
	SourceSession TargetSource = "session"
	SourceTarget  TargetSource = "target"
)

// Target is one destination that should receive the notification.
type Target struct {
	Channel   string       `json:"channel"`
	To        string       `json:"to"`
	AccountID string       `json:"accountId,omitempty"`
	ThreadID  string       `json:"threadId,omitempty"`
	Source    TargetSource `json:"source,omitempty"`
}

// dedupKey ignores Source on purpose: when a session-derived target and an
// explicit target coincide, the first-seen entry (session, merged first)
// wins and keeps its tag.
func (t Target) dedupKey(normalize func(string) string) string {
	return strings.Join([]string{normalize(t.Channel), t.To, t.AccountID, t.ThreadID}, "\x00")
}

// Mode selects where targets come from.
type Mode string

const (
	ModeSession Mode = "session"
	ModeTargets Mode = "targets"
	ModeBoth    Mode = "both"
)

// Config is the forwarding section of the runtime configuration.
// A fresh snapshot is pulled from the provider on every requested event.
type Config struct {
	Enabled bool
	Mode    Mode

	// AgentFilter, when non-empty, limits forwarding to requests whose
	// agent (explicit or parsed from the session key) is a member.
	AgentFilter []string

	// SessionFilter, when non-empty, requires the session key to match at
	// least one pattern: literal substring or regular expression. A pattern
	// that fails to compile degrades to substring-only matching.
	SessionFilter []string

	Targets []Target
}

// EditableRef is a handle to a previously sent message that can be updated
// in place when the request reaches its terminal state.
type EditableRef struct {
	ChannelID string
	MessageID string
	AccountID string
}

// pending is the live state for one in-flight request. Owned exclusively
// by the registry; removed the instant the request is resolved or expires.
type pending struct {
	req     Request
	targets []Target
	timer   *time.Timer
	refs    []EditableRef
}
