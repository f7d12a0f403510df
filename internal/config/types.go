package config

// Config is the full daemon configuration. JSON is the canonical decode
// format; YAML files are coerced to JSON first (see yaml.go) so both share
// the strict decoder.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	HTTP       HTTPConfig       `json:"http"`
	Telegram   TelegramConfig   `json:"telegram"`
	Discord    DiscordConfig    `json:"discord,omitempty"`
	Slack      SlackConfig      `json:"slack,omitempty"`
	Sessions   SessionsConfig   `json:"sessions,omitempty"`
	Forwarding ForwardingConfig `json:"forwarding"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
	Ops     OpsLogConfig  `json:"ops,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// OpsLogConfig mirrors WARN+ log lines to an operator chat.
type OpsLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel,omitempty"` // e.g. "telegram"
	To         string `json:"to,omitempty"`      // chat id within that channel
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type HTTPConfig struct {
	Addr string `json:"addr,omitempty"` // default "127.0.0.1:8780"
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`

	// DefaultAgent names the agent recorded on session routes learned from
	// incoming Telegram traffic.
	DefaultAgent string `json:"default_agent,omitempty"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
}

type SlackConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
}

// SessionsConfig controls the session route store.
type SessionsConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" or "none"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string

	// Retention drops routes not refreshed within this window ("720h").
	// Empty keeps routes forever.
	Retention string `json:"retention,omitempty"`

	// PruneSchedule is a cron expression for the prune job. Default daily.
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

// ForwardingConfig is the approval-forwarding section.
type ForwardingConfig struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode,omitempty"` // "session" | "targets" | "both"

	AgentFilter   []string        `json:"agent_filter,omitempty"`
	SessionFilter []string        `json:"session_filter,omitempty"`
	Targets       []ForwardTarget `json:"targets,omitempty"`
}

type ForwardTarget struct {
	Channel   string `json:"channel"`
	To        string `json:"to"`
	AccountID string `json:"account_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
}
