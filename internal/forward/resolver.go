package forward

import (
	"context"
	"regexp"
	"strings"

	"github.com/ido2103/openclaw/internal/session"
	"github.com/ido2103/openclaw/pkg/logx"
)

// resolveTargets turns (config, request) into an ordered, deduplicated
// target list. An empty result means forwarding does not proceed: no timer,
// no send. Filter rejections are silent by design; they are configuration,
// not errors.
func (f *Forwarder) resolveTargets(ctx context.Context, cfg Config, req Request) []Target {
	if !cfg.Enabled {
		return nil
	}

	agent := req.Agent
	if agent == "" {
		agent = session.ParseKey(req.SessionKey).Agent
	}
	if len(cfg.AgentFilter) > 0 && !containsFold(cfg.AgentFilter, agent) {
		f.log.Debug("forwarding suppressed by agent filter",
			logx.String("id", req.ID), logx.String("agent", agent))
		return nil
	}
	if len(cfg.SessionFilter) > 0 && !matchesAnyPattern(req.SessionKey, cfg.SessionFilter) {
		f.log.Debug("forwarding suppressed by session filter", logx.String("id", req.ID))
		return nil
	}

	var out []Target
	seen := map[string]bool{}
	add := func(t Target) {
		key := t.dedupKey(f.channels.Normalize)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, t)
	}

	// Session target first, so a coinciding explicit target dedups against
	// it and the session tag is the one kept.
	if cfg.Mode == ModeSession || cfg.Mode == ModeBoth {
		if t := f.sessionTarget(ctx, req); t != nil {
			add(*t)
		}
	}
	if cfg.Mode == ModeTargets || cfg.Mode == ModeBoth {
		for _, t := range cfg.Targets {
			t.Source = SourceTarget
			add(t)
		}
	}
	return out
}

func (f *Forwarder) sessionTarget(ctx context.Context, req Request) *Target {
	if f.sessions == nil || req.SessionKey == "" {
		return nil
	}
	t, err := f.sessions.LastRoute(ctx, req.SessionKey)
	if err != nil {
		f.log.Warn("session route lookup failed",
			logx.String("id", req.ID), logx.String("session", req.SessionKey), logx.Err(err))
		return nil
	}
	if t == nil {
		return nil
	}
	if !f.channels.Deliverable(t.Channel) {
		f.log.Debug("session route channel not deliverable",
			logx.String("id", req.ID), logx.String("channel", t.Channel))
		return nil
	}
	t.Source = SourceSession
	return t
}

// matchesAnyPattern matches key against each pattern as a literal substring
// first, then as a regular expression. A malformed pattern never fails the
// match; it simply stays substring-only.
func matchesAnyPattern(key string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(key, p) {
			return true
		}
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
