package forward

import (
	"context"
	"errors"
	"testing"

	"github.com/ido2103/openclaw/internal/channel"
)

func resolverForTest(lookup SessionLookup) *Forwarder {
	return New(Deps{
		Config:   func() Config { return Config{} },
		Sessions: lookup,
		Channels: channel.Classifier{},
	})
}

func staticRoute(t *Target) SessionLookup {
	return SessionLookupFunc(func(context.Context, string) (*Target, error) {
		return t, nil
	})
}

func TestResolveTargetsDisabled(t *testing.T) {
	t.Parallel()
	f := resolverForTest(nil)
	cfg := Config{Enabled: false, Mode: ModeTargets, Targets: []Target{{Channel: "telegram", To: "1"}}}
	if got := f.resolveTargets(context.Background(), cfg, Request{ID: "x"}); got != nil {
		t.Fatalf("disabled config resolved %d targets", len(got))
	}
}

func TestResolveTargetsAgentFilter(t *testing.T) {
	t.Parallel()
	f := resolverForTest(nil)
	base := Config{
		Enabled:     true,
		Mode:        ModeTargets,
		AgentFilter: []string{"main"},
		Targets:     []Target{{Channel: "telegram", To: "1"}},
	}

	tests := []struct {
		name string
		req  Request
		want int
	}{
		{name: "explicit match", req: Request{ID: "a", Agent: "main"}, want: 1},
		{name: "explicit case fold", req: Request{ID: "b", Agent: "MAIN"}, want: 1},
		{name: "explicit miss", req: Request{ID: "c", Agent: "other"}, want: 0},
		{name: "derived from session key", req: Request{ID: "d", SessionKey: "agent:main:telegram:5"}, want: 1},
		{name: "derived miss", req: Request{ID: "e", SessionKey: "agent:other:telegram:5"}, want: 0},
		{name: "no agent at all", req: Request{ID: "f"}, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := f.resolveTargets(context.Background(), base, tt.req)
			if len(got) != tt.want {
				t.Fatalf("targets = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestResolveTargetsSessionFilter(t *testing.T) {
	t.Parallel()
	f := resolverForTest(nil)
	base := Config{
		Enabled: true,
		Mode:    ModeTargets,
		Targets: []Target{{Channel: "telegram", To: "1"}},
	}

	tests := []struct {
		name    string
		filter  []string
		session string
		want    int
	}{
		{name: "substring hit", filter: []string{"telegram"}, session: "agent:main:telegram:5", want: 1},
		{name: "substring miss", filter: []string{"discord"}, session: "agent:main:telegram:5", want: 0},
		{name: "regex hit", filter: []string{"^agent:main:.*$"}, session: "agent:main:telegram:5", want: 1},
		{name: "regex miss", filter: []string{"^agent:other:"}, session: "agent:main:telegram:5", want: 0},
		{name: "malformed degrades to substring", filter: []string{"main:["}, session: "agent:main:[x]", want: 1},
		{name: "malformed never matches as regex", filter: []string{"main:["}, session: "agent:main:x", want: 0},
		{name: "any pattern suffices", filter: []string{"nope", "telegram"}, session: "agent:main:telegram:5", want: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.SessionFilter = tt.filter
			got := f.resolveTargets(context.Background(), cfg, Request{ID: "x", SessionKey: tt.session})
			if len(got) != tt.want {
				t.Fatalf("targets = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestResolveTargetsDedupAcrossSources(t *testing.T) {
	t.Parallel()
	route := &Target{Channel: "tg", To: "777"}
	f := resolverForTest(staticRoute(route))
	cfg := Config{
		Enabled: true,
		Mode:    ModeBoth,
		Targets: []Target{
			{Channel: "telegram", To: "777"}, // same destination, alias spelling
			{Channel: "discord", To: "d1"},
		},
	}

	got := f.resolveTargets(context.Background(), cfg, Request{ID: "x", SessionKey: "agent:main:tg:777"})
	if len(got) != 2 {
		t.Fatalf("targets = %d, want 2 (dedup across alias spellings)", len(got))
	}
	if got[0].Source != SourceSession {
		t.Fatalf("first target source = %q, want session (session merged first)", got[0].Source)
	}
	if got[1].Channel != "discord" {
		t.Fatalf("second target = %+v, want discord", got[1])
	}
}

func TestResolveTargetsModeSelectsSources(t *testing.T) {
	t.Parallel()
	route := &Target{Channel: "telegram", To: "1"}
	f := resolverForTest(staticRoute(route))
	cfg := Config{
		Enabled: true,
		Targets: []Target{{Channel: "discord", To: "2"}},
	}
	req := Request{ID: "x", SessionKey: "agent:main:telegram:1"}

	cfg.Mode = ModeSession
	if got := f.resolveTargets(context.Background(), cfg, req); len(got) != 1 || got[0].To != "1" {
		t.Fatalf("session mode targets = %+v", got)
	}
	cfg.Mode = ModeTargets
	if got := f.resolveTargets(context.Background(), cfg, req); len(got) != 1 || got[0].To != "2" {
		t.Fatalf("targets mode targets = %+v", got)
	}
	cfg.Mode = ModeBoth
	if got := f.resolveTargets(context.Background(), cfg, req); len(got) != 2 {
		t.Fatalf("both mode targets = %d, want 2", len(got))
	}
}

func TestResolveTargetsSessionRouteEdgeCases(t *testing.T) {
	t.Parallel()
	cfg := Config{Enabled: true, Mode: ModeSession}
	req := Request{ID: "x", SessionKey: "agent:main:whatever"}

	// Lookup failure degrades to "no session target".
	failing := SessionLookupFunc(func(context.Context, string) (*Target, error) {
		return nil, errors.New("db gone")
	})
	if got := resolverForTest(failing).resolveTargets(context.Background(), cfg, req); len(got) != 0 {
		t.Fatalf("failing lookup produced targets: %+v", got)
	}

	// Non-deliverable route channels are skipped.
	weird := staticRoute(&Target{Channel: "carrier-pigeon", To: "coop"})
	if got := resolverForTest(weird).resolveTargets(context.Background(), cfg, req); len(got) != 0 {
		t.Fatalf("non-deliverable route produced targets: %+v", got)
	}

	// No session key means no lookup at all.
	if got := resolverForTest(staticRoute(&Target{Channel: "telegram", To: "1"})).
		resolveTargets(context.Background(), cfg, Request{ID: "x"}); len(got) != 0 {
		t.Fatalf("empty session key produced targets: %+v", got)
	}
}
