package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ido2103/openclaw/pkg/logx"
)

func openTestStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	s, err := Open(Config{
		Driver:    "sqlite",
		Path:      filepath.Join(t.TempDir(), "routes.db"),
		Retention: retention,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		s, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || s != nil {
			t.Fatalf("Open(%q) = (%v, %v), want (nil, nil)", driver, s, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestRecordAndLastRoute(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	ctx := context.Background()

	key := "agent:main:telegram:42"
	if err := s.RecordRoute(ctx, Route{
		SessionKey: key, Channel: "telegram", Address: "42", ThreadID: "7",
	}); err != nil {
		t.Fatalf("RecordRoute: %v", err)
	}

	r, err := s.LastRoute(ctx, key)
	if err != nil {
		t.Fatalf("LastRoute: %v", err)
	}
	if r == nil || r.Channel != "telegram" || r.Address != "42" || r.ThreadID != "7" {
		t.Fatalf("LastRoute = %+v", r)
	}

	// Upsert replaces the previous route.
	if err := s.RecordRoute(ctx, Route{SessionKey: key, Channel: "discord", Address: "d9"}); err != nil {
		t.Fatalf("RecordRoute upsert: %v", err)
	}
	r, err = s.LastRoute(ctx, key)
	if err != nil {
		t.Fatalf("LastRoute after upsert: %v", err)
	}
	if r.Channel != "discord" || r.Address != "d9" || r.ThreadID != "" {
		t.Fatalf("upserted route = %+v", r)
	}
}

func TestLastRouteMissing(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	r, err := s.LastRoute(context.Background(), "agent:main:nope")
	if err != nil || r != nil {
		t.Fatalf("LastRoute missing = (%+v, %v), want (nil, nil)", r, err)
	}
}

func TestRecordRouteIgnoresEmptyKey(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	if err := s.RecordRoute(context.Background(), Route{Channel: "telegram", Address: "1"}); err != nil {
		t.Fatalf("RecordRoute empty key: %v", err)
	}
}

func TestPruneRespectsRetention(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, time.Hour)
	ctx := context.Background()

	if err := s.RecordRoute(ctx, Route{
		SessionKey: "old", Channel: "telegram", Address: "1",
		UpdatedAt: time.Now().Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("RecordRoute old: %v", err)
	}
	if err := s.RecordRoute(ctx, Route{
		SessionKey: "fresh", Channel: "telegram", Address: "2",
	}); err != nil {
		t.Fatalf("RecordRoute fresh: %v", err)
	}

	n, err := s.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
	if r, _ := s.LastRoute(ctx, "old"); r != nil {
		t.Fatalf("old route survived prune: %+v", r)
	}
	if r, _ := s.LastRoute(ctx, "fresh"); r == nil {
		t.Fatal("fresh route was pruned")
	}
}

func TestPruneWithoutRetentionIsNoop(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	ctx := context.Background()
	if err := s.RecordRoute(ctx, Route{
		SessionKey: "old", Channel: "telegram", Address: "1",
		UpdatedAt: time.Now().Add(-24 * 365 * time.Hour),
	}); err != nil {
		t.Fatalf("RecordRoute: %v", err)
	}
	n, err := s.Prune(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Prune = (%d, %v), want (0, nil)", n, err)
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	t.Parallel()
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
	if err := s.RecordRoute(context.Background(), Route{SessionKey: "x"}); err != ErrDisabled {
		t.Fatalf("nil RecordRoute err = %v, want ErrDisabled", err)
	}
	if _, err := s.LastRoute(context.Background(), "x"); err != ErrDisabled {
		t.Fatalf("nil LastRoute err = %v, want ErrDisabled", err)
	}
}
