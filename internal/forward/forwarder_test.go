package forward

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ido2103/openclaw/internal/channel"
	"github.com/ido2103/openclaw/internal/transport"
)

// fakeSink records sends and edits. Editable when edits is non-nil.
type fakeSink struct {
	ch       string
	editable bool
	failSend bool

	mu     sync.Mutex
	nextID int
	sends  []fakeSend
	edits  []fakeEdit
}

type fakeSend struct {
	to   string
	text string
	rich *transport.Rich
}

type fakeEdit struct {
	messageID string
	text      string
	rich      *transport.Rich
}

func (s *fakeSink) Channel() string { return s.ch }

func (s *fakeSink) Send(_ context.Context, to transport.Address, text string, rich *transport.Rich) ([]transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return nil, errors.New("send refused")
	}
	s.nextID++
	s.sends = append(s.sends, fakeSend{to: to.To, text: text, rich: rich})
	if !s.editable {
		return []transport.MessageRef{{Channel: s.ch, ChannelID: to.To}}, nil
	}
	return []transport.MessageRef{{
		Channel:   s.ch,
		ChannelID: to.To,
		MessageID: strconv.Itoa(s.nextID),
	}}, nil
}

func (s *fakeSink) Edit(_ context.Context, ref transport.MessageRef, text string, rich *transport.Rich) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, fakeEdit{messageID: ref.MessageID, text: text, rich: rich})
	return nil
}

func (s *fakeSink) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

func (s *fakeSink) editCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edits)
}

func newTestForwarder(cfg Config, sinks ...*fakeSink) (*Forwarder, *transport.Registry) {
	reg := transport.NewRegistry()
	for _, s := range sinks {
		reg.Register(s)
	}
	f := New(Deps{
		Config:   func() Config { return cfg },
		Sinks:    reg,
		Channels: channel.Classifier{},
	})
	return f, reg
}

func farFuture() int64 { return time.Now().Add(time.Hour).UnixMilli() }

func targetsConfig(targets ...Target) Config {
	return Config{Enabled: true, Mode: ModeTargets, Targets: targets}
}

func TestResolveEditsInPlaceExactlyOnce(t *testing.T) {
	t.Parallel()
	tg := &fakeSink{ch: channel.Telegram, editable: true}
	f, _ := newTestForwarder(targetsConfig(Target{Channel: "telegram", To: "100"}), tg)

	req := Request{ID: "r1", Command: "ls", ExpiresAtMs: farFuture()}
	f.HandleRequested(context.Background(), req)

	if tg.sendCount() != 1 {
		t.Fatalf("initial sends = %d, want 1", tg.sendCount())
	}
	if f.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", f.Pending())
	}

	f.HandleResolved(context.Background(), Resolution{ID: "r1", Decision: DecisionAllowOnce, ResolvedBy: "alice"})

	if tg.editCount() != 1 {
		t.Fatalf("edits = %d, want 1", tg.editCount())
	}
	if tg.sendCount() != 1 {
		t.Fatalf("sends after resolve = %d, want 1 (no fresh send to editable channel)", tg.sendCount())
	}
	if f.Pending() != 0 {
		t.Fatalf("pending after resolve = %d, want 0", f.Pending())
	}

	edit := tg.edits[0]
	if !strings.Contains(edit.text, "allowed once") || !strings.Contains(edit.text, "alice") {
		t.Fatalf("edit text = %q", edit.text)
	}
	if edit.rich == nil || len(edit.rich.Buttons) != 0 {
		t.Fatalf("edit should clear buttons, got %+v", edit.rich)
	}
}

func TestExpireSendsFreshToNonEditable(t *testing.T) {
	t.Parallel()
	dc := &fakeSink{ch: channel.Discord}
	f, _ := newTestForwarder(targetsConfig(Target{Channel: "discord", To: "d1"}), dc)

	f.HandleRequested(context.Background(), Request{ID: "r1", Command: "ls", ExpiresAtMs: farFuture()})
	if dc.sendCount() != 1 {
		t.Fatalf("initial sends = %d, want 1", dc.sendCount())
	}

	f.expire("r1")

	if dc.sendCount() != 2 {
		t.Fatalf("sends after expiry = %d, want 2", dc.sendCount())
	}
	if dc.editCount() != 0 {
		t.Fatalf("edits on non-editable channel = %d, want 0", dc.editCount())
	}
	if got := dc.sends[1].text; !strings.Contains(got, "Expired") {
		t.Fatalf("expiry text = %q", got)
	}
}

func TestMixedTargetsOneEditOneFreshSend(t *testing.T) {
	t.Parallel()
	tg := &fakeSink{ch: channel.Telegram, editable: true}
	dc := &fakeSink{ch: channel.Discord}
	f, _ := newTestForwarder(targetsConfig(
		Target{Channel: "telegram", To: "100"},
		Target{Channel: "discord", To: "d1"},
	), tg, dc)

	f.HandleRequested(context.Background(), Request{ID: "r1", Command: "ls", ExpiresAtMs: farFuture()})
	f.HandleResolved(context.Background(), Resolution{ID: "r1", Decision: DecisionDeny})

	if tg.editCount() != 1 || tg.sendCount() != 1 {
		t.Fatalf("telegram edits/sends = %d/%d, want 1/1", tg.editCount(), tg.sendCount())
	}
	if dc.sendCount() != 2 || dc.editCount() != 0 {
		t.Fatalf("discord sends/edits = %d/%d, want 2/0", dc.sendCount(), dc.editCount())
	}
}

func TestResolveAndExpireAreMutuallyExclusive(t *testing.T) {
	t.Parallel()
	tg := &fakeSink{ch: channel.Telegram, editable: true}
	f, _ := newTestForwarder(targetsConfig(Target{Channel: "telegram", To: "100"}), tg)

	f.HandleRequested(context.Background(), Request{ID: "r1", Command: "ls", ExpiresAtMs: farFuture()})
	f.HandleResolved(context.Background(), Resolution{ID: "r1", Decision: DecisionAllowAlways})

	// The timer path losing the race must be a strict no-op.
	f.expire("r1")
	// So must a duplicate resolution.
	f.HandleResolved(context.Background(), Resolution{ID: "r1", Decision: DecisionDeny})

	if tg.editCount() != 1 {
		t.Fatalf("edits = %d, want exactly 1", tg.editCount())
	}
	if !strings.Contains(tg.edits[0].text, "allowed always") {
		t.Fatalf("winning edit text = %q", tg.edits[0].text)
	}
}

// hookSink runs a callback inside the first Send, before recording it, so
// tests can interleave lifecycle events with an in-flight fan-out.
type hookSink struct {
	*fakeSink
	once       sync.Once
	beforeSend func()
}

func (s *hookSink) Send(ctx context.Context, to transport.Address, text string, rich *transport.Rich) ([]transport.MessageRef, error) {
	s.once.Do(func() {
		if s.beforeSend != nil {
			s.beforeSend()
		}
	})
	return s.fakeSink.Send(ctx, to, text, rich)
}

func TestResolutionDuringInitialFanOutIsNotLost(t *testing.T) {
	t.Parallel()
	tg := &fakeSink{ch: channel.Telegram, editable: true}
	hooked := &hookSink{fakeSink: tg}
	reg := transport.NewRegistry()
	reg.Register(hooked)
	f := New(Deps{
		Config:   func() Config { return targetsConfig(Target{Channel: "telegram", To: "100"}) },
		Sinks:    reg,
		Channels: channel.Classifier{},
	})
	// The entry is registered before the fan-out starts, so a resolution
	// arriving while the initial send is still executing must win cleanly.
	hooked.beforeSend = func() {
		f.HandleResolved(context.Background(), Resolution{ID: "r1", Decision: DecisionAllowOnce})
	}

	f.HandleRequested(context.Background(), Request{ID: "r1", Command: "ls", ExpiresAtMs: farFuture()})

	if f.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 (mid-delivery resolution lost)", f.Pending())
	}
	if tg.sendCount() != 1 {
		t.Fatalf("sends = %d, want 1 (initial send only)", tg.sendCount())
	}
	// The message ref surfaced only after the terminal path already ran, so
	// there is nothing to edit; the close-out must not fire twice either.
	if tg.editCount() != 0 {
		t.Fatalf("edits = %d, want 0", tg.editCount())
	}

	f.HandleResolved(context.Background(), Resolution{ID: "r1", Decision: DecisionDeny})
	f.expire("r1")
	if tg.editCount() != 0 || tg.sendCount() != 1 {
		t.Fatalf("late events produced traffic: sends=%d edits=%d", tg.sendCount(), tg.editCount())
	}
}

func TestResolutionForUnknownIDIsNoop(t *testing.T) {
	t.Parallel()
	tg := &fakeSink{ch: channel.Telegram, editable: true}
	f, _ := newTestForwarder(targetsConfig(Target{Channel: "telegram", To: "100"}), tg)

	f.HandleResolved(context.Background(), Resolution{ID: "ghost", Decision: DecisionDeny})
	if tg.sendCount() != 0 || tg.editCount() != 0 {
		t.Fatalf("unknown resolution produced traffic: sends=%d edits=%d", tg.sendCount(), tg.editCount())
	}
}

func TestDuplicateRequestIDIgnored(t *testing.T) {
	t.Parallel()
	tg := &fakeSink{ch: channel.Telegram, editable: true}
	f, _ := newTestForwarder(targetsConfig(Target{Channel: "telegram", To: "100"}), tg)

	req := Request{ID: "r1", Command: "ls", ExpiresAtMs: farFuture()}
	f.HandleRequested(context.Background(), req)
	f.HandleRequested(context.Background(), req)

	if tg.sendCount() != 1 {
		t.Fatalf("sends = %d, want 1 (duplicate id must not re-deliver)", tg.sendCount())
	}
	if f.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", f.Pending())
	}
}

func TestRequestWithoutIDDropped(t *testing.T) {
	t.Parallel()
	tg := &fakeSink{ch: channel.Telegram, editable: true}
	f, _ := newTestForwarder(targetsConfig(Target{Channel: "telegram", To: "100"}), tg)

	f.HandleRequested(context.Background(), Request{Command: "ls", ExpiresAtMs: farFuture()})
	if tg.sendCount() != 0 || f.Pending() != 0 {
		t.Fatalf("id-less request was processed: sends=%d pending=%d", tg.sendCount(), f.Pending())
	}
}

func TestPerTargetFailureIsolation(t *testing.T) {
	t.Parallel()
	tg := &fakeSink{ch: channel.Telegram, editable: true, failSend: true}
	dc := &fakeSink{ch: channel.Discord}
	f, _ := newTestForwarder(targetsConfig(
		Target{Channel: "telegram", To: "100"},
		Target{Channel: "discord", To: "d1"},
	), tg, dc)

	f.HandleRequested(context.Background(), Request{ID: "r1", Command: "ls", ExpiresAtMs: farFuture()})

	if dc.sendCount() != 1 {
		t.Fatalf("sibling delivery did not happen: discord sends = %d", dc.sendCount())
	}
	if f.Pending() != 1 {
		t.Fatalf("pending = %d, want 1 (failed send does not abort the request)", f.Pending())
	}

	// A resolution still closes out cleanly; no refs were collected from the
	// failed telegram send, so no edits happen.
	f.HandleResolved(context.Background(), Resolution{ID: "r1", Decision: DecisionDeny})
	if tg.editCount() != 0 {
		t.Fatalf("edits = %d, want 0", tg.editCount())
	}
	if dc.sendCount() != 2 {
		t.Fatalf("discord sends after resolve = %d, want 2", dc.sendCount())
	}
}

func TestMissingSinkSkipsTarget(t *testing.T) {
	t.Parallel()
	dc := &fakeSink{ch: channel.Discord}
	f, _ := newTestForwarder(targetsConfig(
		Target{Channel: "telegram", To: "100"}, // no telegram sink registered
		Target{Channel: "discord", To: "d1"},
	), dc)

	f.HandleRequested(context.Background(), Request{ID: "r1", Command: "ls", ExpiresAtMs: farFuture()})
	if dc.sendCount() != 1 {
		t.Fatalf("discord sends = %d, want 1", dc.sendCount())
	}
}

func TestExpiryTimerFires(t *testing.T) {
	t.Parallel()
	tg := &fakeSink{ch: channel.Telegram, editable: true}
	f, _ := newTestForwarder(targetsConfig(Target{Channel: "telegram", To: "100"}), tg)

	f.HandleRequested(context.Background(), Request{
		ID: "r1", Command: "ls",
		ExpiresAtMs: time.Now().Add(30 * time.Millisecond).UnixMilli(),
	})

	deadline := time.After(2 * time.Second)
	for f.Pending() != 0 {
		select {
		case <-deadline:
			t.Fatal("request never expired")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if tg.editCount() != 1 {
		t.Fatalf("edits after expiry = %d, want 1", tg.editCount())
	}
	if !strings.Contains(tg.edits[0].text, "Expired") {
		t.Fatalf("expiry edit text = %q", tg.edits[0].text)
	}
}

func TestStopCancelsAllPending(t *testing.T) {
	t.Parallel()
	tg := &fakeSink{ch: channel.Telegram, editable: true}
	f, _ := newTestForwarder(targetsConfig(Target{Channel: "telegram", To: "100"}), tg)

	for _, id := range []string{"a", "b", "c"} {
		f.HandleRequested(context.Background(), Request{ID: id, Command: "ls", ExpiresAtMs: farFuture()})
	}
	if f.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", f.Pending())
	}

	f.Stop()
	if f.Pending() != 0 {
		t.Fatalf("pending after stop = %d, want 0", f.Pending())
	}
	if tg.editCount() != 0 {
		t.Fatalf("stop fired terminal updates: edits = %d", tg.editCount())
	}
}
