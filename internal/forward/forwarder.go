package forward

import (
	"context"
	"time"

	"github.com/ido2103/openclaw/internal/eventbus"
	"github.com/ido2103/openclaw/internal/transport"
	"github.com/ido2103/openclaw/pkg/logx"
)

// ConfigProvider returns the current forwarding configuration snapshot.
// It is consulted on every requested event, so hot-reloaded config takes
// effect without restarting the forwarder.
type ConfigProvider func() Config

// SessionLookup resolves a session key to its last-known delivery route.
// A nil target with nil error means "no route recorded".
type SessionLookup interface {
	LastRoute(ctx context.Context, sessionKey string) (*Target, error)
}

// SessionLookupFunc adapts a function to the SessionLookup interface.
type SessionLookupFunc func(ctx context.Context, sessionKey string) (*Target, error)

func (fn SessionLookupFunc) LastRoute(ctx context.Context, sessionKey string) (*Target, error) {
	return fn(ctx, sessionKey)
}

// SinkSet is the view of the sink registry the forwarder needs.
type SinkSet interface {
	Sink(channel string) (transport.Sink, bool)
	Editor(channel string) (transport.Editor, bool)
}

// Classifier decides which channel spellings are deliverable and which
// single kind supports in-place edits.
type Classifier interface {
	Normalize(ch string) string
	Deliverable(ch string) bool
	IsEditable(ch string) bool
	EditableKind() string
}

// Metrics receives delivery/edit/outcome observations. All methods must be
// cheap and non-blocking; a nil Metrics disables instrumentation.
type Metrics interface {
	Delivery(channel, result string)
	Edit(result string)
	Outcome(kind string)
	SetPending(n int)
}

// Event types published on the bus.
const (
	EventRequested = "approval.requested"
	EventResolved  = "approval.resolved"
	EventExpired   = "approval.expired"
)

// Deps carries the forwarder's collaborators. Config, Sinks and Channels
// are required; the rest are optional and nil-safe, so tests can substitute
// any subset without runtime patching.
type Deps struct {
	Config   ConfigProvider
	Sessions SessionLookup
	Sinks    SinkSet
	Channels Classifier
	Bus      eventbus.Bus
	Metrics  Metrics
	Log      logx.Logger
	Now      func() time.Time
}

// Forwarder owns the pending registry and drives the request lifecycle.
// Multiple independent forwarders can coexist; nothing here is ambient.
type Forwarder struct {
	cfg      ConfigProvider
	sessions SessionLookup
	sinks    SinkSet
	channels Classifier
	bus      eventbus.Bus
	metrics  Metrics
	log      logx.Logger
	now      func() time.Time

	reg *registry
}

func New(deps Deps) *Forwarder {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Forwarder{
		cfg:      deps.Config,
		sessions: deps.Sessions,
		sinks:    deps.Sinks,
		channels: deps.Channels,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		log:      log,
		now:      now,
		reg:      newRegistry(),
	}
}

// HandleRequested routes the initial notification and arms the expiry
// timer. No-op when forwarding is disabled, the request is filtered out,
// no target survives resolution, or the id is already pending. The pending
// entry is registered before any delivery work starts, so a resolution
// racing the initial fan-out is observable.
func (f *Forwarder) HandleRequested(ctx context.Context, req Request) {
	if req.ID == "" {
		f.log.Warn("approval request without id dropped")
		return
	}
	cfg := f.cfg()
	targets := f.resolveTargets(ctx, cfg, req)
	if len(targets) == 0 {
		f.log.Debug("no forwarding targets resolved", logx.String("id", req.ID))
		return
	}

	if !f.reg.put(req.ID, &pending{req: req, targets: targets}) {
		f.log.Debug("request id already pending", logx.String("id", req.ID))
		return
	}
	f.metricPending()

	expiresIn := time.Duration(req.ExpiresAtMs-f.now().UnixMilli()) * time.Millisecond
	if expiresIn < 0 {
		expiresIn = 0
	}
	id := req.ID
	timer := time.AfterFunc(expiresIn, func() { f.expire(id) })
	if !f.reg.arm(id, timer) {
		// Resolved between put and arm; the terminal path already ran.
		timer.Stop()
	}

	f.publish(EventRequested, req.ID)
	f.metricOutcome("requested")
	f.log.Info("approval forwarded",
		logx.String("id", req.ID),
		logx.Int("targets", len(targets)),
		logx.Duration("expires_in", expiresIn))

	text, rich := formatRequested(req, f.now())
	f.deliver(ctx, targets, text, rich,
		func() bool { return f.reg.has(id) },
		func(ref EditableRef) { f.reg.appendRef(id, ref) },
	)
}

// HandleResolved closes out a pending request with a human decision.
// Unknown ids (already expired, duplicate resolution, never forwarded) are
// a silent no-op.
func (f *Forwarder) HandleResolved(ctx context.Context, res Resolution) {
	e, ok := f.reg.take(res.ID)
	if !ok {
		f.log.Debug("resolution for unknown id ignored", logx.String("id", res.ID))
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	f.metricPending()
	f.metricOutcome("resolved")
	f.publish(EventResolved, res.ID)
	f.log.Info("approval resolved",
		logx.String("id", res.ID),
		logx.String("decision", string(res.Decision)),
		logx.String("by", res.ResolvedBy))

	text, rich := formatResolved(res)
	f.finish(ctx, e, text, rich)
}

// expire is the timer path. The take() race against HandleResolved decides
// the winner; the loser no-ops.
func (f *Forwarder) expire(id string) {
	e, ok := f.reg.take(id)
	if !ok {
		return
	}
	f.metricPending()
	f.metricOutcome("expired")
	f.publish(EventExpired, id)
	f.log.Info("approval expired", logx.String("id", id))

	text, rich := formatExpired(e.req)
	f.finish(context.Background(), e, text, rich)
}

// Pending reports the number of in-flight requests.
func (f *Forwarder) Pending() int { return f.reg.len() }

// Stop cancels every outstanding timer and clears the registry without
// firing any terminal updates. Used at shutdown.
func (f *Forwarder) Stop() {
	f.reg.stopAll()
	f.metricPending()
}

func (f *Forwarder) publish(typ, id string) {
	if f.bus == nil {
		return
	}
	f.bus.Publish(eventbus.Event{Type: typ, RequestID: id})
}

func (f *Forwarder) metricDelivery(channel, result string) {
	if f.metrics != nil {
		f.metrics.Delivery(channel, result)
	}
}

func (f *Forwarder) metricEdit(result string) {
	if f.metrics != nil {
		f.metrics.Edit(result)
	}
}

func (f *Forwarder) metricOutcome(kind string) {
	if f.metrics != nil {
		f.metrics.Outcome(kind)
	}
}

func (f *Forwarder) metricPending() {
	if f.metrics != nil {
		f.metrics.SetPending(f.reg.len())
	}
}
