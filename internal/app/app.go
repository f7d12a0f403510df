// Package app wires the daemon together: config, logging, session store,
// channel sinks, the approval forwarder, and the HTTP API.
package app

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ido2103/openclaw/internal/channel"
	"github.com/ido2103/openclaw/internal/config"
	"github.com/ido2103/openclaw/internal/eventbus"
	"github.com/ido2103/openclaw/internal/forward"
	"github.com/ido2103/openclaw/internal/httpapi"
	"github.com/ido2103/openclaw/internal/metrics"
	rtsup "github.com/ido2103/openclaw/internal/runtime/supervisor"
	"github.com/ido2103/openclaw/internal/session"
	"github.com/ido2103/openclaw/internal/transport"
	"github.com/ido2103/openclaw/internal/transport/discord"
	"github.com/ido2103/openclaw/internal/transport/slack"
	"github.com/ido2103/openclaw/internal/transport/telegram"
	"github.com/ido2103/openclaw/pkg/logx"
)

type App struct {
	cfgPath string

	manager *config.Manager
	logSvc  *logx.Service
	log     logx.Logger

	bus      eventbus.Bus
	sinks    *transport.Registry
	sessions *session.Store
	fwd      *forward.Forwarder
	fwdMet   *metrics.Forwarding
	httpSrv  *httpapi.Server
	tg       *telegram.Adapter
	cron     *cron.Cron

	sup   *rtsup.Supervisor
	ready atomic.Bool
}

func New(cfgPath string) *App {
	return &App{cfgPath: cfgPath}
}

// Logger returns the root logger; valid after Start.
func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	a.manager = config.NewManager(a.cfgPath)
	cfg, err := a.manager.Load()
	if err != nil {
		return err
	}

	a.logSvc, a.log = logx.New(logConfig(cfg), a.opsSend)
	a.manager.SetLogger(a.log.With(logx.String("comp", "config")))
	a.manager.SetValidator(func(_ context.Context, c *config.Config) error {
		return validate(c)
	})
	if err := validate(cfg); err != nil {
		return err
	}
	a.log.Info("starting", logx.String("config", a.cfgPath))

	a.bus = eventbus.New()
	a.sinks = transport.NewRegistry()
	a.fwdMet = metrics.NewForwarding("openclaw")

	a.sessions, err = session.Open(sessionConfig(cfg), a.log.With(logx.String("comp", "sessions")))
	if err != nil {
		return err
	}

	a.fwd = forward.New(forward.Deps{
		Config:   func() forward.Config { return forwardConfig(a.manager.Get()) },
		Sessions: a.sessionLookup(),
		Sinks:    a.sinks,
		Channels: channel.Classifier{},
		Bus:      a.bus,
		Metrics:  a.fwdMet,
		Log:      a.log.With(logx.String("comp", "forward")),
	})

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	if err := a.startSinks(ctx, cfg); err != nil {
		a.shutdown(context.Background())
		return err
	}
	a.startPrune(cfg)

	a.httpSrv = httpapi.New(
		httpapi.Config{Addr: cfg.HTTP.Addr},
		a.fwd,
		metrics.Handler(),
		a.ready.Load,
		a.log.With(logx.String("comp", "http")),
	)
	a.sup.Go("http", a.httpSrv.Start)

	a.sup.Go("config.watch", a.manager.Watch)
	reloads := a.manager.Subscribe(1)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.manager.Unsubscribe(reloads)
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-reloads:
				if !ok {
					return
				}
				a.applyReload(next)
			}
		}
	})

	events, unsubEvents := a.bus.Subscribe(32)
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsubEvents()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("lifecycle event",
					logx.String("type", e.Type), logx.String("id", e.RequestID))
			}
		}
	})

	a.ready.Store(true)
	a.log.Info("started")
	return nil
}

// startSinks registers the enabled channel sinks. Telegram failure is fatal
// when enabled (it is the interactive channel); Discord/Slack degrade to a
// warning so one bad token does not take the daemon down.
func (a *App) startSinks(ctx context.Context, cfg *config.Config) error {
	if cfg.Telegram.Enabled {
		durs, err := cfg.ResolveDurations()
		if err != nil {
			return err
		}
		tg, err := telegram.New(telegram.Config{
			Token:        cfg.Telegram.Token,
			PollTimeout:  durs.TelegramPollTimeout,
			RatePerSec:   cfg.Telegram.RatePerSec,
			DefaultAgent: cfg.Telegram.DefaultAgent,
		}, telegram.Hooks{
			OnCallback: a.onCallback,
			OnDecision: a.onDecision,
			OnRoute:    a.onRoute,
		}, a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return err
		}
		if err := tg.Start(ctx); err != nil {
			return err
		}
		a.tg = tg
		a.sinks.Register(tg)
	}

	if cfg.Discord.Enabled {
		dc, err := discord.New(discord.Config{Token: cfg.Discord.Token},
			a.log.With(logx.String("comp", "discord")))
		if err != nil {
			a.log.Warn("discord sink disabled", logx.Err(err))
		} else {
			a.sinks.Register(dc)
		}
	}

	if cfg.Slack.Enabled {
		sl, err := slack.New(slack.Config{Token: cfg.Slack.Token},
			a.log.With(logx.String("comp", "slack")))
		if err != nil {
			a.log.Warn("slack sink disabled", logx.Err(err))
		} else {
			a.sinks.Register(sl)
		}
	}

	return nil
}

func (a *App) startPrune(cfg *config.Config) {
	if a.sessions == nil {
		return
	}
	spec := strings.TrimSpace(cfg.Sessions.PruneSchedule)
	if spec == "" {
		spec = "@daily"
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := a.sessions.Prune(ctx)
		if err != nil {
			a.log.Warn("session prune failed", logx.Err(err))
			return
		}
		if n > 0 {
			a.log.Info("session routes pruned", logx.Int64("removed", n))
		}
	})
	if err != nil {
		a.log.Warn("invalid prune schedule; prune disabled",
			logx.String("schedule", spec), logx.Err(err))
		return
	}
	c.Start()
	a.cron = c
}

// onCallback handles a Telegram inline-button press carrying an approval
// decision.
func (a *App) onCallback(ctx context.Context, data, from string) string {
	id, decision, ok := forward.ParseCallback(data)
	if !ok {
		return "Unrecognized action."
	}
	a.fwd.HandleResolved(ctx, forward.Resolution{
		ID:         id,
		Decision:   decision,
		ResolvedBy: from,
		TsMs:       time.Now().UnixMilli(),
	})
	return "Decision recorded."
}

// onDecision handles a /approve or /deny reply command. Replies always
// read as recorded; duplicate or late resolutions are no-ops downstream.
func (a *App) onDecision(ctx context.Context, id string, approve bool, from string) string {
	decision := forward.DecisionDeny
	if approve {
		decision = forward.DecisionAllowOnce
	}
	a.fwd.HandleResolved(ctx, forward.Resolution{
		ID:         id,
		Decision:   decision,
		ResolvedBy: from,
		TsMs:       time.Now().UnixMilli(),
	})
	return "Decision recorded."
}

func (a *App) onRoute(ctx context.Context, sessionKey string, addr transport.Address) {
	if a.sessions == nil {
		return
	}
	err := a.sessions.RecordRoute(ctx, session.Route{
		SessionKey: sessionKey,
		Channel:    channel.Telegram,
		Address:    addr.To,
		AccountID:  addr.AccountID,
		ThreadID:   addr.ThreadID,
	})
	if err != nil {
		a.log.Warn("session route record failed",
			logx.String("session", sessionKey), logx.Err(err))
	}
}

func (a *App) sessionLookup() forward.SessionLookup {
	return forward.SessionLookupFunc(func(ctx context.Context, sessionKey string) (*forward.Target, error) {
		if a.sessions == nil {
			return nil, nil
		}
		r, err := a.sessions.LastRoute(ctx, sessionKey)
		if err != nil {
			if errors.Is(err, session.ErrDisabled) {
				return nil, nil
			}
			return nil, err
		}
		if r == nil {
			return nil, nil
		}
		return &forward.Target{
			Channel:   r.Channel,
			To:        r.Address,
			AccountID: r.AccountID,
			ThreadID:  r.ThreadID,
		}, nil
	})
}

// opsSend mirrors a WARN+ log line to the configured operator chat. Runs on
// the log service's ops worker, never on a logging hot path.
func (a *App) opsSend(ctx context.Context, line string) {
	cfg := a.manager.Get()
	if cfg == nil || !cfg.Logging.Ops.Enabled {
		return
	}
	ch := channel.Normalize(cfg.Logging.Ops.Channel)
	if ch == "" {
		ch = channel.Telegram
	}
	to := strings.TrimSpace(cfg.Logging.Ops.To)
	if to == "" {
		return
	}
	sink, ok := a.sinks.Sink(ch)
	if !ok {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, _ = sink.Send(sctx, transport.Address{To: to}, line, nil)
}

// applyReload applies a hot config change. Only logging and forwarding are
// dynamic; channel and storage changes need a restart.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logSvc.Apply(logConfig(cfg))
	a.log.Info("config reloaded",
		logx.Bool("forwarding_enabled", cfg.Forwarding.Enabled),
		logx.Int("targets", len(cfg.Forwarding.Targets)))
}

func (a *App) Stop(ctx context.Context) error {
	a.ready.Store(false)
	a.log.Info("stopping")
	a.shutdown(ctx)
	a.log.Info("stopped")
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
	return nil
}

func (a *App) shutdown(ctx context.Context) {
	step := func(d time.Duration, fn func(context.Context)) {
		sctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		fn(sctx)
	}

	if a.httpSrv != nil {
		step(3*time.Second, func(c context.Context) { _ = a.httpSrv.Stop(c) })
	}
	if a.fwd != nil {
		a.fwd.Stop()
	}
	if a.cron != nil {
		step(2*time.Second, func(c context.Context) {
			done := a.cron.Stop().Done()
			select {
			case <-done:
			case <-c.Done():
			}
		})
	}
	if a.tg != nil {
		step(3*time.Second, func(c context.Context) { _ = a.tg.Stop(c) })
	}
	if a.sup != nil {
		step(5*time.Second, func(c context.Context) { _ = a.sup.Stop(c) })
	}
	if a.sessions != nil {
		_ = a.sessions.Close()
	}
}

// ---- config mapping ----

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Ops: logx.OpsConfig{
			Enabled:    cfg.Logging.Ops.Enabled,
			MinLevel:   cfg.Logging.Ops.MinLevel,
			RatePerSec: cfg.Logging.Ops.RatePerSec,
		},
	}
}

func sessionConfig(cfg *config.Config) session.Config {
	durs, _ := cfg.ResolveDurations()
	return session.Config{
		Driver:      cfg.Sessions.Driver,
		Path:        cfg.Sessions.Path,
		BusyTimeout: durs.SessionBusyTimeout,
		Retention:   durs.SessionRetention,
	}
}

func forwardConfig(cfg *config.Config) forward.Config {
	if cfg == nil {
		return forward.Config{}
	}
	fc := forward.Config{
		Enabled:       cfg.Forwarding.Enabled,
		Mode:          forward.Mode(strings.TrimSpace(cfg.Forwarding.Mode)),
		AgentFilter:   cfg.Forwarding.AgentFilter,
		SessionFilter: cfg.Forwarding.SessionFilter,
	}
	if fc.Mode == "" {
		fc.Mode = forward.ModeBoth
	}
	for _, t := range cfg.Forwarding.Targets {
		fc.Targets = append(fc.Targets, forward.Target{
			Channel:   t.Channel,
			To:        t.To,
			AccountID: t.AccountID,
			ThreadID:  t.ThreadID,
		})
	}
	return fc
}

// validate rejects configs that would start a half-broken daemon.
func validate(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.enabled requires telegram.token")
	}
	if cfg.Discord.Enabled && strings.TrimSpace(cfg.Discord.Token) == "" {
		return errors.New("discord.enabled requires discord.token")
	}
	if cfg.Slack.Enabled && strings.TrimSpace(cfg.Slack.Token) == "" {
		return errors.New("slack.enabled requires slack.token")
	}
	if _, err := cfg.ResolveDurations(); err != nil {
		return err
	}
	switch forward.Mode(strings.TrimSpace(cfg.Forwarding.Mode)) {
	case "", forward.ModeSession, forward.ModeTargets, forward.ModeBoth:
	default:
		return errors.New("forwarding.mode must be session, targets or both")
	}
	for _, t := range cfg.Forwarding.Targets {
		if strings.TrimSpace(t.Channel) == "" || strings.TrimSpace(t.To) == "" {
			return errors.New("forwarding.targets entries need channel and to")
		}
	}
	return nil
}
