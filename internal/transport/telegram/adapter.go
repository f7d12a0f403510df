// Package telegram is the Telegram delivery sink. It is the one channel
// kind in scope that supports in-place edits, and the only sink that polls
// for inbound traffic (button callbacks and route learning).
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"github.com/ido2103/openclaw/internal/channel"
	rtsup "github.com/ido2103/openclaw/internal/runtime/supervisor"
	"github.com/ido2103/openclaw/internal/transport"
	"github.com/ido2103/openclaw/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	RatePerSec  int

	// DefaultAgent names the agent recorded on session routes learned from
	// incoming traffic.
	DefaultAgent string
}

// Hooks are the adapter's outbound collaborators. Either may be nil.
type Hooks struct {
	// OnCallback handles an inline-button press and returns the short text
	// acknowledged back to the user.
	OnCallback func(ctx context.Context, data, from string) string

	// OnDecision handles a /approve or /deny reply command and returns the
	// text sent back to the chat.
	OnDecision func(ctx context.Context, id string, approve bool, from string) string

	// OnRoute observes the delivery route of incoming messages so the
	// session store can learn where a session lives.
	OnRoute func(ctx context.Context, sessionKey string, addr transport.Address)
}

type Adapter struct {
	cfg   Config
	hooks Hooks
	log   logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(cfg Config, hooks Hooks, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	a := &Adapter{
		cfg:     cfg,
		hooks:   hooks,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) Channel() string { return channel.Telegram }

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || a.hooks.OnRoute == nil {
			return nil
		}
		addr := transport.Address{To: strconv.FormatInt(m.Chat.ID, 10)}
		if m.ThreadID != 0 {
			addr.ThreadID = strconv.Itoa(m.ThreadID)
		}
		a.hooks.OnRoute(context.Background(), a.sessionKeyFor(m.Chat.ID), addr)
		return nil
	})

	a.bot.Handle("/approve", func(c tele.Context) error {
		return a.handleDecision(c, true)
	})
	a.bot.Handle("/deny", func(c tele.Context) error {
		return a.handleDecision(c, false)
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil || a.hooks.OnCallback == nil {
			return nil
		}
		from := ""
		if cb.Sender != nil {
			from = cb.Sender.Username
			if from == "" {
				from = strconv.FormatInt(cb.Sender.ID, 10)
			}
		}
		ack := a.hooks.OnCallback(context.Background(), strings.TrimSpace(cb.Data), from)
		return a.bot.Respond(cb, &tele.CallbackResponse{Text: ack})
	})
}

func (a *Adapter) handleDecision(c tele.Context, approve bool) error {
	if a.hooks.OnDecision == nil {
		return nil
	}
	id := strings.TrimSpace(c.Message().Payload)
	if id == "" {
		return c.Send("Usage: /approve <id> or /deny <id>")
	}
	from := ""
	if s := c.Sender(); s != nil {
		from = s.Username
		if from == "" {
			from = strconv.FormatInt(s.ID, 10)
		}
	}
	reply := a.hooks.OnDecision(context.Background(), id, approve, from)
	if reply == "" {
		return nil
	}
	return c.Send(reply)
}

// sessionKeyFor derives the session key recorded for traffic from a chat.
func (a *Adapter) sessionKeyFor(chatID int64) string {
	agent := a.cfg.DefaultAgent
	if agent == "" {
		agent = "main"
	}
	return "agent:" + agent + ":" + channel.Telegram + ":" + strconv.FormatInt(chatID, 10)
}

// Start begins long polling. The poll loop runs under a restart loop so
// transient API failures self-heal.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		// Start blocks until Stop is called.
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		// Restart if Start returns while the context is still active.
		rtsup.WithStopOnCleanExit(false),
	)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	// Cancelling the supervisor context triggers the stop watcher, which
	// calls bot.Stop exactly once.
	sup.Cancel()
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

// Send delivers a plain-text message, attaching the rich payload's buttons
// as an inline keyboard. Telegram carries the plain rendering; colors are
// a Discord/Slack concern.
func (a *Adapter) Send(ctx context.Context, to transport.Address, text string, rich *transport.Rich) ([]transport.MessageRef, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(to.To), 10, 64)
	if err != nil {
		return nil, errors.New("telegram target is not a chat id: " + to.To)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	opt := &tele.SendOptions{DisableWebPagePreview: true}
	if to.ThreadID != "" {
		if tid, err := strconv.Atoi(to.ThreadID); err == nil {
			opt.ThreadID = tid
		}
	}
	if rich != nil && len(rich.Buttons) > 0 {
		opt.ReplyMarkup = inlineMarkup(rich.Buttons)
	}

	msg, err := a.bot.Send(&tele.Chat{ID: chatID}, text, opt)
	if err != nil {
		return nil, err
	}
	return []transport.MessageRef{{
		Channel:   channel.Telegram,
		ChannelID: strconv.FormatInt(chatID, 10),
		MessageID: strconv.Itoa(msg.ID),
	}}, nil
}

// Edit replaces a previously sent message in place. A rich payload without
// buttons clears the original inline keyboard.
func (a *Adapter) Edit(ctx context.Context, ref transport.MessageRef, text string, rich *transport.Rich) error {
	chatID, err := strconv.ParseInt(ref.ChannelID, 10, 64)
	if err != nil {
		return errors.New("telegram ref has no chat id")
	}
	msgID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return errors.New("telegram ref has no message id")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	opt := &tele.SendOptions{DisableWebPagePreview: true}
	if rich != nil && len(rich.Buttons) > 0 {
		opt.ReplyMarkup = inlineMarkup(rich.Buttons)
	} else {
		opt.ReplyMarkup = &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{}}
	}

	m := &tele.Message{ID: msgID, Chat: &tele.Chat{ID: chatID}}
	_, err = a.bot.Edit(m, text, opt)
	return err
}

func inlineMarkup(buttons []transport.Button) *tele.ReplyMarkup {
	row := make([]tele.InlineButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tele.InlineButton{Text: b.Label, Data: b.Data})
	}
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{row}}
}
