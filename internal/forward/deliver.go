package forward

import (
	"context"
	"sync"

	"github.com/ido2103/openclaw/internal/transport"
	"github.com/ido2103/openclaw/pkg/logx"
)

// deliver fans text/rich out to all targets concurrently and returns the
// editable message refs the fan-out produced. Per-target failures are
// logged and isolated; they never abort sibling sends. All sends are
// awaited before deliver returns.
//
// guard, when non-nil, is evaluated immediately before each individual
// send so a request that resolves or expires mid-fan-out can cancel the
// remaining sends cooperatively. onRef, when non-nil, observes each
// editable ref as it is produced (before deliver returns).
func (f *Forwarder) deliver(ctx context.Context, targets []Target, text string, rich *transport.Rich, guard func() bool, onRef func(EditableRef)) []EditableRef {
	var (
		mu   sync.Mutex
		refs []EditableRef
		wg   sync.WaitGroup
	)

	for _, t := range targets {
		ch := f.channels.Normalize(t.Channel)
		if !f.channels.Deliverable(ch) {
			f.log.Debug("skipping non-deliverable target", logx.String("channel", t.Channel))
			continue
		}
		sink, ok := f.sinks.Sink(ch)
		if !ok {
			f.log.Warn("no sink registered for channel", logx.String("channel", ch))
			continue
		}

		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					f.log.Error("sink panicked",
						logx.String("channel", ch), logx.String("to", t.To), logx.Any("panic", r))
				}
			}()

			if guard != nil && !guard() {
				f.log.Debug("send cancelled, request no longer pending",
					logx.String("channel", ch), logx.String("to", t.To))
				return
			}

			out, err := sink.Send(ctx, transport.Address{To: t.To, AccountID: t.AccountID, ThreadID: t.ThreadID}, text, rich)
			if err != nil {
				f.metricDelivery(ch, "error")
				f.log.Warn("delivery failed",
					logx.String("channel", ch), logx.String("to", t.To), logx.Err(err))
				return
			}
			f.metricDelivery(ch, "ok")

			if !f.channels.IsEditable(ch) {
				return
			}
			for _, m := range out {
				if m.MessageID == "" {
					continue
				}
				ref := EditableRef{ChannelID: channelIDOf(m, t), MessageID: m.MessageID, AccountID: m.AccountID}
				mu.Lock()
				refs = append(refs, ref)
				mu.Unlock()
				if onRef != nil {
					onRef(ref)
				}
			}
		}()
	}

	wg.Wait()
	return refs
}

func channelIDOf(m transport.MessageRef, t Target) string {
	if m.ChannelID != "" {
		return m.ChannelID
	}
	if m.ChatID != "" {
		return m.ChatID
	}
	return t.To
}
