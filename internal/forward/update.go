package forward

import (
	"context"
	"sync"

	"github.com/ido2103/openclaw/internal/transport"
	"github.com/ido2103/openclaw/pkg/logx"
)

// finish closes out a removed entry: every collected editable ref gets an
// in-place edit (replacing the rich payload and clearing the buttons), and
// every target on a non-editable channel gets a fresh text message.
// Editable-channel targets never receive a duplicate fresh send; the edit
// path is their close-out. Edit failures are logged per message and do not
// abort sibling edits. Both fan-outs run concurrently and are awaited.
func (f *Forwarder) finish(ctx context.Context, e *pending, text string, rich *transport.Rich) {
	var wg sync.WaitGroup

	editor, hasEditor := f.sinks.Editor(f.editableKind())
	for _, ref := range e.refs {
		if !hasEditor {
			f.log.Warn("editable refs collected but no editor sink registered",
				logx.String("id", e.req.ID))
			break
		}
		ref := ref
		wg.Add(1)
		go func() {
			defer wg.Done()
			edited := *rich
			edited.Buttons = nil
			err := editor.Edit(ctx, transport.MessageRef{
				Channel:   f.editableKind(),
				ChannelID: ref.ChannelID,
				MessageID: ref.MessageID,
				AccountID: ref.AccountID,
			}, text, &edited)
			if err != nil {
				f.metricEdit("error")
				f.log.Warn("message edit failed",
					logx.String("id", e.req.ID),
					logx.String("channel_id", ref.ChannelID),
					logx.String("message_id", ref.MessageID),
					logx.Err(err))
				return
			}
			f.metricEdit("ok")
		}()
	}

	var fresh []Target
	for _, t := range e.targets {
		if !f.channels.IsEditable(t.Channel) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.deliver(ctx, fresh, text, rich, nil, nil)
		}()
	}

	wg.Wait()
}

func (f *Forwarder) editableKind() string {
	return f.channels.EditableKind()
}
