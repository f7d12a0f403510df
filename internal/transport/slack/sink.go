// Package slack is the Slack delivery sink. Send-only: approval updates
// arrive as fresh messages, never edits.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"

	slackapi "github.com/slack-go/slack"

	"github.com/ido2103/openclaw/internal/channel"
	"github.com/ido2103/openclaw/internal/transport"
	"github.com/ido2103/openclaw/pkg/logx"
)

type Config struct {
	Token string
}

type Sink struct {
	client *slackapi.Client
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("slack token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{client: slackapi.New(cfg.Token), log: log}, nil
}

func (s *Sink) Channel() string { return channel.Slack }

func (s *Sink) Send(ctx context.Context, to transport.Address, text string, rich *transport.Rich) ([]transport.MessageRef, error) {
	channelID := strings.TrimSpace(to.To)
	if channelID == "" {
		return nil, errors.New("slack target has no channel id")
	}

	opts := make([]slackapi.MsgOption, 0, 3)
	if rich != nil {
		opts = append(opts, slackapi.MsgOptionAttachments(attachmentFrom(rich)))
	} else {
		opts = append(opts, slackapi.MsgOptionText(text, false))
	}
	if to.ThreadID != "" {
		opts = append(opts, slackapi.MsgOptionTS(to.ThreadID))
	}

	respChannel, ts, err := s.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return nil, err
	}
	return []transport.MessageRef{{
		Channel:   channel.Slack,
		ChannelID: respChannel,
		MessageID: ts,
	}}, nil
}

func attachmentFrom(rich *transport.Rich) slackapi.Attachment {
	att := slackapi.Attachment{
		Color: fmt.Sprintf("#%06X", rich.Color),
		Title: rich.Title,
		Text:  rich.Body,
	}
	if rich.Footer != "" {
		att.Footer = rich.Footer
	}
	for _, f := range rich.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Inline,
		})
	}
	return att
}
