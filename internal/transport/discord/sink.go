// Package discord is the Discord delivery sink. Send-only: approval
// updates arrive as fresh messages, never edits.
package discord

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ido2103/openclaw/internal/channel"
	"github.com/ido2103/openclaw/internal/transport"
	"github.com/ido2103/openclaw/pkg/logx"
)

type Config struct {
	Token string
}

type Sink struct {
	session *discordgo.Session
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// REST-only usage; no gateway connection is opened.
	return &Sink{session: s, log: log}, nil
}

func (s *Sink) Channel() string { return channel.Discord }

func (s *Sink) Send(ctx context.Context, to transport.Address, text string, rich *transport.Rich) ([]transport.MessageRef, error) {
	channelID := strings.TrimSpace(to.To)
	if channelID == "" {
		return nil, errors.New("discord target has no channel id")
	}

	var (
		msg *discordgo.Message
		err error
	)
	if rich != nil {
		msg, err = s.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{embedFrom(rich)},
		}, discordgo.WithContext(ctx))
	} else {
		msg, err = s.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	}
	if err != nil {
		return nil, err
	}
	return []transport.MessageRef{{
		Channel:   channel.Discord,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
	}}, nil
}

func embedFrom(rich *transport.Rich) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       rich.Title,
		Description: rich.Body,
		Color:       rich.Color,
	}
	if rich.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: rich.Footer}
	}
	for _, f := range rich.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return e
}
