// Package transport defines the chat sink contract shared by the Slack and
// Telegram drivers.
package transport

import (
	"context"
	"fmt"
)

// Message is one alert as the relay sees it. Drivers render it in their own
// markup; Slack gets an attachment, Telegram gets HTML.
type Message struct {
	Channel   string
	Username  string
	IconEmoji string

	// Author is the attachment header, e.g. "INFRA - PRODUCTION".
	Author string
	// Subject is rendered bold, Body follows it.
	Subject string
	Body    string
	// Link is optional; LinkLabel defaults to "More details".
	Link      string
	LinkLabel string
	// Color is a Slack attachment color: "good", "warning", "danger" or a hex value.
	Color string
}

// SlackText renders the attachment text in Slack mrkdwn:
//
//	*API*: is STOPPED, OOMKilled (<https://...|More details>)
func (m Message) SlackText() string {
	s := fmt.Sprintf("*%s*: %s", m.Subject, m.Body)
	if m.Link != "" {
		s += fmt.Sprintf(" (<%s|%s>)", m.Link, m.linkLabel())
	}
	return s
}

// PlainText is the fallback for clients that can't render markup.
func (m Message) PlainText() string {
	s := fmt.Sprintf("%s: %s", m.Subject, m.Body)
	if m.Author != "" {
		s = m.Author + " " + s
	}
	return s
}

func (m Message) linkLabel() string {
	if m.LinkLabel != "" {
		return m.LinkLabel
	}
	return "More details"
}

// Sink delivers a message to a chat channel.
type Sink interface {
	Name() string
	Post(ctx context.Context, m Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, m Message) error

func (f SinkFunc) Name() string                              { return "func" }
func (f SinkFunc) Post(ctx context.Context, m Message) error { return f(ctx, m) }
