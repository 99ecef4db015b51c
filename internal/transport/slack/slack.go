// Package slack posts relay messages to Slack, either through the Web API
// (bot token, chat.postMessage) or through an incoming webhook.
package slack

import (
	"context"
	"errors"
	"strings"

	"github.com/slack-go/slack"

	"ecsrelay/internal/transport"
)

// API abstracts the subset of slack.Client used here, so tests can
// substitute a fake without a live workspace.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Config configures the bot-token driver.
type Config struct {
	Token string
	// APIURL overrides https://slack.com/api/ (tests, proxies). Must end with "/".
	APIURL string
}

// Sink posts through chat.postMessage.
type Sink struct {
	api API
}

func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("slack token is empty")
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return NewWithAPI(slack.New(cfg.Token, opts...)), nil
}

func NewWithAPI(api API) *Sink { return &Sink{api: api} }

func (s *Sink) Name() string { return "slack" }

func (s *Sink) Post(ctx context.Context, m transport.Message) error {
	if strings.TrimSpace(m.Channel) == "" {
		return errors.New("slack: channel is empty")
	}
	opts := []slack.MsgOption{
		slack.MsgOptionAttachments(attachment(m)),
		slack.MsgOptionAsUser(false),
	}
	if m.Username != "" {
		opts = append(opts, slack.MsgOptionUsername(m.Username))
	}
	if m.IconEmoji != "" {
		opts = append(opts, slack.MsgOptionIconEmoji(m.IconEmoji))
	}
	_, _, err := s.api.PostMessageContext(ctx, m.Channel, opts...)
	return err
}

// WebhookSink posts through an incoming webhook URL.
type WebhookSink struct {
	url string
}

func NewWebhook(url string) (*WebhookSink, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("slack webhook url is empty")
	}
	return &WebhookSink{url: url}, nil
}

func (s *WebhookSink) Name() string { return "slack_webhook" }

func (s *WebhookSink) Post(ctx context.Context, m transport.Message) error {
	a := attachment(m)
	return slack.PostWebhookContext(ctx, s.url, &slack.WebhookMessage{
		Channel:     m.Channel,
		Username:    m.Username,
		IconEmoji:   m.IconEmoji,
		Attachments: []slack.Attachment{a},
	})
}

func attachment(m transport.Message) slack.Attachment {
	return slack.Attachment{
		Color:      m.Color,
		AuthorName: m.Author,
		Text:       m.SlackText(),
		Fallback:   m.PlainText(),
		MarkdownIn: []string{"text"},
	}
}
