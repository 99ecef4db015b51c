// Package telegram posts relay messages to a Telegram chat through a bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"ecsrelay/internal/transport"
)

type Config struct {
	Token string
	// APIURL overrides https://api.telegram.org (tests, local bot API servers).
	APIURL string
	// ThreadID targets a forum topic; 0 posts to the main chat.
	ThreadID int
	Timeout  time.Duration
}

// Sink sends HTML messages. The bot is created offline: it never polls for
// updates, it only calls sendMessage.
type Sink struct {
	bot      *tele.Bot
	threadID int
}

func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Sink{bot: b, threadID: cfg.ThreadID}, nil
}

func (s *Sink) Name() string { return "telegram" }

// Post sends m to the chat named by m.Channel: a numeric chat id or an @username.
func (s *Sink) Post(ctx context.Context, m transport.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := recipient(m.Channel)
	if err != nil {
		return err
	}
	_, err = s.bot.Send(to, RenderHTML(m), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              s.threadID,
	})
	return err
}

// chatRef addresses a public chat by @username. tele.Chat only
// serializes its numeric ID.
type chatRef string

func (c chatRef) Recipient() string { return string(c) }

func recipient(channel string) (tele.Recipient, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, errors.New("telegram: channel is empty")
	}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return &tele.Chat{ID: id}, nil
	}
	return chatRef("@" + strings.TrimPrefix(channel, "@")), nil
}

// RenderHTML renders m in Telegram's HTML subset.
func RenderHTML(m transport.Message) string {
	var b strings.Builder
	if m.Author != "" {
		b.WriteString(colorMarker(m.Color))
		b.WriteString(" <b>")
		b.WriteString(html.EscapeString(m.Author))
		b.WriteString("</b>\n")
	}
	fmt.Fprintf(&b, "<b>%s</b>: %s", html.EscapeString(m.Subject), html.EscapeString(m.Body))
	if m.Link != "" {
		label := m.LinkLabel
		if label == "" {
			label = "More details"
		}
		fmt.Fprintf(&b, " (<a href=\"%s\">%s</a>)", html.EscapeString(m.Link), html.EscapeString(label))
	}
	return b.String()
}

func colorMarker(color string) string {
	switch strings.ToLower(color) {
	case "good":
		return "🟢"
	case "danger", "#ff0000":
		return "🔴"
	case "warning", "#ffc76d":
		return "🟠"
	default:
		return "⚪"
	}
}
