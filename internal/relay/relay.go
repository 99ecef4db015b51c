// Package relay runs one task event through the gate and, when the gate lets
// it through, formats and delivers the alert.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ecsrelay/internal/ecsevent"
	"ecsrelay/internal/eventbus"
	"ecsrelay/internal/gate"
	"ecsrelay/internal/identity"
	"ecsrelay/internal/notifier"
	"ecsrelay/internal/transport"
	logx "ecsrelay/pkg/logx"
)

var (
	// ErrUpstreamUnavailable covers store and identity lookup failures. Nothing was sent.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrDeliveryFailed means the gate emitted but the chat sink rejected the post.
	ErrDeliveryFailed = errors.New("alert delivery failed")
)

const (
	DefaultUsername     = "Infra Alert Bot"
	DefaultIconEmoji    = ":exclamation:"
	DefaultAuthorPrefix = "INFRA - "
)

// Notifier is the delivery side of the relay; *notifier.Service satisfies it.
type Notifier interface {
	Notify(ctx context.Context, m transport.Message) error
}

type Config struct {
	Channel      string
	Username     string
	IconEmoji    string
	AuthorPrefix string
	// Timeout bounds a whole evaluation; 0 leaves it to the caller's context.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Username == "" {
		c.Username = DefaultUsername
	}
	if c.IconEmoji == "" {
		c.IconEmoji = DefaultIconEmoji
	}
	if c.AuthorPrefix == "" {
		c.AuthorPrefix = DefaultAuthorPrefix
	}
	return c
}

// Outcome reports what happened to one event.
type Outcome struct {
	Task        string `json:"task"`
	Status      string `json:"status"`
	Action      string `json:"action"`
	Rule        string `json:"rule"`
	Environment string `json:"environment,omitempty"`
	Delivered   bool   `json:"delivered"`
}

type Relay struct {
	mu  sync.RWMutex
	cfg Config

	gate     *gate.Gate
	resolver identity.Resolver
	notifier Notifier
	log      logx.Logger
	bus      eventbus.Bus
	metrics  *Metrics
}

// New wires a relay. bus and metrics may be nil.
func New(cfg Config, g *gate.Gate, resolver identity.Resolver, n Notifier, log logx.Logger, bus eventbus.Bus, metrics *Metrics) *Relay {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Relay{
		cfg:      cfg.withDefaults(),
		gate:     g,
		resolver: resolver,
		notifier: n,
		log:      log,
		bus:      bus,
		metrics:  metrics,
	}
}

func (r *Relay) Apply(cfg Config) {
	r.mu.Lock()
	r.cfg = cfg.withDefaults()
	r.mu.Unlock()
}

func (r *Relay) config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// HandleRaw decodes an EventBridge envelope and handles it. Decoding errors
// wrap ecsevent.ErrMalformedEvent.
func (r *Relay) HandleRaw(ctx context.Context, body []byte) (Outcome, error) {
	ev, err := ecsevent.Decode(body)
	if err != nil {
		r.metrics.observeError("malformed")
		return Outcome{}, err
	}
	return r.Handle(ctx, ev)
}

// Handle evaluates ev and posts the alert when the gate emits. There is no
// retry: any failure is returned to the caller.
func (r *Relay) Handle(ctx context.Context, ev ecsevent.TaskEvent) (Outcome, error) {
	cfg := r.config()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	log := r.log.With(
		logx.String("task", ev.Task),
		logx.String("cluster", ev.Cluster),
		logx.String("status", ev.LastStatus),
	)
	out := Outcome{Task: ev.Task, Status: ev.LastStatus}

	d, err := r.gate.Evaluate(ctx, ev)
	if err != nil {
		r.metrics.observeError("store")
		log.Error("gate evaluation failed", logx.Err(err))
		return out, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	out.Action = d.Action.String()
	out.Rule = string(d.Rule)
	r.metrics.observeDecision(d)

	if !d.Emit() {
		log.Debug("event suppressed", logx.String("rule", out.Rule))
		r.publish(eventbus.TypeRelaySuppressed, out)
		return out, nil
	}

	env, err := r.resolver.ResolveEnvironment(ctx)
	if err != nil {
		r.metrics.observeError("identity")
		log.Error("environment lookup failed", logx.Err(err))
		return out, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	out.Environment = env.Label

	msg := Format(cfg, ev, env)
	if err := r.notifier.Notify(ctx, msg); err != nil {
		if errors.Is(err, notifier.ErrDisabled) {
			log.Info("notifier disabled; alert not sent", logx.String("rule", out.Rule))
			r.publish(eventbus.TypeRelayEmitted, out)
			return out, nil
		}
		r.metrics.observeDelivery(false)
		log.Error("failed to send alert", logx.String("channel", msg.Channel), logx.Err(err))
		return out, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	out.Delivered = true
	r.metrics.observeDelivery(true)
	log.Info("alert sent", logx.String("rule", out.Rule), logx.String("env", env.Label))
	r.publish(eventbus.TypeRelayEmitted, out)
	return out, nil
}

func (r *Relay) publish(typ string, out Outcome) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: out})
}

// Format builds the chat message for an emitted event:
//
//	author: INFRA - PRODUCTION
//	text:   *API*: is STOPPED, Essential container in task exited (<console|More details>)
func Format(cfg Config, ev ecsevent.TaskEvent, env identity.Environment) transport.Message {
	cfg = cfg.withDefaults()
	body := "is " + ev.LastStatus
	if ev.StoppedReason != "" {
		body += ", " + ev.StoppedReason
	}
	return transport.Message{
		Channel:   cfg.Channel,
		Username:  cfg.Username,
		IconEmoji: cfg.IconEmoji,
		Author:    cfg.AuthorPrefix + strings.ToUpper(env.Label),
		Subject:   strings.ToUpper(ev.Task),
		Body:      body,
		Link:      ev.ConsoleURL(),
		Color:     gate.Severity(ev.LastStatus, env.Color),
	}
}
