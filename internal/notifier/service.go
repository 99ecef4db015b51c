package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ecsrelay/internal/eventbus"
	"ecsrelay/internal/transport"
	logx "ecsrelay/pkg/logx"
)

var (
	ErrDisabled       = errors.New("notifier disabled")
	ErrDeliveryFailed = errors.New("notification delivery failed")
)

const (
	defaultTimeout     = 10 * time.Second
	defaultHistorySize = 300
)

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	sink transport.Sink
	bus  eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sink transport.Sink, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sink: sink, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec < 0 {
		cfg.RatePerSec = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	s.cfg = cfg
	if cfg.RatePerSec == 0 {
		s.limiter = nil
		return
	}
	// Burst equals the per-second rate so short spikes pass without waiting.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Notify posts m through the sink once. Sink errors are wrapped with
// ErrDeliveryFailed; context errors while waiting for a token are returned as is.
func (s *Service) Notify(ctx context.Context, m transport.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sink := s.sink
	bus := s.bus
	log := s.log
	s.mu.Unlock()

	if !cfg.Enabled {
		return ErrDisabled
	}
	if sink == nil {
		return fmt.Errorf("%w: no sink configured", ErrDeliveryFailed)
	}

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	err := sink.Post(callCtx, m)
	cancel()

	now := time.Now()
	item := HistoryItem{At: now, Sink: sink.Name(), Channel: m.Channel, Text: m.PlainText()}
	ev := NotificationEvent{Sink: sink.Name(), Channel: m.Channel, Subject: m.Subject, At: now}
	if err != nil {
		item.Error = err.Error()
		ev.Error = err.Error()
	}
	s.appendHistory(item, cfg.HistorySize)

	if err != nil {
		log.Debug("notify send failed", logx.String("sink", sink.Name()), logx.String("channel", m.Channel), logx.Err(err))
		if bus != nil {
			bus.Publish(eventbus.Event{Type: eventbus.TypeNotifierFailed, Time: now, Data: ev})
		}
		return fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, sink.Name(), err)
	}
	if bus != nil {
		bus.Publish(eventbus.Event{Type: eventbus.TypeNotifierSent, Time: now, Data: ev})
	}
	return nil
}

// Snapshot returns the recent history, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem, max int) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}
