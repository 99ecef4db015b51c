package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ecsrelay/internal/eventbus"
	"ecsrelay/internal/transport"
	logx "ecsrelay/pkg/logx"
)

type recordingSink struct {
	mu    sync.Mutex
	posts []transport.Message
	err   error
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Post(ctx context.Context, m transport.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, m)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posts)
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{Enabled: true}, sink, logx.Nop(), bus)
	m := transport.Message{Channel: "#infra", Subject: "API", Body: "is RUNNING"}
	if err := s.Notify(context.Background(), m); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("posts = %d, want 1", sink.count())
	}
	select {
	case ev := <-ch:
		if ev.Type != "notifier.sent" {
			t.Fatalf("event = %s, want notifier.sent", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no bus event")
	}
	h := s.Snapshot()
	if len(h) != 1 || h[0].Channel != "#infra" || h[0].Error != "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestNotifyFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{err: errors.New("rate_limited")}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{Enabled: true}, sink, logx.Nop(), bus)
	err := s.Notify(context.Background(), transport.Message{Channel: "#infra", Subject: "API"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}
	if sink.count() != 1 {
		t.Fatalf("posts = %d, want exactly 1", sink.count())
	}
	ev := <-ch
	if ev.Type != "notifier.failed" {
		t.Fatalf("event = %s, want notifier.failed", ev.Type)
	}
	if h := s.Snapshot(); len(h) != 1 || h[0].Error == "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestNotifyDisabled(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	s := New(Config{Enabled: false}, sink, logx.Nop(), nil)
	if err := s.Notify(context.Background(), transport.Message{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
	if sink.count() != 0 {
		t.Fatal("disabled notifier must not post")
	}

	s.Apply(Config{Enabled: true})
	if err := s.Notify(context.Background(), transport.Message{}); err != nil {
		t.Fatalf("after Apply: %v", err)
	}
}

func TestNotifyHonorsContext(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	s := New(Config{Enabled: true, RatePerSec: 1}, sink, logx.Nop(), nil)
	// Drain the single-token burst.
	if err := s.Notify(context.Background(), transport.Message{}); err != nil {
		t.Fatalf("first Notify: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Notify(ctx, transport.Message{}); err == nil {
		t.Fatal("expected rate limiter wait to fail on short deadline")
	}
	if sink.count() != 1 {
		t.Fatalf("posts = %d, want 1", sink.count())
	}
}

func TestNotifySinkTimeout(t *testing.T) {
	t.Parallel()
	slow := transport.SinkFunc(func(ctx context.Context, m transport.Message) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s := New(Config{Enabled: true, Timeout: 20 * time.Millisecond}, slow, logx.Nop(), nil)
	err := s.Notify(context.Background(), transport.Message{})
	if !errors.Is(err, ErrDeliveryFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want ErrDeliveryFailed wrapping DeadlineExceeded", err)
	}
}

func TestHistoryBounded(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, HistorySize: 3}, &recordingSink{}, logx.Nop(), nil)
	for i := 0; i < 5; i++ {
		_ = s.Notify(context.Background(), transport.Message{Subject: string(rune('a' + i))})
	}
	h := s.Snapshot()
	if len(h) != 3 {
		t.Fatalf("history len = %d, want 3", len(h))
	}
	if h[0].Text != "c: " {
		t.Fatalf("oldest kept = %q, want %q", h[0].Text, "c: ")
	}
}
