package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ecsrelay/internal/eventbus"
	"ecsrelay/internal/storage"
	logx "ecsrelay/pkg/logx"
)

func TestRunOnce(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	p := New(Config{}, logx.Nop(), nil,
		Check{Name: "store", Fn: store.Ping},
		Check{Name: "identity", Fn: func(ctx context.Context) error { return errors.New("AccessDenied") }},
		Check{Name: "broken", Fn: func(ctx context.Context) error { panic("boom") }},
	)

	got := p.RunOnce(context.Background())
	if len(got) != 3 {
		t.Fatalf("statuses = %d, want 3", len(got))
	}
	if !got[0].OK || got[1].OK || got[1].Error != "AccessDenied" || got[2].OK {
		t.Fatalf("statuses = %+v", got)
	}

	last := p.Last()
	if len(last) != 3 || last[0].Name != "broken" || last[2].Name != "store" {
		t.Fatalf("Last = %+v", last)
	}

	_ = store.Close()
	p.RunOnce(context.Background())
	for _, st := range p.Last() {
		if st.Name == "store" && st.OK {
			t.Fatal("closed store must fail its probe")
		}
	}
}

func TestCheckTimeout(t *testing.T) {
	t.Parallel()
	p := New(Config{Timeout: 20 * time.Millisecond}, logx.Nop(), nil, Check{Name: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	st := p.RunOnce(context.Background())[0]
	if st.OK || st.Error == "" {
		t.Fatalf("status = %+v", st)
	}
}

func TestScheduledProbePublishes(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	var calls atomic.Int32
	p := New(Config{Schedule: "@every 1s"}, logx.Nop(), bus, Check{Name: "store", Fn: func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop(context.Background())

	select {
	case ev := <-events:
		if ev.Type != "health.store" {
			t.Fatalf("event type = %s", ev.Type)
		}
		st, ok := ev.Data.(Status)
		if !ok || !st.OK {
			t.Fatalf("event data = %#v", ev.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no health event within 3s")
	}
	if calls.Load() == 0 {
		t.Fatal("check never ran")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	p := New(Config{Schedule: "every minute"}, logx.Nop(), nil)
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
	if err := p.Apply(Config{Schedule: "61 * * * *"}); err == nil {
		t.Fatal("Apply must reject an invalid schedule")
	}
}

func TestEmptyScheduleDisables(t *testing.T) {
	t.Parallel()
	p := New(Config{}, logx.Nop(), nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Apply(Config{Schedule: "@every 1h"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	p.mu.Lock()
	scheduled := p.c != nil
	p.mu.Unlock()
	if !scheduled {
		t.Fatal("Apply on a started prober must schedule the new spec")
	}
	p.Stop(context.Background())
}
