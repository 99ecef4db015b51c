package systemd

import (
	"context"
	"testing"
	"time"
)

func TestNoSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	for name, fn := range map[string]func() (bool, error){
		"ready":    Ready,
		"stopping": Stopping,
		"status":   func() (bool, error) { return Status("relaying") },
	} {
		sent, err := fn()
		if err != nil || sent {
			t.Fatalf("%s: sent=%v err=%v, want no-op", name, sent, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := Watchdog(ctx, nil); err != nil {
		t.Fatalf("Watchdog = %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Watchdog must return immediately when disabled")
	}
}
