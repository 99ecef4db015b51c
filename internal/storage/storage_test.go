package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	logx "ecsrelay/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	cfgs := map[string]Config{
		"memory": {Driver: "memory"},
		"file":   {Driver: "file", Path: filepath.Join(dir, "state")},
		"sqlite": {Driver: "sqlite", Path: filepath.Join(dir, "state.db"), BusyTimeout: time.Second},
		"redis":  {Driver: "redis", Addr: mr.Addr(), DialTimeout: time.Second},
	}
	out := make(map[string]Store, len(cfgs))
	for name, cfg := range cfgs {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s) error: %v", name, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[name] = st
	}
	return out
}

func TestStoreContract(t *testing.T) {
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const key = "ecs_task_state:api"

			if _, ok, err := st.Get(ctx, key); err != nil || ok {
				t.Fatalf("Get on empty store = ok:%v err:%v, want absent", ok, err)
			}
			if err := st.Set(ctx, key, "STOPPED"); err != nil {
				t.Fatalf("Set error: %v", err)
			}
			if err := st.Set(ctx, key, "STOPPED"); err != nil {
				t.Fatalf("second Set error: %v", err)
			}
			v, ok, err := st.Get(ctx, key)
			if err != nil || !ok || v != "STOPPED" {
				t.Fatalf("Get = %q ok:%v err:%v, want STOPPED", v, ok, err)
			}
			if err := st.Delete(ctx, key); err != nil {
				t.Fatalf("Delete error: %v", err)
			}
			if _, ok, err := st.Get(ctx, key); err != nil || ok {
				t.Fatalf("Get after Delete = ok:%v err:%v, want absent", ok, err)
			}
			if err := st.Delete(ctx, key); err != nil {
				t.Fatalf("Delete of absent key error: %v", err)
			}
			if err := st.Ping(ctx); err != nil {
				t.Fatalf("Ping error: %v", err)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relay")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	_ = st.Set(ctx, "ecs_task_state:api", "STOPPED")
	_ = st.Set(ctx, "ecs_task_state:worker", "STOPPED")
	_ = st.Delete(ctx, "ecs_task_state:worker")
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer st2.Close()
	if v, ok, _ := st2.Get(ctx, "ecs_task_state:api"); !ok || v != "STOPPED" {
		t.Fatalf("api record lost across reopen: %q ok:%v", v, ok)
	}
	if _, ok, _ := st2.Get(ctx, "ecs_task_state:worker"); ok {
		t.Fatal("deleted worker record resurrected across reopen")
	}
}

func TestClosedStoreErrors(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	_ = m.Close()
	if _, _, err := m.Get(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after Close err = %v, want ErrClosed", err)
	}
}

func TestRedisTTL(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	st, err := Open(Config{Driver: "redis", Addr: "redis://" + mr.Addr() + "/0", TTL: time.Minute}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()
	if err := st.Set(context.Background(), "ecs_task_state:api", "STOPPED"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if ttl := mr.TTL("ecs_task_state:api"); ttl != time.Minute {
		t.Fatalf("TTL = %v, want 1m", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := st.Get(context.Background(), "ecs_task_state:api"); ok {
		t.Fatal("record should have expired")
	}
}

func TestRedisOptions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		addr string
		db   int
	}{
		{raw: "cache.internal", addr: "cache.internal:6379"},
		{raw: "cache.internal:6380", addr: "cache.internal:6380"},
		{raw: "redis://cache.internal:6379/2", addr: "cache.internal:6379", db: 2},
	}
	for _, tt := range tests {
		opts, err := redisOptions(tt.raw)
		if err != nil {
			t.Fatalf("redisOptions(%q) error: %v", tt.raw, err)
		}
		if opts.Addr != tt.addr || opts.DB != tt.db {
			t.Fatalf("redisOptions(%q) = %s db=%d, want %s db=%d", tt.raw, opts.Addr, opts.DB, tt.addr, tt.db)
		}
	}
	if _, err := redisOptions(" "); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
