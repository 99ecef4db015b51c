package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ecsrelay/internal/ecsevent"
	"ecsrelay/internal/health"
	"ecsrelay/internal/notifier"
	"ecsrelay/internal/relay"
	logx "ecsrelay/pkg/logx"
)

type fakeRelay struct {
	out relay.Outcome
	err error
	got []byte
}

func (f *fakeRelay) HandleRaw(ctx context.Context, body []byte) (relay.Outcome, error) {
	f.got = body
	return f.out, f.err
}

type fakeHistory []notifier.HistoryItem

func (f fakeHistory) Snapshot() []notifier.HistoryItem { return f }

func do(t *testing.T, h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEventsStatusMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "ok", want: http.StatusOK},
		{name: "malformed", err: fmt.Errorf("%w: detail missing", ecsevent.ErrMalformedEvent), want: http.StatusBadRequest},
		{name: "store down", err: fmt.Errorf("%w: dial tcp", relay.ErrUpstreamUnavailable), want: http.StatusBadGateway},
		{name: "sink rejected", err: fmt.Errorf("%w: channel_not_found", relay.ErrDeliveryFailed), want: http.StatusBadGateway},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fr := &fakeRelay{out: relay.Outcome{Task: "api", Status: "STOPPED", Action: "emitted", Rule: "stopped", Delivered: true}, err: tt.err}
			s := New(Config{}, Deps{Relay: fr}, logx.Nop())
			rec := do(t, s.Handler(), http.MethodPost, "/events", "", `{"detail":{}}`)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if string(fr.got) != `{"detail":{}}` {
				t.Fatalf("relay saw body %q", fr.got)
			}
			if tt.err == nil {
				var out relay.Outcome
				if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if out.Rule != "stopped" || !out.Delivered {
					t.Fatalf("outcome = %+v", out)
				}
			}
		})
	}
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestEventsBodyErrors(t *testing.T) {
	t.Parallel()
	fr := &fakeRelay{}
	h := New(Config{MaxBodyBytes: 8}, Deps{Relay: fr}, logx.Nop()).Handler()

	rec := do(t, h, http.MethodPost, "/events", "", `{"detail":{"group":"service:api"}}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body: status = %d, want 413", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/events", brokenBody{})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("read failure: status = %d, want 400", rec.Code)
	}
	if fr.got != nil {
		t.Fatal("relay must not see a body that failed to read")
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	s := New(Config{Token: "s3cret"}, Deps{Relay: &fakeRelay{}, History: fakeHistory{}}, logx.Nop())
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/events", "", `{}`)
	if rec.Code != http.StatusUnauthorized || rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("no token: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/events", "wrong", `{}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/events", "s3cret", `{}`); rec.Code != http.StatusOK {
		t.Fatalf("bearer token: status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/notifications?token=s3cret", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("query token: status = %d", rec.Code)
	}
	// Health stays open for load balancer probes.
	if rec := do(t, h, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	var fail bool
	p := health.New(health.Config{}, logx.Nop(), nil, health.Check{Name: "store", Fn: func(ctx context.Context) error {
		if fail {
			return errors.New("connection refused")
		}
		return nil
	}})
	s := New(Config{}, Deps{Health: p}, logx.Nop())
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	fail = true
	rec = do(t, h, http.MethodGet, "/healthz?probe=1", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body healthBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OK || len(body.Checks) != 1 || body.Checks[0].Error != "connection refused" {
		t.Fatalf("body = %+v", body)
	}
}

func TestMetricsAndHistory(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	events := prometheus.NewCounter(prometheus.CounterOpts{Name: "ecsrelay_test_events_total", Help: "test"})
	reg.MustRegister(events)
	events.Inc()
	hist := fakeHistory{{At: time.Unix(0, 0), Sink: "slack", Channel: "#infra", Text: "*API*: is STOPPED"}}
	s := New(Config{}, Deps{History: hist, Gatherer: reg}, logx.Nop())
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/notifications", "", "")
	var items []notifier.HistoryItem
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil || len(items) != 1 || items[0].Sink != "slack" {
		t.Fatalf("history = %+v, err %v", items, err)
	}

	rec = do(t, h, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ecsrelay_test_events_total 1") {
		t.Fatalf("metrics body missing relay series:\n%s", rec.Body.String())
	}
}

func TestPprofOptIn(t *testing.T) {
	t.Parallel()
	off := New(Config{}, Deps{}, logx.Nop()).Handler()
	if rec := do(t, off, http.MethodGet, "/debug/pprof/", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled: status = %d", rec.Code)
	}
	on := New(Config{Pprof: true}, Deps{}, logx.Nop()).Handler()
	if rec := do(t, on, http.MethodGet, "/debug/pprof/", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("pprof enabled: status = %d", rec.Code)
	}
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "127.0.0.1:0"}, Deps{Relay: &fakeRelay{out: relay.Outcome{Action: "suppressed"}}}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("listener did not come up")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post("http://"+s.Addr()+"/events", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	if s.Supervisor() != nil {
		t.Fatal("supervisor must be cleared after Stop")
	}
}

func TestRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "0.0.0.0:0"}, Deps{}, logx.Nop())
	if err := s.serveOnce(context.Background()); err == nil {
		t.Fatal("non-loopback bind without token must be refused")
	}
	if !isLoopbackAddr("localhost:8080") || !isLoopbackAddr("[::1]:80") || isLoopbackAddr(":8080") {
		t.Fatal("isLoopbackAddr misclassified")
	}
}
