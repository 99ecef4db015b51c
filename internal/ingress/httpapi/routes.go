package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/influxdata/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ecsrelay/internal/ecsevent"
	"ecsrelay/internal/health"
	"ecsrelay/internal/relay"
	logx "ecsrelay/pkg/logx"
)

// Handler builds the router. It is exported so tests (and embedders) can
// mount it without a listener.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	cfg := s.cfg
	deps := s.deps
	s.mu.Unlock()

	r := httprouter.New()
	r.AddMatchedRouteToContext = true
	r.PanicHandler = func(w http.ResponseWriter, req *http.Request, v interface{}) {
		s.log.Error("http handler panicked", logx.String("path", req.URL.Path), logx.Any("panic", v))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	r.HandlerFunc(http.MethodPost, "/events", s.withAuth(cfg.Token, s.handleEvents(cfg, deps.Relay)))
	// Load balancers probe /healthz without credentials.
	r.HandlerFunc(http.MethodGet, "/healthz", s.handleHealth(deps.Health))
	if deps.History != nil {
		r.HandlerFunc(http.MethodGet, "/notifications", s.withAuth(cfg.Token, func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, deps.History.Snapshot())
		}))
	}
	if deps.Gatherer != nil {
		r.HandlerFunc(http.MethodGet, "/metrics", s.withAuth(cfg.Token, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}).ServeHTTP))
	}
	if cfg.Pprof {
		r.HandlerFunc(http.MethodGet, "/debug/pprof/*name", s.withAuth(cfg.Token, pprofDispatch))
		r.HandlerFunc(http.MethodPost, "/debug/pprof/*name", s.withAuth(cfg.Token, pprofDispatch))
	}
	return r
}

func (s *Service) handleEvents(cfg Config, h EventHandler) http.HandlerFunc {
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			writeError(w, http.StatusServiceUnavailable, "relay not configured")
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			code := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				code = http.StatusRequestEntityTooLarge
			}
			writeError(w, code, err.Error())
			return
		}
		out, err := h.HandleRaw(r.Context(), body)
		if err != nil {
			code := statusFor(err)
			if code >= 500 {
				s.log.Warn("event rejected", logx.Int("status", code), logx.String("task", out.Task), logx.Err(err))
			} else {
				s.log.Debug("event rejected", logx.Int("status", code), logx.Err(err))
			}
			writeError(w, code, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ecsevent.ErrMalformedEvent):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrUpstreamUnavailable), errors.Is(err, relay.ErrDeliveryFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type healthBody struct {
	OK         bool            `json:"ok"`
	Checks     []health.Status `json:"checks"`
	Supervisor any             `json:"supervisor,omitempty"`
}

func (s *Service) handleHealth(p *health.Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := healthBody{OK: true, Checks: []health.Status{}}
		if p != nil {
			// ?probe=1 forces a fresh run instead of the last scheduled results.
			if r.URL.Query().Get("probe") != "" || len(p.Last()) == 0 {
				p.RunOnce(r.Context())
			}
			body.Checks = p.Last()
		}
		for _, st := range body.Checks {
			if !st.OK {
				body.OK = false
			}
		}
		if sup := s.Supervisor(); sup != nil {
			snap := sup.Snapshot()
			if snap.FirstError != "" {
				body.Supervisor = snap
			}
		}
		code := http.StatusOK
		if !body.OK {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, body)
	}
}

func pprofDispatch(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(httprouter.ParamsFromContext(r.Context()).ByName("name"), "/")
	switch name {
	case "cmdline":
		hpprof.Cmdline(w, r)
	case "profile":
		hpprof.Profile(w, r)
	case "symbol":
		hpprof.Symbol(w, r)
	case "trace":
		hpprof.Trace(w, r)
	default:
		hpprof.Index(w, r)
	}
}

func (s *Service) withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Accept either:
		//   Authorization: Bearer <token>
		// or query param: ?token=<token>
		got := r.URL.Query().Get("token")
		if got == "" {
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) {
				got = strings.TrimSpace(strings.TrimPrefix(ah, p))
			}
		}
		if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(tok)) == 1 {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
