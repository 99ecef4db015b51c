// Package health runs dependency probes on a cron schedule and keeps the
// latest result per probe for the HTTP health endpoint.
package health

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ecsrelay/internal/eventbus"
	logx "ecsrelay/pkg/logx"
)

const defaultTimeout = 5 * time.Second

// Check is one named dependency probe, e.g. the store's Ping.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Status struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
	At      time.Time     `json:"at"`
	Latency time.Duration `json:"latency"`
}

type Config struct {
	// Schedule is a cron spec ("@every 1m", "*/5 * * * *"). Empty disables
	// scheduled runs; RunOnce still works.
	Schedule string
	Timeout  time.Duration
}

type Prober struct {
	mu     sync.Mutex
	cfg    Config
	checks []Check
	log    logx.Logger
	bus    eventbus.Bus
	parser cron.Parser

	parent context.Context // non-nil between Start and Stop
	c      *cron.Cron
	cancel context.CancelFunc

	smu  sync.RWMutex
	last map[string]Status
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, checks ...Check) *Prober {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Prober{
		cfg:    cfg,
		checks: checks,
		log:    log,
		bus:    bus,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		last:   map[string]Status{},
	}
}

// Start schedules the probes under ctx. It is idempotent and returns an
// error only for an unparsable schedule.
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parent != nil {
		return nil
	}
	p.parent = ctx
	return p.scheduleLocked()
}

func (p *Prober) scheduleLocked() error {
	spec := strings.TrimSpace(p.cfg.Schedule)
	if spec == "" {
		p.log.Debug("health probe disabled (no schedule)")
		return nil
	}
	sched, err := p.parser.Parse(spec)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(p.parent)
	p.cancel = cancel
	p.c = cron.New(cron.WithParser(p.parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	p.c.Schedule(sched, cron.FuncJob(func() { p.RunOnce(runCtx) }))
	p.c.Start()
	p.log.Info("health probe started", logx.String("schedule", spec), logx.Int("checks", len(p.checks)))
	return nil
}

// unscheduleLocked stops the cron and returns its completion context.
func (p *Prober) unscheduleLocked() context.Context {
	if p.c == nil {
		return nil
	}
	done := p.c.Stop()
	p.cancel()
	p.c, p.cancel = nil, nil
	return done
}

// Stop halts the schedule and waits for a running probe until ctx is done.
func (p *Prober) Stop(ctx context.Context) {
	p.mu.Lock()
	done := p.unscheduleLocked()
	p.parent = nil
	p.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Apply swaps the config and reschedules a started prober when the schedule changed.
func (p *Prober) Apply(cfg Config) error {
	if spec := strings.TrimSpace(cfg.Schedule); spec != "" {
		if _, err := p.parser.Parse(spec); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := strings.TrimSpace(p.cfg.Schedule) != strings.TrimSpace(cfg.Schedule)
	p.cfg = cfg
	if p.parent == nil || !changed {
		return nil
	}
	p.unscheduleLocked()
	return p.scheduleLocked()
}

// RunOnce runs every check sequentially and records the results.
func (p *Prober) RunOnce(ctx context.Context) []Status {
	p.mu.Lock()
	timeout := p.cfg.Timeout
	checks := append([]Check(nil), p.checks...)
	p.mu.Unlock()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	out := make([]Status, 0, len(checks))
	for _, c := range checks {
		st := p.run(ctx, c, timeout)
		out = append(out, st)

		p.smu.Lock()
		prev, seen := p.last[c.Name]
		p.last[c.Name] = st
		p.smu.Unlock()

		switch {
		case !st.OK:
			p.log.Warn("health check failed", logx.String("check", c.Name), logx.String("err", st.Error), logx.Duration("latency", st.Latency))
		case seen && !prev.OK:
			p.log.Info("health check recovered", logx.String("check", c.Name))
		default:
			p.log.Debug("health check ok", logx.String("check", c.Name), logx.Duration("latency", st.Latency))
		}
		if p.bus != nil {
			p.bus.Publish(eventbus.Event{Type: eventbus.TypeHealthPrefix + c.Name, Time: st.At, Data: st})
		}
	}
	return out
}

func (p *Prober) run(ctx context.Context, c Check, timeout time.Duration) (st Status) {
	start := time.Now()
	st = Status{Name: c.Name, At: start}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			st.OK = false
			st.Error = "panic in check"
		}
		st.Latency = time.Since(start)
	}()
	if c.Fn == nil {
		st.Error = "check has no func"
		return st
	}
	if err := c.Fn(cctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.OK = true
	return st
}

// Last returns the latest status of each check, sorted by name.
func (p *Prober) Last() []Status {
	p.smu.RLock()
	out := make([]Status, 0, len(p.last))
	for _, st := range p.last {
		out = append(out, st)
	}
	p.smu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
