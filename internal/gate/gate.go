// Package gate decides whether a task lifecycle event is worth a notification.
//
// Filters drop known noise (migration tasks, autoscaling stops, tasks that
// never started). The remaining events go through a two-state record per task
// kept in the shared store:
//
//	STOPPED event              -> record := STOPPED, emit
//	RUNNING event, no record   -> suppress (normal start or deployment)
//	RUNNING event, STOPPED     -> delete record, emit (recovered)
//	anything else              -> emit, store untouched
//
// The read and the following delete are separate store calls. Two evaluations
// of the same task running at once can interleave between them; the store's
// single-key atomicity is the only guarantee.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ecsrelay/internal/ecsevent"
	"ecsrelay/internal/storage"
)

var ErrStoreUnavailable = errors.New("task state store unavailable")

// Default filter markers, matched literally.
const (
	DefaultMigrationMarker   = "migrator"
	DefaultAutoscalingMarker = "Scaling activity initiated by"
	DefaultFailedToStartCode = "TaskFailedToStart"
)

// SeverityGood is the attachment color of a task that is running again.
const SeverityGood = "good"

type Action int

const (
	ActionSuppress Action = iota
	ActionEmit
)

func (a Action) String() string {
	if a == ActionEmit {
		return "emitted"
	}
	return "suppressed"
}

// Rule names the branch that produced a Decision.
type Rule string

const (
	RuleMigrationTask   Rule = "migration_task"
	RuleAutoscalingStop Rule = "autoscaling_stop"
	RuleFailedToStart   Rule = "failed_to_start"
	RuleFreshRunning    Rule = "running_without_stop"
	RuleRecovered       Rule = "recovered"
	RuleStopped         Rule = "stopped"
	RulePassThrough     Rule = "pass_through"
)

type Decision struct {
	Action Action
	Rule   Rule
	// Prior is the record observed before the evaluation. It is StateAbsent
	// when the branch never read the store.
	Prior TaskState
}

func (d Decision) Emit() bool { return d.Action == ActionEmit }

// Config holds the literal filter markers. Empty lists fall back to defaults.
type Config struct {
	MigrationMarkers    []string
	AutoscalingMarkers  []string
	SuppressedStopCodes []string
	KeyPrefix           string
}

func (c Config) withDefaults() Config {
	if len(c.MigrationMarkers) == 0 {
		c.MigrationMarkers = []string{DefaultMigrationMarker}
	}
	if len(c.AutoscalingMarkers) == 0 {
		c.AutoscalingMarkers = []string{DefaultAutoscalingMarker}
	}
	if len(c.SuppressedStopCodes) == 0 {
		c.SuppressedStopCodes = []string{DefaultFailedToStartCode}
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	return c
}

// Gate is safe for concurrent use; see the package comment for the race it
// does not prevent.
type Gate struct {
	mu      sync.RWMutex
	cfg     Config
	records *Records
}

func New(cfg Config, store storage.Store) *Gate {
	cfg = cfg.withDefaults()
	return &Gate{cfg: cfg, records: NewRecords(store, cfg.KeyPrefix)}
}

// Apply swaps the filter markers. The key prefix is fixed at construction.
func (g *Gate) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	g.mu.Lock()
	cfg.KeyPrefix = g.cfg.KeyPrefix
	g.cfg = cfg
	g.mu.Unlock()
}

func (g *Gate) Records() *Records { return g.records }

func (g *Gate) config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Filter applies the noise filters only. ok=false means the event is suppressed by rule.
func (g *Gate) Filter(ev ecsevent.TaskEvent) (rule Rule, ok bool) {
	cfg := g.config()
	switch {
	case containsAny(ev.Task, cfg.MigrationMarkers):
		return RuleMigrationTask, false
	case containsAny(ev.StoppedReason, cfg.AutoscalingMarkers):
		return RuleAutoscalingStop, false
	case equalsAny(ev.StopCode, cfg.SuppressedStopCodes):
		return RuleFailedToStart, false
	}
	return "", true
}

// Evaluate runs the filters and the state machine for one event. Store errors
// abort the evaluation and wrap ErrStoreUnavailable.
func (g *Gate) Evaluate(ctx context.Context, ev ecsevent.TaskEvent) (Decision, error) {
	if rule, ok := g.Filter(ev); !ok {
		return Decision{Action: ActionSuppress, Rule: rule}, nil
	}

	switch ev.LastStatus {
	case ecsevent.StatusRunning:
		prior, err := g.records.Load(ctx, ev.Task)
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		switch prior {
		case StateAbsent:
			return Decision{Action: ActionSuppress, Rule: RuleFreshRunning, Prior: prior}, nil
		case StateStopped:
			if err := g.records.Clear(ctx, ev.Task); err != nil {
				return Decision{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
			}
			return Decision{Action: ActionEmit, Rule: RuleRecovered, Prior: prior}, nil
		default:
			return Decision{Action: ActionEmit, Rule: RulePassThrough, Prior: prior}, nil
		}
	case ecsevent.StatusStopped:
		if err := g.records.MarkStopped(ctx, ev.Task); err != nil {
			return Decision{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return Decision{Action: ActionEmit, Rule: RuleStopped}, nil
	default:
		return Decision{Action: ActionEmit, Rule: RulePassThrough}, nil
	}
}

// Severity returns the attachment color: good for a running task, the
// environment color otherwise.
func Severity(lastStatus, envColor string) string {
	if lastStatus == ecsevent.StatusRunning {
		return SeverityGood
	}
	return envColor
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func equalsAny(s string, codes []string) bool {
	for _, c := range codes {
		if c != "" && s == c {
			return true
		}
	}
	return false
}
