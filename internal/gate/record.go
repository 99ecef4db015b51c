package gate

import (
	"context"
	"fmt"

	"ecsrelay/internal/ecsevent"
	"ecsrelay/internal/storage"
)

// DefaultKeyPrefix namespaces task-state records in the shared store.
const DefaultKeyPrefix = "ecs_task_state:"

// TaskState is the persisted suppression flag of one task.
type TaskState int

const (
	// StateAbsent means no record exists for the task, or it is empty.
	StateAbsent TaskState = iota
	// StateStopped means the task was last observed STOPPED and has not recovered yet.
	StateStopped
	// StateUnknown means a record exists but holds a value this gate never writes.
	StateUnknown
)

func (s TaskState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStopped:
		return ecsevent.StatusStopped
	default:
		return "unknown"
	}
}

// Records maps TaskState onto single-key store operations.
type Records struct {
	store  storage.Store
	prefix string
}

func NewRecords(store storage.Store, prefix string) *Records {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Records{store: store, prefix: prefix}
}

// Key returns the store key for task.
func (r *Records) Key(task string) string { return r.prefix + task }

func (r *Records) Load(ctx context.Context, task string) (TaskState, error) {
	v, ok, err := r.store.Get(ctx, r.Key(task))
	if err != nil {
		return StateAbsent, fmt.Errorf("load %s: %w", r.Key(task), err)
	}
	switch {
	case !ok, v == "":
		return StateAbsent, nil
	case v == ecsevent.StatusStopped:
		return StateStopped, nil
	default:
		return StateUnknown, nil
	}
}

func (r *Records) MarkStopped(ctx context.Context, task string) error {
	if err := r.store.Set(ctx, r.Key(task), ecsevent.StatusStopped); err != nil {
		return fmt.Errorf("mark %s: %w", r.Key(task), err)
	}
	return nil
}

func (r *Records) Clear(ctx context.Context, task string) error {
	if err := r.store.Delete(ctx, r.Key(task)); err != nil {
		return fmt.Errorf("clear %s: %w", r.Key(task), err)
	}
	return nil
}
