package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// TaskID uniquely identifies one posted task in execution history.
type TaskID string

// GenerateTaskID returns a new unique TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.NewString())
}

func (id TaskID) String() string {
	return string(id)
}

// IsZero reports whether the ID is the zero value, i.e. was never generated.
func (id TaskID) IsZero() bool {
	return id == ""
}

// =============================================================================
// Traits: Define task attributes (QoS class, blocking behavior, etc.)
// =============================================================================

// QoS is the quality-of-service class of a task. It decides which global
// queue a task lands on and how the scheduler orders ready work.
type QoS int

const (
	// QoSBackground: Lowest class. Work the user never waits on
	// (prefetching, cleanup, maintenance).
	QoSBackground QoS = iota

	// QoSUtility: Low class. Long-running work with visible progress.
	QoSUtility

	// QoSDefault: The class used when the caller states no preference.
	QoSDefault

	// QoSUserInteractive: Highest class.
	// Work the user is actively waiting on. If it lags, the interaction
	// visibly stutters, so the scheduler always prefers it.
	QoSUserInteractive
)

func (q QoS) String() string {
	switch q {
	case QoSBackground:
		return "background"
	case QoSUtility:
		return "utility"
	case QoSDefault:
		return "default"
	case QoSUserInteractive:
		return "user_interactive"
	default:
		return "unknown"
	}
}

type Traits struct {
	QoS      QoS
	MayBlock bool
	Label    string
}

func DefaultTraits() Traits {
	return Traits{QoS: QoSDefault}
}

// TraitsFor returns the plain traits for a QoS class.
func TraitsFor(qos QoS) Traits {
	return Traits{QoS: qos}
}

func TraitsUserInteractive() Traits {
	return Traits{QoS: QoSUserInteractive}
}

func TraitsUtility() Traits {
	return Traits{QoS: QoSUtility}
}

func TraitsBackground() Traits {
	return Traits{QoS: QoSBackground}
}

// =============================================================================
// Queue: Define task submission interface
// =============================================================================

// Queue is an execution context: a destination work can be posted to.
// Ordering, parallelism and priority semantics are defined by the
// implementation (MainQueue, SerialQueue, GlobalQueue, SyncQueue).
type Queue interface {
	PostTask(task Task)
	PostTaskWithTraits(task Task, traits Traits)
	PostDelayedTask(task Task, delay time.Duration)
	PostDelayedTaskWithTraits(task Task, delay time.Duration, traits Traits)
}

// =============================================================================
// Context Helper
// =============================================================================
type queueKeyType struct{}

var queueKey queueKeyType

// CurrentQueue returns the Queue executing the calling task, or nil when the
// context does not belong to a managed queue.
func CurrentQueue(ctx context.Context) Queue {
	if v := ctx.Value(queueKey); v != nil {
		return v.(Queue)
	}
	return nil
}

func withQueue(ctx context.Context, q Queue) context.Context {
	return context.WithValue(ctx, queueKey, q)
}
