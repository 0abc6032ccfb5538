package core

import (
	"context"
	"time"
)

// =============================================================================
// ExecutorPool: Define pool-side execution interface
// =============================================================================

// WorkSource is the pull side of a scheduler: workers block on GetWork until
// a task is ready or stopCh closes.
type WorkSource interface {
	GetWork(stopCh <-chan struct{}) (Task, bool)
}

// ExecutorPool is the host scheduler queues post into. The root package's
// Dispatcher is the production implementation; tests substitute fakes.
type ExecutorPool interface {
	PostInternal(task Task, traits Traits)
	PostDelayedInternal(task Task, delay time.Duration, traits Traits, target Queue)

	Start(ctx context.Context)
	Stop()

	ID() string
	IsRunning() bool

	WorkerCount() int
	QueuedTaskCount() int  // In queue
	ActiveTaskCount() int  // Executing
	DelayedTaskCount() int // Delayed
}

// RepeatingTaskHandle controls the lifecycle of a repeating task.
type RepeatingTaskHandle interface {
	// Stop prevents future executions. A currently running execution,
	// if any, is not interrupted.
	Stop()

	// IsStopped reports whether Stop has been called.
	IsStopped() bool
}

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task (may contain queue info)
	// - queueName: The name of the queue where the panic occurred
	// - workerID: The ID of the worker (-1 for queues with a dedicated goroutine)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, queueName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler reports panics through a Logger.
type DefaultPanicHandler struct {
	// Logger receives the panic report. Nil falls back to DefaultLogger.
	Logger Logger
}

// HandlePanic logs panic information.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, queueName string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("queue", queueName),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// All methods are optional; implementations should handle nil receivers gracefully.
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	//
	// Parameters:
	// - queueName: The name of the queue
	// - qos: The task QoS class
	// - duration: How long the task took to execute
	RecordTaskDuration(queueName string, qos QoS, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	//
	// Parameters:
	// - queueName: The name of the queue
	// - panicInfo: The panic value recovered from the task
	RecordTaskPanic(queueName string, panicInfo any)

	// RecordQueueDepth records the current queue depth.
	// This can be called periodically to track queue growth/shrinkage.
	//
	// Parameters:
	// - queueName: The name of the queue
	// - depth: The current number of tasks in the queue
	RecordQueueDepth(queueName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., during shutdown).
	//
	// Parameters:
	// - queueName: The name of the queue
	// - reason: Why the task was rejected
	RecordTaskRejected(queueName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(queueName string, qos QoS, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(queueName string, panicInfo any) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(queueName string, depth int) {
}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(queueName string, reason string) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a task is rejected by the scheduler.
// This can happen when:
// - The scheduler is shutting down
// - The target queue is closed
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	// HandleRejectedTask is called when a task is rejected.
	//
	// Parameters:
	// - queueName: The name of the queue
	// - reason: Why the task was rejected (e.g., "shutdown", "closed")
	HandleRejectedTask(queueName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks through a Logger.
type DefaultRejectedTaskHandler struct {
	// Logger receives the rejection report. Nil falls back to DefaultLogger.
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(queueName string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("task rejected", F("queue", queueName), F("reason", reason))
}

// =============================================================================
// SchedulerConfig: Configuration for TaskScheduler
// =============================================================================

// SchedulerConfig holds configuration options for TaskScheduler.
// All handlers are optional; if not provided, default implementations will be used.
type SchedulerConfig struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives scheduler lifecycle and rejection logs. Defaults to DefaultLogger.
	Logger Logger
}

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	logger := NewDefaultLogger()
	return &SchedulerConfig{
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
		Logger:              logger,
	}
}
