package core

import (
	"context"
	"time"
)

// TaskWithResult is a task that produces a value of type T (or an error).
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult consumes the value produced by a TaskWithResult.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// =============================================================================
// PostTaskAndReply Internal Helpers
// =============================================================================

// postTaskAndReplyInternalWithTraits is the core implementation for the
// PostTaskAndReply pattern. It wraps the task and reply to ensure proper
// execution order:
// 1. Execute task on targetQueue
// 2. If task completes successfully (no panic), post reply to replyQueue
//
// This function allows specifying different traits for task and reply separately.
func postTaskAndReplyInternalWithTraits(
	targetQueue Queue,
	task Task,
	taskTraits Traits,
	reply Task,
	replyTraits Traits,
	replyQueue Queue,
) {
	if replyQueue == nil {
		// No reply queue specified, just execute the task
		targetQueue.PostTaskWithTraits(task, taskTraits)
		return
	}

	wrappedTask := func(ctx context.Context) {
		// Track whether task panicked
		panicked := true

		// Execute task with panic recovery
		func() {
			defer func() {
				if r := recover(); r != nil {
					NewDefaultLogger().Error("task panicked, reply will not run", F("panic", r))
				}
			}()
			task(ctx)
			panicked = false
		}()

		// If task completed successfully, post reply to replyQueue
		if !panicked {
			replyQueue.PostTaskWithTraits(reply, replyTraits)
		}
	}

	targetQueue.PostTaskWithTraits(wrappedTask, taskTraits)
}

// postTaskAndReplyInternal is a simplified version that uses the same traits for the task.
func postTaskAndReplyInternal(
	targetQueue Queue,
	task Task,
	reply Task,
	replyQueue Queue,
	traits Traits,
) {
	postTaskAndReplyInternalWithTraits(
		targetQueue,
		task,
		traits,
		reply,
		DefaultTraits(), // Reply uses default traits
		replyQueue,
	)
}

// =============================================================================
// Generic PostTaskAndReply with Result
// =============================================================================

// PostTaskAndReplyWithResult executes a task that returns a result of type T and an error,
// then passes that result to a reply callback on the replyQueue.
//
// This function uses closure capture to safely pass the result across goroutines.
// The captured variables (result and err) will escape to the heap, ensuring thread safety.
//
// Execution guarantee (Happens-Before):
// - The task ALWAYS completes before the reply starts
// - The reply ALWAYS sees the final values written by the task
// - This is guaranteed by the sequential execution in wrappedTask
//
// Example:
//
//	PostTaskAndReplyWithResult(
//	    backgroundQueue,
//	    func(ctx context.Context) (int, error) {
//	        return len("Hello"), nil
//	    },
//	    func(ctx context.Context, length int, err error) {
//	        fmt.Printf("Length: %d\n", length)
//	    },
//	    uiQueue,
//	)
func PostTaskAndReplyWithResult[T any](
	targetQueue Queue,
	task TaskWithResult[T],
	reply ReplyWithResult[T],
	replyQueue Queue,
) {
	PostTaskAndReplyWithResultAndTraits(
		targetQueue,
		task,
		DefaultTraits(),
		reply,
		DefaultTraits(),
		replyQueue,
	)
}

// PostTaskAndReplyWithResultAndTraits is the full-featured version that allows specifying
// different traits for the task and reply separately.
//
// This is useful when:
// - Task is background work (QoSBackground) but reply is an interactive update (QoSUserInteractive)
// - Task has different QoS requirements than the reply
//
// Example:
//
//	PostTaskAndReplyWithResultAndTraits(
//	    backgroundQueue,
//	    func(ctx context.Context) (*UserData, error) {
//	        return fetchUserFromDB(ctx)
//	    },
//	    TraitsBackground(),        // Background work, lowest class
//	    func(ctx context.Context, user *UserData, err error) {
//	        updateUI(user)
//	    },
//	    TraitsUserInteractive(),   // Interactive update, highest class
//	    uiQueue,
//	)
func PostTaskAndReplyWithResultAndTraits[T any](
	targetQueue Queue,
	task TaskWithResult[T],
	taskTraits Traits,
	reply ReplyWithResult[T],
	replyTraits Traits,
	replyQueue Queue,
) {
	// Declare shared variables to capture result and error
	// These will escape to heap due to closure capture, ensuring thread safety
	var result T
	var err error

	// Wrap task: executes and captures result/error
	wrappedTask := func(ctx context.Context) {
		result, err = task(ctx)
	}

	// Wrap reply: receives result/error
	// By the Happens-Before guarantee, when this executes, the variables
	// have been written by wrappedTask, so access is safe
	wrappedReply := func(ctx context.Context) {
		reply(ctx, result, err)
	}

	// Use the internal helper to handle execution order
	postTaskAndReplyInternalWithTraits(
		targetQueue,
		wrappedTask,
		taskTraits,
		wrappedReply,
		replyTraits,
		replyQueue,
	)
}

// =============================================================================
// Delayed Task and Reply
// =============================================================================

// PostDelayedTaskAndReplyWithResult is similar to PostTaskAndReplyWithResult,
// but delays the execution of the task.
//
// The reply is NOT delayed - it executes immediately after the task completes.
// Only the initial task execution is delayed by the specified duration.
//
// Example:
//
//	PostDelayedTaskAndReplyWithResult(
//	    queue,
//	    func(ctx context.Context) (string, error) {
//	        return "delayed result", nil
//	    },
//	    2*time.Second,  // Wait 2 seconds before starting task
//	    func(ctx context.Context, result string, err error) {
//	        fmt.Println(result)  // Executes immediately after task completes
//	    },
//	    replyQueue,
//	)
func PostDelayedTaskAndReplyWithResult[T any](
	targetQueue Queue,
	task TaskWithResult[T],
	delay time.Duration,
	reply ReplyWithResult[T],
	replyQueue Queue,
) {
	PostDelayedTaskAndReplyWithResultAndTraits(
		targetQueue,
		task,
		delay,
		DefaultTraits(),
		reply,
		DefaultTraits(),
		replyQueue,
	)
}

// PostDelayedTaskAndReplyWithResultAndTraits is the full-featured delayed version
// with separate traits for task and reply.
func PostDelayedTaskAndReplyWithResultAndTraits[T any](
	targetQueue Queue,
	task TaskWithResult[T],
	delay time.Duration,
	taskTraits Traits,
	reply ReplyWithResult[T],
	replyTraits Traits,
	replyQueue Queue,
) {
	var result T
	var err error

	wrappedTask := func(ctx context.Context) {
		result, err = task(ctx)
	}

	wrappedReply := func(ctx context.Context) {
		reply(ctx, result, err)
	}

	// Create a delayed task that will execute task then reply
	delayedWrapper := func(ctx context.Context) {
		// Execute task
		panicked := true
		func() {
			defer func() {
				if r := recover(); r != nil {
					NewDefaultLogger().Error("delayed task panicked, reply will not run", F("panic", r))
				}
			}()
			wrappedTask(ctx)
			panicked = false
		}()

		// Post reply if task succeeded
		if !panicked && replyQueue != nil {
			replyQueue.PostTaskWithTraits(wrappedReply, replyTraits)
		}
	}

	// Post the delayed wrapper
	targetQueue.PostDelayedTaskWithTraits(delayedWrapper, delay, taskTraits)
}
