package core

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// TestMainQueue_BasicExecution tests basic execution functionality
// Main test items:
// 1. Create MainQueue and submit tasks
// 2. Verify tasks execute correctly
// 3. Task execution flags are set correctly
func TestMainQueue_BasicExecution(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	var executed atomic.Bool

	queue.PostTask(func(ctx context.Context) {
		executed.Store(true)
	})

	time.Sleep(50 * time.Millisecond)

	if !executed.Load() {
		t.Error("Task was not executed")
	}
}

// TestMainQueue_ExecutionOrder tests execution order
// Main test items:
// 1. Submit multiple tasks to MainQueue
// 2. Verify tasks execute in submission order (FIFO)
// 3. All tasks are executed correctly
func TestMainQueue_ExecutionOrder(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	var order []int
	var mu atomic.Value
	mu.Store(&order)

	for i := 0; i < 10; i++ {
		id := i
		queue.PostTask(func(ctx context.Context) {
			ptr := mu.Load().(*[]int)
			*ptr = append(*ptr, id)
		})
	}

	time.Sleep(100 * time.Millisecond)

	result := *mu.Load().(*[]int)
	if len(result) != 10 {
		t.Fatalf("Expected 10 tasks executed, got %d", len(result))
	}

	for i := 0; i < 10; i++ {
		if result[i] != i {
			t.Errorf("Task order incorrect: expected %d at position %d, got %d", i, i, result[i])
		}
	}
}

// TestMainQueue_GoroutineAffinity tests goroutine affinity
// Main test items:
// 1. Verify all tasks execute on the same goroutine
// 2. Confirm affinity via goroutine ID
// 3. Tasks do not switch to other goroutines during execution
func TestMainQueue_GoroutineAffinity(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	goroutineIDs := make(map[uint64]bool)
	var mu atomic.Value
	mu.Store(&goroutineIDs)

	// Get goroutine ID helper
	getGoroutineID := func() uint64 {
		b := make([]byte, 64)
		b = b[:runtime.Stack(b, false)]
		// Parse "goroutine 123 [running]:"
		var id uint64
		for i := len("goroutine "); i < len(b); i++ {
			if b[i] >= '0' && b[i] <= '9' {
				id = id*10 + uint64(b[i]-'0')
			} else {
				break
			}
		}
		return id
	}

	// Post multiple tasks
	for i := 0; i < 20; i++ {
		queue.PostTask(func(ctx context.Context) {
			gid := getGoroutineID()
			ptr := mu.Load().(*map[uint64]bool)
			(*ptr)[gid] = true
		})
	}

	time.Sleep(100 * time.Millisecond)

	result := *mu.Load().(*map[uint64]bool)
	if len(result) != 1 {
		t.Errorf("Expected all tasks to run on same goroutine, but found %d different goroutines", len(result))
	}
}

// TestMainQueue_ContextCarriesQueue tests context propagation
// Main test items:
// 1. Tasks receive a context carrying the queue
// 2. CurrentQueue resolves to the posting queue
func TestMainQueue_ContextCarriesQueue(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	seen := make(chan Queue, 1)
	queue.PostTask(func(ctx context.Context) {
		seen <- CurrentQueue(ctx)
	})

	select {
	case got := <-seen:
		if got != Queue(queue) {
			t.Errorf("CurrentQueue = %v, want the posting queue", got)
		}
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

// TestMainQueue_DelayedTask tests delayed task
// Main test items:
// 1. Submit delayed task and verify it doesn't execute immediately
// 2. Verify task executes after delay time expires
// 3. Verify actual delay time matches expectations
func TestMainQueue_DelayedTask(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	var executed atomic.Bool
	start := time.Now()

	queue.PostDelayedTask(func(ctx context.Context) {
		executed.Store(true)
	}, 100*time.Millisecond)

	// Should not execute immediately
	time.Sleep(50 * time.Millisecond)
	if executed.Load() {
		t.Error("Delayed task executed too early")
	}

	// Wait for execution
	time.Sleep(100 * time.Millisecond)
	if !executed.Load() {
		t.Error("Delayed task was not executed")
	}

	elapsed := time.Since(start)
	if elapsed < 100*time.Millisecond {
		t.Errorf("Delayed task executed too early: %v", elapsed)
	}
}

// TestMainQueue_RepeatingTask tests repeating task
// Main test items:
// 1. Create repeating task
// 2. Verify task repeats at specified interval
// 3. Task stops executing after calling Stop
func TestMainQueue_RepeatingTask(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	var counter atomic.Int32

	handle := queue.PostRepeatingTask(func(ctx context.Context) {
		counter.Add(1)
	}, 50*time.Millisecond)

	// Let it run a few times
	time.Sleep(200 * time.Millisecond)

	// Stop the repeating task
	handle.Stop()
	countAtStop := counter.Load()

	// Wait and verify it stopped
	time.Sleep(150 * time.Millisecond)
	countAfterStop := counter.Load()

	if countAtStop < 2 {
		t.Errorf("Repeating task should have run at least 2 times, got %d", countAtStop)
	}

	if countAfterStop > countAtStop+1 {
		t.Errorf("Repeating task continued after stop: before=%d, after=%d", countAtStop, countAfterStop)
	}
}

// TestMainQueue_RepeatingTaskWithInitialDelay tests repeating task with initial delay
// Main test items:
// 1. Create repeating task with initial delay
// 2. Verify task doesn't execute during initial delay
// 3. Verify task starts periodic execution after initial delay
func TestMainQueue_RepeatingTaskWithInitialDelay(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	var counter atomic.Int32
	start := time.Now()

	handle := queue.PostRepeatingTaskWithInitialDelay(
		func(ctx context.Context) {
			counter.Add(1)
		},
		100*time.Millisecond, // Initial delay
		50*time.Millisecond,  // Interval
		DefaultTraits(),
	)
	defer handle.Stop()

	// Should not execute immediately
	time.Sleep(50 * time.Millisecond)
	if counter.Load() > 0 {
		t.Error("Repeating task with initial delay executed too early")
	}

	// Wait for initial delay + some intervals
	time.Sleep(200 * time.Millisecond)

	elapsed := time.Since(start)
	count := counter.Load()

	if count < 1 {
		t.Error("Repeating task did not execute after initial delay")
	}

	if elapsed < 100*time.Millisecond {
		t.Errorf("First execution happened before initial delay: %v", elapsed)
	}
}

// TestMainQueue_Shutdown tests shutdown functionality
// Main test items:
// 1. Verify queue is not closed initially
// 2. Queue is in closed state after calling Shutdown
// 3. IsClosed method correctly reflects closed state
func TestMainQueue_Shutdown(t *testing.T) {
	queue := NewMainQueue()

	// Initially not closed
	if queue.IsClosed() {
		t.Error("Queue should not be closed initially")
	}

	// Shutdown
	queue.Shutdown()

	// Should be closed
	if !queue.IsClosed() {
		t.Error("Queue should be closed after Shutdown()")
	}

	queue.Stop()
}

// TestMainQueue_Shutdown_StopsRepeatingTasks tests that shutdown stops repeating tasks
// Main test items:
// 1. Create and start repeating task
// 2. Call Shutdown to close queue
// 3. Verify repeating task stops after shutdown
func TestMainQueue_Shutdown_StopsRepeatingTasks(t *testing.T) {
	queue := NewMainQueue()

	var counter atomic.Int32

	queue.PostRepeatingTask(func(ctx context.Context) {
		counter.Add(1)
	}, 50*time.Millisecond)

	// Let it run a few times
	time.Sleep(150 * time.Millisecond)

	// Shutdown
	queue.Shutdown()
	countAtShutdown := counter.Load()

	// Wait and verify no more executions
	time.Sleep(150 * time.Millisecond)
	countAfterShutdown := counter.Load()

	if countAfterShutdown > countAtShutdown+1 {
		t.Errorf("Repeating task continued after shutdown: before=%d, after=%d",
			countAtShutdown, countAfterShutdown)
	}

	queue.Stop()
}

// TestMainQueue_PostTaskAfterShutdown tests posting tasks after shutdown
// Main test items:
// 1. Shutdown queue first
// 2. Attempt to submit tasks after shutdown
// 3. Verify tasks submitted after shutdown are dropped and counted
func TestMainQueue_PostTaskAfterShutdown(t *testing.T) {
	queue := NewMainQueue()
	queue.Shutdown()

	var executed atomic.Bool

	// Post task after shutdown
	queue.PostTask(func(ctx context.Context) {
		executed.Store(true)
	})

	time.Sleep(100 * time.Millisecond)

	// Task should not execute
	if executed.Load() {
		t.Error("Task should not execute after shutdown")
	}

	// The drop is visible through the rejected counter
	if got := queue.RejectedCount(); got != 1 {
		t.Errorf("RejectedCount() = %d, want 1", got)
	}

	queue.Stop()
}

// TestMainQueue_Stop tests stop functionality
// Main test items:
// 1. Verify Stop correctly closes queue
// 2. Tasks before stop can complete execution
// 3. Tasks submitted after stop do not execute
func TestMainQueue_Stop(t *testing.T) {
	queue := NewMainQueue()

	// Add a task that executes immediately
	var executed atomic.Bool
	queue.PostTask(func(ctx context.Context) {
		executed.Store(true)
	})

	// Let it start executing
	time.Sleep(50 * time.Millisecond)

	// Stop the queue
	queue.Stop()

	if !queue.IsClosed() {
		t.Error("Queue should be closed after Stop()")
	}

	// The task that executed before stop should have completed
	if !executed.Load() {
		t.Error("Task should have completed before stop")
	}

	// New tasks posted after stop should not execute
	var executed2 atomic.Bool
	queue.PostTask(func(ctx context.Context) {
		executed2.Store(true)
	})

	time.Sleep(100 * time.Millisecond)
	if executed2.Load() {
		t.Error("Task posted after stop should not execute")
	}
}

// TestMainQueue_MultipleRepeatingTasks tests multiple repeating tasks
// Main test items:
// 1. Run multiple repeating tasks with different periods simultaneously
// 2. Verify each task executes at its respective period
// 3. Stop each repeating task individually
func TestMainQueue_MultipleRepeatingTasks(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	var counter1, counter2, counter3 atomic.Int32

	handle1 := queue.PostRepeatingTask(func(ctx context.Context) {
		counter1.Add(1)
	}, 30*time.Millisecond)

	handle2 := queue.PostRepeatingTask(func(ctx context.Context) {
		counter2.Add(1)
	}, 40*time.Millisecond)

	handle3 := queue.PostRepeatingTask(func(ctx context.Context) {
		counter3.Add(1)
	}, 50*time.Millisecond)

	// Let them run
	time.Sleep(200 * time.Millisecond)

	// All should have executed multiple times
	if counter1.Load() < 3 {
		t.Errorf("Task 1 should have run at least 3 times, got %d", counter1.Load())
	}
	if counter2.Load() < 2 {
		t.Errorf("Task 2 should have run at least 2 times, got %d", counter2.Load())
	}
	if counter3.Load() < 2 {
		t.Errorf("Task 3 should have run at least 2 times, got %d", counter3.Load())
	}

	// Stop all
	handle1.Stop()
	handle2.Stop()
	handle3.Stop()

	c1 := counter1.Load()
	c2 := counter2.Load()
	c3 := counter3.Load()

	// Wait and verify all stopped
	time.Sleep(150 * time.Millisecond)

	if counter1.Load() > c1+1 {
		t.Error("Task 1 continued after stop")
	}
	if counter2.Load() > c2+1 {
		t.Error("Task 2 continued after stop")
	}
	if counter3.Load() > c3+1 {
		t.Error("Task 3 continued after stop")
	}
}

// TestMainQueue_PanicRecovery tests panic recovery
// Main test items:
// 1. Submit task that will panic
// 2. Verify subsequent tasks can still execute after panic
// 3. Queue remains in normal operating state after panic
func TestMainQueue_PanicRecovery(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	var executed atomic.Bool

	// Post task that panics
	queue.PostTask(func(ctx context.Context) {
		panic("test panic")
	})

	// Post task after panic
	queue.PostTask(func(ctx context.Context) {
		executed.Store(true)
	})

	time.Sleep(100 * time.Millisecond)

	// Second task should still execute despite panic in first task
	if !executed.Load() {
		t.Error("Task after panic was not executed")
	}

	// Queue should still be operational
	if queue.IsClosed() {
		t.Error("Queue should not be closed after panic")
	}
}

// TestMainQueue_CustomPanicHandler tests panic hand-off to a configured handler
// Main test items:
// 1. Configure queue with a custom panic handler
// 2. Submit a panicking task
// 3. Verify the handler observes the panic value and queue name
func TestMainQueue_CustomPanicHandler(t *testing.T) {
	handler := &recordingPanicHandler{}
	queue := NewMainQueueWithConfig(&SchedulerConfig{
		PanicHandler: handler,
		Logger:       NewNoOpLogger(),
	})
	defer queue.Stop()
	queue.SetName("ui")

	queue.PostTask(func(ctx context.Context) {
		panic("handled panic")
	})

	time.Sleep(100 * time.Millisecond)

	if got := handler.count.Load(); got != 1 {
		t.Fatalf("handler invoked %d times, want 1", got)
	}
	if got := handler.lastInfo.Load(); got != "handled panic" {
		t.Errorf("panic info = %v, want %q", got, "handled panic")
	}
}

type recordingPanicHandler struct {
	count    atomic.Int32
	lastInfo atomic.Value
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, queueName string, workerID int, panicInfo any, stackTrace []byte) {
	h.count.Add(1)
	h.lastInfo.Store(panicInfo)
}

// TestMainQueue_IdempotentShutdown tests idempotent shutdown
// Main test items:
// 1. Call Shutdown and Stop methods multiple times
// 2. Verify repeated calls do not cause errors
// 3. Ensure queue is correctly in closed state
func TestMainQueue_IdempotentShutdown(t *testing.T) {
	queue := NewMainQueue()

	// Multiple shutdowns should be safe
	queue.Shutdown()
	queue.Shutdown()
	queue.Stop()
	queue.Stop()

	if !queue.IsClosed() {
		t.Error("Queue should be closed")
	}
}

// TestMainQueue_ConcurrentPostTask tests concurrent task submission
// Main test items:
// 1. Submit tasks concurrently from multiple goroutines
// 2. Verify all tasks are executed correctly
// 3. Ensure no tasks are lost in concurrent scenarios
func TestMainQueue_ConcurrentPostTask(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	var counter atomic.Int32
	done := make(chan struct{})

	// Post tasks from multiple goroutines
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				queue.PostTask(func(ctx context.Context) {
					counter.Add(1)
				})
			}
			done <- struct{}{}
		}()
	}

	// Wait for all goroutines to finish posting
	for i := 0; i < 10; i++ {
		<-done
	}

	// Wait for all tasks to execute
	time.Sleep(200 * time.Millisecond)

	// All 100 tasks should have executed
	if counter.Load() != 100 {
		t.Errorf("Expected 100 tasks executed, got %d", counter.Load())
	}
}

// TestMainQueue_Metadata tests queue metadata
// Main test items:
// 1. Set and read metadata entries
// 2. Metadata snapshot is a copy, not a live view
func TestMainQueue_Metadata(t *testing.T) {
	queue := NewMainQueue()
	defer queue.Stop()

	queue.SetName("main")
	queue.SetMetadata("owner", "ui-team")
	queue.SetMetadata("tier", 1)

	meta := queue.Metadata()
	if meta["owner"] != "ui-team" {
		t.Errorf("metadata owner = %v, want %q", meta["owner"], "ui-team")
	}
	if meta["tier"] != 1 {
		t.Errorf("metadata tier = %v, want 1", meta["tier"])
	}

	// Mutating the snapshot must not touch the queue
	meta["owner"] = "other"
	if got := queue.Metadata()["owner"]; got != "ui-team" {
		t.Errorf("metadata owner after snapshot mutation = %v, want %q", got, "ui-team")
	}
}
