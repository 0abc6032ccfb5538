package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestSerialQueue_Shutdown verifies basic shutdown functionality
// Given: A SerialQueue
// When: Shutdown is called
// Then: IsClosed returns true
func TestSerialQueue_Shutdown(t *testing.T) {
	// Arrange
	pool := newTestThreadPool()
	pool.start()
	defer pool.stop()

	queue := NewSerialQueue(pool)

	// Assert - Initially not closed
	if queue.IsClosed() {
		t.Error("IsClosed() = true initially, want false")
	}

	// Act
	queue.Shutdown()

	// Assert
	if !queue.IsClosed() {
		t.Error("IsClosed() = false after Shutdown(), want true")
	}
}

// TestSerialQueue_Shutdown_ClearsPendingTasks verifies shutdown clears pending tasks
// Given: A SerialQueue with 10 pending slow tasks
// When: Shutdown is called immediately
// Then: Pending queue is cleared, most tasks don't execute
func TestSerialQueue_Shutdown_ClearsPendingTasks(t *testing.T) {
	// Arrange
	pool := newTestThreadPool()
	pool.start()
	defer pool.stop()

	queue := NewSerialQueue(pool)

	var executed atomic.Int32

	// Act - Post slow tasks
	for i := 0; i < 10; i++ {
		queue.PostTask(func(ctx context.Context) {
			time.Sleep(100 * time.Millisecond)
			executed.Add(1)
		})
	}

	time.Sleep(10 * time.Millisecond)
	queue.Shutdown()

	time.Sleep(200 * time.Millisecond)

	// Assert - Most tasks didn't execute due to shutdown
	count := executed.Load()
	if count >= 5 {
		t.Errorf("executed = %d, want <5 (queue cleared)", count)
	}
}

// TestSerialQueue_Shutdown_StopsRepeatingTasks verifies shutdown stops repeating tasks
// Given: A SerialQueue with active repeating task
// When: Shutdown is called
// Then: Repeating task stops executing
func TestSerialQueue_Shutdown_StopsRepeatingTasks(t *testing.T) {
	// Arrange
	pool := newTestThreadPool()
	pool.start()
	defer pool.stop()

	queue := NewSerialQueue(pool)

	var counter atomic.Int32

	queue.PostRepeatingTask(func(ctx context.Context) {
		counter.Add(1)
	}, 50*time.Millisecond)

	time.Sleep(200 * time.Millisecond)

	// Act
	queue.Shutdown()

	countAtShutdown := counter.Load()
	time.Sleep(200 * time.Millisecond)
	countAfterShutdown := counter.Load()

	// Assert - Task stops executing after shutdown
	if countAfterShutdown > countAtShutdown+1 {
		t.Errorf("count after = %d, want ~%d", countAfterShutdown, countAtShutdown)
	}
}

// TestSerialQueue_Shutdown_MultipleRepeatingTasks verifies shutdown with multiple repeating tasks
// Given: A SerialQueue with 3 repeating tasks
// When: Shutdown is called
// Then: All repeating tasks stop
func TestSerialQueue_Shutdown_MultipleRepeatingTasks(t *testing.T) {
	// Arrange
	pool := newTestThreadPool()
	pool.start()
	defer pool.stop()

	queue := NewSerialQueue(pool)

	var counter1, counter2, counter3 atomic.Int32

	queue.PostRepeatingTask(func(ctx context.Context) {
		counter1.Add(1)
	}, 30*time.Millisecond)

	queue.PostRepeatingTask(func(ctx context.Context) {
		counter2.Add(1)
	}, 40*time.Millisecond)

	queue.PostRepeatingTask(func(ctx context.Context) {
		counter3.Add(1)
	}, 50*time.Millisecond)

	time.Sleep(200 * time.Millisecond)

	// Act
	queue.Shutdown()

	c1 := counter1.Load()
	c2 := counter2.Load()
	c3 := counter3.Load()

	time.Sleep(200 * time.Millisecond)

	// Assert - All stopped
	if counter1.Load() > c1+1 {
		t.Error("Task 1 continued after shutdown")
	}
	if counter2.Load() > c2+1 {
		t.Error("Task 2 continued after shutdown")
	}
	if counter3.Load() > c3+1 {
		t.Error("Task 3 continued after shutdown")
	}
}

// TestSerialQueue_Shutdown_WithDelayedTasks verifies shutdown with delayed tasks
// Given: A SerialQueue with a 100ms delayed task
// When: Shutdown is called before delay expires
// Then: Task may still execute if already in DelayManager
func TestSerialQueue_Shutdown_WithDelayedTasks(t *testing.T) {
	// Arrange
	pool := newTestThreadPool()
	pool.start()
	defer pool.stop()

	queue := NewSerialQueue(pool)

	var executed atomic.Bool

	queue.PostDelayedTask(func(ctx context.Context) {
		executed.Store(true)
	}, 100*time.Millisecond)

	// Act - Shutdown before task executes
	time.Sleep(20 * time.Millisecond)
	queue.Shutdown()

	time.Sleep(150 * time.Millisecond)

	// Assert - Task might execute (already in DelayManager)
	// This is acceptable behavior - task won't be posted to closed queue
}

// TestSerialQueue_Shutdown_Idempotent verifies multiple shutdown calls are safe
// Given: A SerialQueue
// When: Shutdown is called multiple times
// Then: All calls complete, IsClosed returns true
func TestSerialQueue_Shutdown_Idempotent(t *testing.T) {
	// Arrange
	pool := newTestThreadPool()
	pool.start()
	defer pool.stop()

	queue := NewSerialQueue(pool)

	// Act - Multiple shutdowns
	queue.Shutdown()
	queue.Shutdown()
	queue.Shutdown()

	// Assert
	if !queue.IsClosed() {
		t.Error("IsClosed() = false, want true")
	}
}

// TestSerialQueue_Shutdown_ConcurrentShutdown verifies concurrent shutdown calls are safe
// Given: A SerialQueue with 100 tasks
// When: 10 goroutines call Shutdown concurrently
// Then: All calls complete without panic, queue is closed
func TestSerialQueue_Shutdown_ConcurrentShutdown(t *testing.T) {
	// Arrange
	pool := newTestThreadPool()
	pool.start()
	defer pool.stop()

	queue := NewSerialQueue(pool)

	// Add some tasks
	for i := 0; i < 100; i++ {
		queue.PostTask(func(ctx context.Context) {
			time.Sleep(1 * time.Millisecond)
		})
	}

	// Act - Concurrent shutdowns
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			queue.Shutdown()
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	// Assert
	if !queue.IsClosed() {
		t.Error("IsClosed() = false, want true")
	}
}

// TestSerialQueue_RepeatingTask_WithInitialDelay_Shutdown verifies shutdown with delayed repeating task
// Given: A repeating task with 200ms initial delay
// When: Shutdown is called before first execution
// Then: Task never executes
func TestSerialQueue_RepeatingTask_WithInitialDelay_Shutdown(t *testing.T) {
	// Arrange
	pool := newTestThreadPool()
	pool.start()
	defer pool.stop()

	queue := NewSerialQueue(pool)

	var executed atomic.Bool

	queue.PostRepeatingTaskWithInitialDelay(
		func(ctx context.Context) {
			executed.Store(true)
		},
		200*time.Millisecond,
		50*time.Millisecond,
		DefaultTraits(),
	)

	// Act - Shutdown before first execution
	time.Sleep(50 * time.Millisecond)
	queue.Shutdown()

	time.Sleep(200 * time.Millisecond)

	// Assert
	if executed.Load() {
		t.Error("executed = true, want false (shutdown before first execution)")
	}
}
