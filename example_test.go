package dispatch_test

import (
	"context"
	"fmt"
	"time"

	"github.com/go-dispatch/dispatch"
)

// ExampleCreateSerialQueue demonstrates the basic usage with only one import.
func ExampleCreateSerialQueue() {
	// Initialize global dispatcher
	dispatch.InitGlobalDispatcher(2)
	defer dispatch.ShutdownGlobalDispatcher()

	// Create a serial queue (FIFO, one task at a time)
	queue := dispatch.CreateSerialQueue()

	done := make(chan struct{})

	// Post sequential tasks
	queue.PostTask(func(ctx context.Context) {
		fmt.Println("Task 1")
	})

	queue.PostTask(func(ctx context.Context) {
		fmt.Println("Task 2")
	})

	queue.PostTask(func(ctx context.Context) {
		fmt.Println("Task 3")
		close(done)
	})

	<-done
	time.Sleep(10 * time.Millisecond) // Allow output to flush

	// Output:
	// Task 1
	// Task 2
	// Task 3
}

// ExampleCreateTaskGroup demonstrates tracking a batch of tasks to completion.
func ExampleCreateTaskGroup() {
	dispatch.InitGlobalDispatcher(4)
	defer dispatch.ShutdownGlobalDispatcher()

	group := dispatch.CreateTaskGroup()

	results := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		n := i
		group.PostTask(func(ctx context.Context) {
			results <- n * n
		})
	}

	// Register a completion callback; it runs once the last task finishes
	notified := make(chan struct{})
	group.Notify(func(ctx context.Context) {
		close(notified)
	})

	// Join blocks until every submitted task has completed
	if err := group.JoinWithTimeout(time.Second); err != nil {
		fmt.Println("join failed:", err)
		return
	}
	<-notified

	close(results)
	sum := 0
	for r := range results {
		sum += r
	}
	fmt.Println("sum of squares:", sum)

	// Output:
	// sum of squares: 14
}

// ExampleTaskGroup_JoinWithTimeout demonstrates the timeout versus completion
// outcomes of waiting on a group.
func ExampleTaskGroup_JoinWithTimeout() {
	dispatch.InitGlobalDispatcher(2)
	defer dispatch.ShutdownGlobalDispatcher()

	group := dispatch.CreateTaskGroup()

	group.PostTask(func(ctx context.Context) {
		time.Sleep(200 * time.Millisecond)
	})

	// Too short: the task is still running
	if err := group.JoinWithTimeout(50 * time.Millisecond); err != nil {
		fmt.Println("first wait timed out")
	}

	// Long enough: the group drains
	if err := group.JoinWithTimeout(2 * time.Second); err == nil {
		fmt.Println("second wait completed")
	}

	// Output:
	// first wait timed out
	// second wait completed
}
