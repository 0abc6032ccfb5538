package core

import (
	"context"
	"testing"
)

// TestStaticProvider_AlwaysSameQueue verifies the trivial provider
// Given: A StaticProvider wrapping one queue
// When: Queue() is called repeatedly
// Then: Every call yields the same queue instance
func TestStaticProvider_AlwaysSameQueue(t *testing.T) {
	// Arrange
	queue := NewSyncQueue()
	provider := StaticProvider(queue)

	// Act & Assert
	for i := 0; i < 3; i++ {
		if got := provider.Queue(); got != queue {
			t.Fatalf("Queue() call %d = %v, want the wrapped queue", i, got)
		}
	}
}

// TestStaticProvider_NilQueuePanics verifies constructor validation
// Given: StaticProvider called with nil
// When: The provider is constructed
// Then: Panic with appropriate error message
func TestStaticProvider_NilQueuePanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic for nil queue")
		}
		if msg, ok := r.(string); !ok || msg != "StaticProvider: queue must not be nil" {
			t.Errorf("panic = %v, want nil queue message", r)
		}
	}()

	StaticProvider(nil)
}

// TestProviderFunc_ResolvesAtCallTime verifies late binding
// Given: A ProviderFunc whose target changes between calls
// When: Work is posted through a group holding that provider
// Then: Each post lands on whatever queue the function yields at that moment
func TestProviderFunc_ResolvesAtCallTime(t *testing.T) {
	// Arrange
	first := NewSyncQueue()
	second := NewSyncQueue()

	current := Queue(first)
	provider := ProviderFunc(func() Queue {
		return current
	})
	group := NewTaskGroup(provider)

	var seen []Queue

	// Act
	group.PostTask(func(ctx context.Context) {
		seen = append(seen, CurrentQueue(ctx))
	})

	current = second
	group.PostTask(func(ctx context.Context) {
		seen = append(seen, CurrentQueue(ctx))
	})

	// Assert
	if len(seen) != 2 {
		t.Fatalf("executed %d tasks, want 2", len(seen))
	}
	if seen[0] != Queue(first) {
		t.Errorf("first post ran on %v, want the first queue", seen[0])
	}
	if seen[1] != Queue(second) {
		t.Errorf("second post ran on %v, want the second queue", seen[1])
	}
}
