package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/go-dispatch/dispatch/core"
)

type queueStub struct {
	stats core.QueueStats
}

func (s queueStub) Stats() core.QueueStats { return s.stats }

type poolStub struct {
	stats core.PoolStats
}

func (s poolStub) Stats() core.PoolStats { return s.stats }

type groupStub struct {
	stats core.GroupStats
}

func (s groupStub) Stats() core.GroupStats { return s.stats }

func TestSnapshotPoller_CollectsQueueAndPoolStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddQueue("queue-a", queueStub{stats: core.QueueStats{
		Type:     "serial",
		Pending:  3,
		Running:  1,
		Rejected: 2,
		Closed:   true,
	}})
	poller.AddPool("pool-a", poolStub{stats: core.PoolStats{
		Queued:  4,
		Active:  2,
		Delayed: 1,
		Workers: 8,
		Running: true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.queuePending.WithLabelValues("queue-a", "serial"))
		active := testutil.ToFloat64(poller.poolActive.WithLabelValues("pool-a"))
		return pending == 3 && active == 2
	})

	if got := testutil.ToFloat64(poller.queueClosed.WithLabelValues("queue-a", "serial")); got != 1 {
		t.Fatalf("queue closed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool running gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_CollectsGroupStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddGroup("batch-a", groupStub{stats: core.GroupStats{
		Name:      "batch-a",
		Pending:   5,
		Watchers:  2,
		Completed: 17,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.groupPending.WithLabelValues("batch-a"))
		return pending == 5
	})

	if got := testutil.ToFloat64(poller.groupWatchers.WithLabelValues("batch-a")); got != 2 {
		t.Fatalf("group watchers gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.groupCompleted.WithLabelValues("batch-a")); got != 17 {
		t.Fatalf("group completed gauge = %v, want 17", got)
	}
}

func TestSnapshotPoller_LiveTaskGroup(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	// A real group fed by a sync queue: counters settle immediately
	group := core.NewTaskGroupWithConfig(&core.TaskGroupConfig{
		DefaultProvider: core.StaticProvider(core.NewSyncQueue()),
		Name:            "live-batch",
		Logger:          core.NewNoOpLogger(),
	})
	for i := 0; i < 4; i++ {
		group.PostTask(func(ctx context.Context) {})
	}

	poller.AddGroup(group.Name(), group)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		completed := testutil.ToFloat64(poller.groupCompleted.WithLabelValues("live-batch"))
		pending := testutil.ToFloat64(poller.groupPending.WithLabelValues("live-batch"))
		return completed == 4 && pending == 0
	})
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
