package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/go-dispatch/dispatch/core"
)

// QueueSnapshotProvider provides current queue stats snapshots.
type QueueSnapshotProvider interface {
	Stats() core.QueueStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// GroupSnapshotProvider provides current task group stats snapshots.
type GroupSnapshotProvider interface {
	Stats() core.GroupStats
}

// SnapshotPoller periodically exports queue/pool/group Stats() snapshots into
// Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	queuesMu sync.RWMutex
	queues   map[string]QueueSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	groupsMu sync.RWMutex
	groups   map[string]GroupSnapshotProvider

	queuePending  *prom.GaugeVec
	queueRunning  *prom.GaugeVec
	queueRejected *prom.GaugeVec
	queueClosed   *prom.GaugeVec

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolDelayed *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

	groupPending   *prom.GaugeVec
	groupWatchers  *prom.GaugeVec
	groupCompleted *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	queuePending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "queue_pending",
		Help:      "Number of pending tasks per queue.",
	}, []string{"queue", "type"})
	queueRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "queue_running",
		Help:      "Number of running tasks per queue.",
	}, []string{"queue", "type"})
	queueRejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "queue_rejected_total",
		Help:      "Queue rejected task count snapshot.",
	}, []string{"queue", "type"})
	queueClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "queue_closed",
		Help:      "Queue closed state (1=closed, 0=open).",
	}, []string{"queue", "type"})

	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "pool_queued",
		Help:      "Queued tasks per pool.",
	}, []string{"pool"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "pool_active",
		Help:      "Active tasks per pool.",
	}, []string{"pool"})
	poolDelayed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "pool_delayed",
		Help:      "Delayed tasks per pool.",
	}, []string{"pool"})
	poolWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "pool_workers",
		Help:      "Worker count per pool.",
	}, []string{"pool"})
	poolRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "pool_running",
		Help:      "Pool running state (1=running, 0=stopped).",
	}, []string{"pool"})

	groupPending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "group_pending",
		Help:      "Pending task count per task group.",
	}, []string{"group"})
	groupWatchers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "group_watchers",
		Help:      "Registered completion callbacks per task group.",
	}, []string{"group"})
	groupCompleted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "dispatch",
		Name:      "group_completed_total",
		Help:      "Group completed task count snapshot.",
	}, []string{"group"})

	var err error
	if queuePending, err = registerCollector(reg, queuePending); err != nil {
		return nil, err
	}
	if queueRunning, err = registerCollector(reg, queueRunning); err != nil {
		return nil, err
	}
	if queueRejected, err = registerCollector(reg, queueRejected); err != nil {
		return nil, err
	}
	if queueClosed, err = registerCollector(reg, queueClosed); err != nil {
		return nil, err
	}
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolDelayed, err = registerCollector(reg, poolDelayed); err != nil {
		return nil, err
	}
	if poolWorkers, err = registerCollector(reg, poolWorkers); err != nil {
		return nil, err
	}
	if poolRunning, err = registerCollector(reg, poolRunning); err != nil {
		return nil, err
	}
	if groupPending, err = registerCollector(reg, groupPending); err != nil {
		return nil, err
	}
	if groupWatchers, err = registerCollector(reg, groupWatchers); err != nil {
		return nil, err
	}
	if groupCompleted, err = registerCollector(reg, groupCompleted); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:       interval,
		queues:         make(map[string]QueueSnapshotProvider),
		pools:          make(map[string]PoolSnapshotProvider),
		groups:         make(map[string]GroupSnapshotProvider),
		queuePending:   queuePending,
		queueRunning:   queueRunning,
		queueRejected:  queueRejected,
		queueClosed:    queueClosed,
		poolQueued:     poolQueued,
		poolActive:     poolActive,
		poolDelayed:    poolDelayed,
		poolWorkers:    poolWorkers,
		poolRunning:    poolRunning,
		groupPending:   groupPending,
		groupWatchers:  groupWatchers,
		groupCompleted: groupCompleted,
	}, nil
}

// AddQueue adds or replaces a queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	p.queues[name] = provider
	p.queuesMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddGroup adds or replaces a task group snapshot provider by name.
func (p *SnapshotPoller) AddGroup(name string, provider GroupSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "group")
	p.groupsMu.Lock()
	p.groups[name] = provider
	p.groupsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.queuesMu.RLock()
	for name, provider := range p.queues {
		stats := provider.Stats()
		typeLabel := normalizeLabel(stats.Type, "unknown")
		p.queuePending.WithLabelValues(name, typeLabel).Set(float64(stats.Pending))
		p.queueRunning.WithLabelValues(name, typeLabel).Set(float64(stats.Running))
		p.queueRejected.WithLabelValues(name, typeLabel).Set(float64(stats.Rejected))
		if stats.Closed {
			p.queueClosed.WithLabelValues(name, typeLabel).Set(1)
		} else {
			p.queueClosed.WithLabelValues(name, typeLabel).Set(0)
		}
	}
	p.queuesMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolDelayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		if stats.Running {
			p.poolRunning.WithLabelValues(name).Set(1)
		} else {
			p.poolRunning.WithLabelValues(name).Set(0)
		}
	}
	p.poolsMu.RUnlock()

	p.groupsMu.RLock()
	for name, provider := range p.groups {
		stats := provider.Stats()
		p.groupPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.groupWatchers.WithLabelValues(name).Set(float64(stats.Watchers))
		p.groupCompleted.WithLabelValues(name).Set(float64(stats.Completed))
	}
	p.groupsMu.RUnlock()
}
