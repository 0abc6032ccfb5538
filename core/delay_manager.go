package core

import (
	"context"
	"sync"
	"time"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
)

// DelayedTask represents a task scheduled for the future
type DelayedTask struct {
	RunAt  time.Time
	Task   Task
	Traits Traits
	Target Queue
}

// DelayManager tracks not-yet-due tasks in a red-black tree keyed by their
// fire time (UnixNano). Tasks sharing an instant keep FIFO order inside the
// node's bucket. One goroutine sleeps until the earliest deadline and posts
// expired tasks back to their target queue.
type DelayManager struct {
	mu        sync.Mutex
	deadlines *rbt.Tree[int64, []*DelayedTask]
	count     int
	wakeup    chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewDelayManager() *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		deadlines: rbt.New[int64, []*DelayedTask](),
		wakeup:    make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	go dm.loop()
	return dm
}

func (dm *DelayManager) AddDelayedTask(task Task, delay time.Duration, traits Traits, target Queue) {
	if delay < 0 {
		delay = 0
	}

	item := &DelayedTask{
		RunAt:  time.Now().Add(delay),
		Task:   task,
		Traits: traits,
		Target: target,
	}
	key := item.RunAt.UnixNano()

	dm.mu.Lock()
	becameEarliest := true
	if left := dm.deadlines.Left(); left != nil && left.Key <= key {
		becameEarliest = false
	}
	bucket, _ := dm.deadlines.Get(key)
	dm.deadlines.Put(key, append(bucket, item))
	dm.count++
	dm.mu.Unlock()

	if becameEarliest {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		// Calculate how long to sleep until the next task is due
		wait, hasTask := dm.nextWait()
		if !hasTask {
			// No tasks, wait until something is added
			wait = 1000 * time.Hour
		} else if wait <= 0 {
			// Already due, process without arming the timer
			dm.processExpiredTasks()
			continue
		}

		timer.Reset(wait)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			// Timer fired, process all expired tasks in one go
			dm.processExpiredTasks()
		case <-dm.wakeup:
			// New earliest task added, need to recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// nextWait returns the time until the earliest task is due.
// The second return value is false when no tasks are tracked.
func (dm *DelayManager) nextWait() (time.Duration, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	left := dm.deadlines.Left()
	if left == nil {
		return 0, false
	}
	return time.Until(time.Unix(0, left.Key)), true
}

// processExpiredTasks processes all tasks that have expired
// This is more efficient than processing one at a time with continue
func (dm *DelayManager) processExpiredTasks() {
	dm.mu.Lock()

	now := time.Now().UnixNano()
	// Collect all expired tasks to avoid holding lock while posting
	var expired []*DelayedTask

	for {
		left := dm.deadlines.Left()
		if left == nil || left.Key > now {
			break // No more expired tasks
		}
		expired = append(expired, left.Value...)
		dm.count -= len(left.Value)
		dm.deadlines.Remove(left.Key)
	}

	dm.mu.Unlock()

	// Post expired tasks outside the lock
	for _, item := range expired {
		item.Target.PostTaskWithTraits(item.Task, item.Traits)
	}
}

func (dm *DelayManager) Stop() {
	dm.cancel()

	// Clear the tree to release all Queue references
	dm.mu.Lock()
	dm.deadlines.Clear()
	dm.count = 0
	dm.mu.Unlock()
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.count
}
