package core

import (
	"context"
	"sync/atomic"
)

func (q *SerialQueue) ExportedScheduleRunLoop(traits Traits) {
	q.scheduleRunLoop(traits)
}

func (q *SerialQueue) GetActiveRunners() int32 {
	return atomic.LoadInt32(&q.activeRunners)
}

func (q *SerialQueue) SetActiveRunners(count int32) {
	atomic.StoreInt32(&q.activeRunners, count)
}

func (q *SerialQueue) ExportedRunLoop(ctx context.Context) {
	q.runLoop(ctx)
}
