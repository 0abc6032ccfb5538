package core

import (
	"container/heap"
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

type TaskItem struct {
	Task   Task
	Traits Traits
}

// ReadyQueue defines the interface for the scheduler's ready-task storage.
type ReadyQueue interface {
	Push(t Task, traits Traits)
	Pop() (TaskItem, bool)
	PopUpTo(max int) []TaskItem
	PeekTraits() (Traits, bool)
	Len() int
	IsEmpty() bool
	MaybeCompact()
	Clear() // Clear all tasks from the queue
}

// =============================================================================
// FIFOReadyQueue: The original efficient FIFO queue
// =============================================================================

type FIFOReadyQueue struct {
	mu    sync.Mutex
	tasks []TaskItem
}

func NewFIFOReadyQueue() *FIFOReadyQueue {
	return &FIFOReadyQueue{
		tasks: make([]TaskItem, 0, defaultQueueCap),
	}
}

func (q *FIFOReadyQueue) Push(t Task, traits Traits) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, TaskItem{Task: t, Traits: traits})
}

func (q *FIFOReadyQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return TaskItem{}, false
	}

	item := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = TaskItem{}
	// Optimization: slice slicing
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return item, true
}

func (q *FIFOReadyQueue) PopUpTo(max int) []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tasks)
	if n == 0 {
		return nil
	}

	if n <= max {
		batch := q.tasks
		q.tasks = q.tasks[:0]
		return batch
	}

	batch := make([]TaskItem, max)
	copy(batch, q.tasks[:max])

	// Zero out the elements in the underlying array to prevent memory leak
	for i := range max {
		q.tasks[i] = TaskItem{}
	}

	q.tasks = q.tasks[max:]
	q.maybeCompactLocked()

	return batch
}

func (q *FIFOReadyQueue) MaybeCompact() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maybeCompactLocked()
}

func (q *FIFOReadyQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]TaskItem, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]TaskItem, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

func (q *FIFOReadyQueue) PeekTraits() (Traits, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return Traits{}, false
	}
	return q.tasks[0].Traits, true
}

func (q *FIFOReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *FIFOReadyQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all tasks from the queue and releases references
func (q *FIFOReadyQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Create a new slice to release all task references
	q.tasks = make([]TaskItem, 0, defaultQueueCap)
}

// =============================================================================
// QoSReadyQueue: Min-Heap based queue with Stability (FIFO within a class)
// =============================================================================

type qosItem struct {
	TaskItem
	sequence uint64 // For stability
	index    int    // For heap
}

// qosHeap implements heap.Interface
type qosHeap []*qosItem

func (h qosHeap) Len() int { return len(h) }

// Less implements ordering: higher QoS first, then small sequence first (FIFO)
func (h qosHeap) Less(i, j int) bool {
	// Highest class first (e.g., UserInteractive > Background)
	if h[i].Traits.QoS > h[j].Traits.QoS {
		return true
	}
	if h[i].Traits.QoS < h[j].Traits.QoS {
		return false
	}
	// Same class: earlier sequence first (FIFO)
	return h[i].sequence < h[j].sequence
}

func (h qosHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *qosHeap) Push(x interface{}) {
	n := len(*h)
	item := x.(*qosItem)
	item.index = n
	*h = append(*h, item)
}

func (h *qosHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

type QoSReadyQueue struct {
	mu           sync.Mutex
	pq           qosHeap
	nextSequence uint64
}

func NewQoSReadyQueue() *QoSReadyQueue {
	return &QoSReadyQueue{
		pq: make(qosHeap, 0, defaultQueueCap),
	}
}

func (q *QoSReadyQueue) Push(t Task, traits Traits) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &qosItem{
		TaskItem: TaskItem{Task: t, Traits: traits},
		sequence: q.nextSequence,
	}
	q.nextSequence++

	heap.Push(&q.pq, item)
}

func (q *QoSReadyQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pq) == 0 {
		return TaskItem{}, false
	}

	item := heap.Pop(&q.pq).(*qosItem)
	return item.TaskItem, true
}

func (q *QoSReadyQueue) PopUpTo(max int) []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := len(q.pq)
	if count == 0 {
		return nil
	}

	if count > max {
		count = max
	}

	batch := make([]TaskItem, count)
	for i := 0; i < count; i++ {
		item := heap.Pop(&q.pq).(*qosItem)
		batch[i] = item.TaskItem
	}

	return batch
}

func (q *QoSReadyQueue) PeekTraits() (Traits, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pq) == 0 {
		return Traits{}, false
	}
	// 0 is the highest class item because Less puts the highest QoS at the top
	return q.pq[0].Traits, true
}

func (q *QoSReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pq)
}

func (q *QoSReadyQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *QoSReadyQueue) MaybeCompact() {
	// Resetting capacity for a heap is tricky without rebuilding; the
	// container/heap usage pattern keeps this uncritical, so skip it here.
}

// Clear removes all tasks from the queue and releases references
func (q *QoSReadyQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Create a new heap to release all task references
	q.pq = make(qosHeap, 0, defaultQueueCap)
	heap.Init(&q.pq)
	q.nextSequence = 0
}
