package core

// QueueProvider supplies the queue a piece of work should land on. It is the
// strategy seam between code that decides WHERE work runs and code that
// submits it: callers hold a provider, not a queue, and resolve at post time.
//
// Providers are stateless and safe to share. Queue() always returns a usable
// queue and never fails; repeated calls for the same variant return a queue
// with the same scheduling behavior.
type QueueProvider interface {
	Queue() Queue
}

// ProviderFunc adapts a plain function to the QueueProvider interface.
type ProviderFunc func() Queue

func (f ProviderFunc) Queue() Queue {
	return f()
}

// StaticProvider returns a provider that always yields q.
// Panics if q is nil: a provider must never hand out a nil queue.
func StaticProvider(q Queue) QueueProvider {
	if q == nil {
		panic("StaticProvider: queue must not be nil")
	}
	return staticProvider{q: q}
}

type staticProvider struct {
	q Queue
}

func (p staticProvider) Queue() Queue {
	return p.q
}
