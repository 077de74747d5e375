package tasks

import (
	"context"
	"sync"
)

// Handle is the completion token for a submitted task. Scenarios may poll
// it without blocking (Ready) or block until completion (Wait).
type Handle struct {
	taskID string
	queue  string

	done chan struct{}

	mu     sync.Mutex
	once   sync.Once
	result any
	err    error
}

func newHandle(taskID, queue string) *Handle {
	return &Handle{taskID: taskID, queue: queue, done: make(chan struct{})}
}

// TaskID returns the task identifier.
func (h *Handle) TaskID() string { return h.taskID }

// Queue returns the queue the task was submitted to.
func (h *Handle) Queue() string { return h.queue }

// Ready reports whether the task has completed (successfully or not).
func (h *Handle) Ready() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task completes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a completed task. Calling Result before the
// task completes returns (nil, nil); use Ready or Wait first.
func (h *Handle) Result() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// complete records the outcome and releases waiters. Subsequent calls are
// no-ops, so a shutdown drain and a racing worker cannot double-resolve.
func (h *Handle) complete(result any, err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.result = result
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}
