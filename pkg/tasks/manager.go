// Package tasks implements the queued executor: a fixed set of named queues,
// each drained serially by its own worker goroutine, with support for
// awaited results, polled handles, fire-and-forget execution, and bounded
// cooperative shutdown.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	// ErrUnknownQueue is returned when a submission names a queue that was
	// not configured.
	ErrUnknownQueue = errors.New("unknown queue")

	// ErrShuttingDown is returned for submissions after shutdown started.
	ErrShuttingDown = errors.New("task manager is shutting down")

	// ErrAbandoned resolves handles of tasks that were still queued when the
	// shutdown timeout expired.
	ErrAbandoned = errors.New("task abandoned during shutdown")
)

// Work is the unit of execution submitted to a queue.
type Work func(ctx context.Context) (any, error)

// Submission describes one task.
type Submission struct {
	// TaskID identifies the task in logs. Generated when empty.
	TaskID string
	// Queue names the target queue.
	Queue string
	// Work is the function to run.
	Work Work
	// FireAndForget discards the result; errors are logged only.
	FireAndForget bool
}

// Config controls the queue set and shutdown behavior.
type Config struct {
	// Queues is the fixed set of queue names.
	Queues []string `yaml:"queues"`

	// SoftCap is the queue depth above which submissions log a warning.
	// Queues are logically unbounded; the cap only produces backpressure
	// signals, never rejections.
	SoftCap int `yaml:"soft_cap"`

	// ShutdownTimeout bounds how long Shutdown waits for queues to drain.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the built-in task manager defaults.
func DefaultConfig() *Config {
	return &Config{
		Queues:          []string{"default", "actions", "events"},
		SoftCap:         1000,
		ShutdownTimeout: 3 * time.Second,
	}
}

type task struct {
	id     string
	work   Work
	handle *Handle
	fnf    bool
}

// queue is one named FIFO mailbox with a single worker. The mailbox is a
// mutex-guarded slice so re-entrant submission from inside the worker can
// never deadlock; notifyCh only signals "possibly non-empty".
type queue struct {
	name     string
	mu       sync.Mutex
	pending  []*task
	notifyCh chan struct{}
}

func (q *queue) push(t *task) int {
	q.mu.Lock()
	q.pending = append(q.pending, t)
	depth := len(q.pending)
	q.mu.Unlock()
	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
	return depth
}

func (q *queue) pop() *task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t
}

func (q *queue) drainRemaining() []*task {
	q.mu.Lock()
	defer q.mu.Unlock()
	rest := q.pending
	q.pending = nil
	return rest
}

// Manager runs asynchronous work with per-queue FIFO ordering. Within one
// queue, submission order is execution order; across queues there is no
// ordering guarantee.
type Manager struct {
	cfg    *Config
	queues map[string]*queue

	stopCh   chan struct{} // drain phase: finish queued work, accept no new
	killCh   chan struct{} // abandon phase: exit after the in-progress task
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates the manager and starts one worker per configured queue.
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{
		cfg:    cfg,
		queues: make(map[string]*queue, len(cfg.Queues)),
		stopCh: make(chan struct{}),
		killCh: make(chan struct{}),
	}
	for _, name := range cfg.Queues {
		q := &queue{name: name, notifyCh: make(chan struct{}, 1)}
		m.queues[name] = q
		m.wg.Add(1)
		go m.runWorker(q)
	}
	return m
}

// Submit enqueues work on the named queue.
//
// Fire-and-forget submissions return a nil handle immediately; the worker
// runs the work and logs any error. Otherwise the returned handle resolves
// to the work's result — callers either Wait on it or poll Ready without
// blocking the step loop.
func (m *Manager) Submit(sub Submission) (*Handle, error) {
	select {
	case <-m.stopCh:
		return nil, ErrShuttingDown
	default:
	}
	q, ok := m.queues[sub.Queue]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, sub.Queue)
	}
	if sub.Work == nil {
		return nil, errors.New("submission has no work")
	}

	id := sub.TaskID
	if id == "" {
		id = uuid.NewString()
	}
	t := &task{id: id, work: sub.Work, fnf: sub.FireAndForget}
	if !sub.FireAndForget {
		t.handle = newHandle(id, sub.Queue)
	}

	depth := q.push(t)
	if m.cfg.SoftCap > 0 && depth > m.cfg.SoftCap {
		slog.Warn("Queue depth above soft cap",
			"queue", sub.Queue, "depth", depth, "soft_cap", m.cfg.SoftCap)
	}
	return t.handle, nil
}

// Shutdown stops accepting submissions and waits up to ShutdownTimeout for
// queues to drain, then abandons the remainder. In-progress tasks are never
// interrupted mid-flight; abandoned handles resolve with ErrAbandoned.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() { close(m.stopCh) })

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timeout := m.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		slog.Info("Task manager drained all queues")
		return
	case <-timer.C:
	case <-ctx.Done():
	}

	// Abandon the remainder. Workers blocked inside a task are not waited
	// for — tasks are non-cancellable mid-flight and will finish on their
	// own; they just have nowhere to report to anymore.
	close(m.killCh)

	abandoned := 0
	for _, q := range m.queues {
		for _, t := range q.drainRemaining() {
			if t.handle != nil {
				t.handle.complete(nil, ErrAbandoned)
			}
			abandoned++
		}
	}
	if abandoned > 0 {
		slog.Warn("Task manager abandoned queued tasks on shutdown", "count", abandoned)
	}
}

// runWorker drains one queue serially.
func (m *Manager) runWorker(q *queue) {
	defer m.wg.Done()
	log := slog.With("queue", q.name)
	log.Debug("Queue worker started")

	draining := false
	for {
		t := q.pop()
		if t == nil {
			if draining {
				log.Debug("Queue drained, worker exiting")
				return
			}
			select {
			case <-q.notifyCh:
			case <-m.stopCh:
				draining = true
			case <-m.killCh:
				return
			}
			continue
		}

		select {
		case <-m.killCh:
			if t.handle != nil {
				t.handle.complete(nil, ErrAbandoned)
			}
			return
		default:
		}

		m.execute(q, t)

		select {
		case <-m.stopCh:
			draining = true
		default:
		}
	}
}

// execute runs one task, recovering panics so a bad handler cannot kill the
// queue worker.
func (m *Manager) execute(q *queue, t *task) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task panicked: %v", r)
			slog.Error("Task panicked", "queue", q.name, "task_id", t.id, "panic", r)
			if t.handle != nil {
				t.handle.complete(nil, err)
			}
		}
	}()

	result, err := t.work(context.Background())
	if t.fnf {
		if err != nil {
			slog.Error("Fire-and-forget task failed",
				"queue", q.name, "task_id", t.id, "error", err)
		}
		return
	}
	t.handle.complete(result, err)
}
