package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotRunning is returned when a task is submitted before Start or after
// Stop.
var ErrNotRunning = errors.New("jobs: dispatcher not running")

// Task is a unit of background work. Kind routes logging; Payload is owned
// by the handler.
type Task struct {
	ID      string
	Kind    string
	Payload interface{}

	attempt  int
	enqueued time.Time
}

// HandlerFunc executes a task. A returned error triggers a retry until the
// attempt budget is spent.
type HandlerFunc func(ctx context.Context, task Task) error

// Options tunes the worker pool.
type Options struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.BufferSize <= 0 {
		o.BufferSize = o.Workers * 8
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// Dispatcher fans tasks out to a fixed worker pool with linear-backoff
// retries. It is in-memory and process-local: tasks die with the process,
// which is acceptable because every task here is a best-effort delivery
// whose source of truth is already persisted.
type Dispatcher struct {
	name    string
	handler HandlerFunc
	opts    Options
	logger  *zap.Logger

	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewDispatcher builds a stopped dispatcher.
func NewDispatcher(name string, handler HandlerFunc, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Dispatcher{
		name:    name,
		handler: handler,
		opts:    opts,
		logger:  logger.With(zap.String("dispatcher", name)),
		tasks:   make(chan Task, opts.BufferSize),
	}
}

// Start launches the worker pool. Calling Start on a running dispatcher is a
// no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	d.running = true
	d.logger.Info("dispatcher started", zap.Int("workers", d.opts.Workers))
}

// Stop cancels the workers and blocks until they drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Submit enqueues a task, blocking while the buffer is full.
func (d *Dispatcher) Submit(task Task) error {
	d.mu.Lock()
	running := d.running
	ctx := d.ctx
	d.mu.Unlock()

	if !running {
		return ErrNotRunning
	}
	if task.enqueued.IsZero() {
		task.enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return ErrNotRunning
	case d.tasks <- task:
		return nil
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case task := <-d.tasks:
			d.run(task)
		}
	}
}

func (d *Dispatcher) run(task Task) {
	err := d.handler(d.ctx, task)
	if err == nil {
		return
	}

	if task.attempt >= d.opts.MaxRetries {
		d.logger.Error("task dropped after retries",
			zap.String("task_id", task.ID),
			zap.String("kind", task.Kind),
			zap.Int("attempts", task.attempt+1),
			zap.Error(err))
		return
	}

	task.attempt++
	d.logger.Warn("task failed, scheduling retry",
		zap.String("task_id", task.ID),
		zap.String("kind", task.Kind),
		zap.Int("attempt", task.attempt),
		zap.Error(err))

	// Linear backoff keeps a flapping downstream from being hammered
	// while staying simple enough to reason about under shutdown.
	delay := time.Duration(task.attempt) * d.opts.RetryDelay
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-d.ctx.Done():
		case <-timer.C:
			select {
			case <-d.ctx.Done():
			case d.tasks <- task:
			}
		}
	}()
}
