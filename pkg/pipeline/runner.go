package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/queue"
)

// Handler processes one queue message. A nil return settles (deletes)
// the message; an error leaves it in flight so the queue redelivers it
// after the visibility timeout. Handlers translate domain failures into
// state transitions and return errors only when redelivery is the right
// recovery.
type Handler interface {
	Handle(ctx context.Context, msg queue.ReceivedMessage) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg queue.ReceivedMessage) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg queue.ReceivedMessage) error {
	return f(ctx, msg)
}

// RunnerOptions tunes one consumer pool.
type RunnerOptions struct {
	// Concurrency is the number of consumers polling the queue.
	// Default: 1
	Concurrency int

	// PollWait is the long-poll window per receive. Default: 20s
	PollWait time.Duration

	// HandleTimeout bounds one message's processing. A handler that
	// overruns it simply fails; the message redelivers. Default: 2m
	HandleTimeout time.Duration

	// Clock drives timeouts and backoff. Default: the real clock.
	Clock clockwork.Clock
}

func (o RunnerOptions) withDefaults() RunnerOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.PollWait <= 0 {
		o.PollWait = 20 * time.Second
	}
	if o.HandleTimeout <= 0 {
		o.HandleTimeout = 2 * time.Minute
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// RunnerStats counts a pool's lifetime activity.
type RunnerStats struct {
	Received int
	Settled  int
	Failed   int
	Panicked int
}

// Runner drives a pool of consumers over one queue, handing every
// received message to the stage handler. Consumers poll one message at
// a time; parallelism comes from the pool, ordering from the queue's
// FIFO groups.
type Runner struct {
	name    string
	queue   queue.Queue
	handler Handler
	opts    RunnerOptions

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}
	cancel    context.CancelFunc

	mu      sync.Mutex
	started bool
	stats   RunnerStats
}

// NewRunner creates a consumer pool for one queue. The name labels log
// lines, conventionally "search" or "data".
func NewRunner(name string, q queue.Queue, handler Handler, opts RunnerOptions) *Runner {
	return &Runner{
		name:      name,
		queue:     q,
		handler:   handler,
		opts:      opts.withDefaults(),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the consumers. It returns immediately; the pool runs
// until Stop or until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	logger.Info("Starting queue consumers",
		"queue", r.name,
		"concurrency", r.opts.Concurrency)

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for i := 0; i < r.opts.Concurrency; i++ {
		r.wg.Add(1)
		go r.consume(runCtx, i)
	}

	// Monitor goroutine to close stoppedCh when all consumers exit.
	go func() {
		r.wg.Wait()
		close(r.stoppedCh)
	}()
}

// Stop interrupts polling and waits for in-flight messages to finish,
// up to the timeout. Work in flight runs on its own context and is
// never cancelled; a consumer that overruns the timeout finishes in the
// background and its message settles normally.
func (r *Runner) Stop(timeout time.Duration) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.mu.Unlock()

	logger.Info("Stopping queue consumers", "queue", r.name)

	close(r.stopCh)
	r.cancel()

	select {
	case <-r.stoppedCh:
		logger.Info("Queue consumers stopped", "queue", r.name)
	case <-time.After(timeout):
		logger.Warn("Queue consumer stop timed out", "queue", r.name)
	}
}

// Stats returns a copy of the pool's counters.
func (r *Runner) Stats() RunnerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// consume is one polling loop.
func (r *Runner) consume(ctx context.Context, id int) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := r.queue.Receive(ctx, 1, r.opts.PollWait)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrNoMessages):
			continue
		case ctx.Err() != nil:
			return
		default:
			logger.Error("Queue receive failed",
				"queue", r.name,
				"consumer", id,
				"error", err)
			// Back off so a broken queue does not spin the loop.
			select {
			case <-r.stopCh:
				return
			case <-r.opts.Clock.After(receiveBackoff):
			}
			continue
		}

		for _, msg := range msgs {
			r.process(msg)
		}
	}
}

// receiveBackoff spaces retries after a failed receive.
const receiveBackoff = time.Second

// process runs one message through the handler on a fresh context, so
// shutdown and poll cancellation never abort portal work midway.
func (r *Runner) process(msg queue.ReceivedMessage) {
	r.mu.Lock()
	r.stats.Received++
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.HandleTimeout)
	defer cancel()

	if err := r.handle(ctx, msg); err != nil {
		r.mu.Lock()
		r.stats.Failed++
		r.mu.Unlock()
		logger.Error("Message handling failed, leaving in flight",
			"queue", r.name,
			"message_id", msg.ID,
			"group_id", msg.GroupID,
			"error", err)
		return
	}

	if err := r.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		// The visibility timeout will hand the message to another
		// consumer, whose state checks short-circuit the repeat.
		logger.Warn("Failed to settle message",
			"queue", r.name,
			"message_id", msg.ID,
			"error", err)
		return
	}

	r.mu.Lock()
	r.stats.Settled++
	r.mu.Unlock()
}

// handle invokes the handler with panic containment: a panicking
// message is left in flight like any other failure instead of taking
// the consumer down.
func (r *Runner) handle(ctx context.Context, msg queue.ReceivedMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.mu.Lock()
			r.stats.Panicked++
			r.mu.Unlock()
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return r.handler.Handle(ctx, msg)
}
