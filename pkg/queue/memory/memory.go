// Package memory provides an in-memory FIFO queue backend for tests
// and single-process development. It honors the same discipline the
// production backend does: per-group serial delivery, a deduplication
// window, and visibility timeouts that resurface undeleted messages.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/pkg/queue"
)

const (
	// DefaultVisibilityTimeout is how long a delivered message stays
	// invisible before it reappears for redelivery.
	DefaultVisibilityTimeout = 30 * time.Second

	// DefaultDedupWindow matches the five minute SQS FIFO window.
	DefaultDedupWindow = 5 * time.Minute
)

type message struct {
	id      string
	body    []byte
	groupID string
}

// inflight tracks one delivered, not yet settled message.
type inflight struct {
	msg       message
	expiresAt time.Time
}

// MemoryQueue implements queue.Queue with mutex-guarded per-group
// FIFO slices.
type MemoryQueue struct {
	mu sync.Mutex

	// groups holds pending messages per group, in send order.
	groups map[string][]message

	// groupOrder remembers first-seen order of groups so delivery
	// round-robins deterministically.
	groupOrder []string

	// inflight maps receipt handle to the delivery it settles.
	inflight map[string]inflight

	// dedup maps DedupID to when it was last accepted.
	dedup map[string]time.Time

	visibility  time.Duration
	dedupWindow time.Duration
	clock       clockwork.Clock

	// wake is signaled on Send so a long-polling Receive rechecks.
	wake chan struct{}

	closed bool
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return NewMemoryQueueWithClock(clockwork.NewRealClock())
}

// NewMemoryQueueWithClock creates a queue whose visibility and dedup
// decisions follow the given clock. Tests pass a fake clock to step
// through timeouts.
func NewMemoryQueueWithClock(clock clockwork.Clock) *MemoryQueue {
	return &MemoryQueue{
		groups:      make(map[string][]message),
		inflight:    make(map[string]inflight),
		dedup:       make(map[string]time.Time),
		visibility:  DefaultVisibilityTimeout,
		dedupWindow: DefaultDedupWindow,
		clock:       clock,
		wake:        make(chan struct{}, 1),
	}
}

// WithVisibilityTimeout overrides how long deliveries stay invisible.
func (q *MemoryQueue) WithVisibilityTimeout(d time.Duration) *MemoryQueue {
	q.visibility = d
	return q
}

// WithDedupWindow overrides the deduplication window.
func (q *MemoryQueue) WithDedupWindow(d time.Duration) *MemoryQueue {
	q.dedupWindow = d
	return q
}

// Send enqueues one message, dropping it silently when its DedupID was
// accepted within the dedup window.
func (q *MemoryQueue) Send(ctx context.Context, msg queue.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	now := q.clock.Now()
	if msg.DedupID != "" {
		if acceptedAt, ok := q.dedup[msg.DedupID]; ok && now.Sub(acceptedAt) < q.dedupWindow {
			return nil
		}
		q.dedup[msg.DedupID] = now
	}

	if _, ok := q.groups[msg.GroupID]; !ok {
		q.groupOrder = append(q.groupOrder, msg.GroupID)
	}
	q.groups[msg.GroupID] = append(q.groups[msg.GroupID], message{
		id:      uuid.NewString(),
		body:    append([]byte(nil), msg.Body...),
		groupID: msg.GroupID,
	})

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// SendBatch enqueues messages in order, stopping at the first failure.
func (q *MemoryQueue) SendBatch(ctx context.Context, msgs []queue.Message) error {
	for i, msg := range msgs {
		if err := q.Send(ctx, msg); err != nil {
			return fmt.Errorf("failed to send message %d of %d: %w", i+1, len(msgs), err)
		}
	}
	return nil
}

// Receive returns up to max messages from groups with nothing in
// flight, or queue.ErrNoMessages once wait elapses empty. A zero wait
// checks once and returns immediately.
func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]queue.ReceivedMessage, error) {
	if max <= 0 {
		max = 1
	}

	deadline := q.clock.Now().Add(wait)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgs := q.tryReceive(max)
		if len(msgs) > 0 {
			return msgs, nil
		}

		remaining := deadline.Sub(q.clock.Now())
		if remaining <= 0 {
			return nil, queue.ErrNoMessages
		}

		pollStep := remaining
		if pollStep > 100*time.Millisecond {
			pollStep = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		case <-q.clock.After(pollStep):
		}
	}
}

// tryReceive performs one delivery pass under the lock.
func (q *MemoryQueue) tryReceive(max int) []queue.ReceivedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	q.reapLocked(now)

	blocked := make(map[string]bool, len(q.inflight))
	for _, f := range q.inflight {
		blocked[f.msg.groupID] = true
	}

	var out []queue.ReceivedMessage
	for _, groupID := range q.groupOrder {
		if len(out) >= max {
			break
		}
		if blocked[groupID] {
			continue
		}
		pending := q.groups[groupID]
		if len(pending) == 0 {
			continue
		}

		msg := pending[0]
		q.groups[groupID] = pending[1:]
		blocked[groupID] = true

		handle := uuid.NewString()
		q.inflight[handle] = inflight{msg: msg, expiresAt: now.Add(q.visibility)}
		out = append(out, queue.ReceivedMessage{
			ID:            msg.id,
			Body:          append([]byte(nil), msg.body...),
			GroupID:       msg.groupID,
			ReceiptHandle: handle,
		})
	}
	return out
}

// reapLocked returns timed-out deliveries to the front of their group
// and expires stale dedup entries.
func (q *MemoryQueue) reapLocked(now time.Time) {
	for handle, f := range q.inflight {
		if now.Before(f.expiresAt) {
			continue
		}
		delete(q.inflight, handle)
		q.groups[f.msg.groupID] = append([]message{f.msg}, q.groups[f.msg.groupID]...)
	}
	for dedupID, acceptedAt := range q.dedup {
		if now.Sub(acceptedAt) >= q.dedupWindow {
			delete(q.dedup, dedupID)
		}
	}
}

// Delete settles a delivery. An unknown handle means the visibility
// timeout already returned the message, which is an error the caller
// should log.
func (q *MemoryQueue) Delete(ctx context.Context, receiptHandle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.reapLocked(q.clock.Now())
	if _, ok := q.inflight[receiptHandle]; !ok {
		return fmt.Errorf("unknown or expired receipt handle")
	}
	delete(q.inflight, receiptHandle)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close marks the queue closed. Pending messages are discarded.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Len reports pending (visible plus in-flight) messages. Test helper.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.inflight)
	for _, pending := range q.groups {
		n += len(pending)
	}
	return n
}
