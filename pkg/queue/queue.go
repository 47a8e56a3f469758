// Package queue defines the FIFO work queue the case pipeline runs on,
// plus the behavioral contract every backend implements.
//
// Two named queues exist in a deployment: "search" (stage one, case
// number to portal case id) and "data" (stage two, case id to case
// summary). Both carry JSON bodies owned by pkg/pipeline; backends only
// move opaque bytes.
//
// Backend contract:
//
//   - Messages with the same GroupID are delivered one at a time, in
//     send order. A group with an in-flight message yields nothing
//     until that message is deleted or its visibility timeout lapses.
//   - A message whose DedupID matches one sent within the backend's
//     deduplication window is accepted and silently dropped.
//   - Receive long-polls up to the given wait and returns ErrNoMessages
//     when nothing arrived. Delivered messages stay invisible until
//     deleted; an undeleted message reappears after the visibility
//     timeout, so consumers must be idempotent.
//   - Delete is presented the receipt handle from the delivery being
//     settled. Consumers call it only after the state write reflecting
//     the message has been committed.
//
// Two backends exist: memory (tests and dev) and sqs (production,
// FIFO queues).
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrNoMessages is returned by Receive when the wait elapsed with no
// message available. Consumers treat it as "poll again".
var ErrNoMessages = errors.New("queue: no messages")

// MaxBatchSize is the largest number of messages one SendBatch request
// may carry. SendBatch implementations chunk larger inputs.
const MaxBatchSize = 10

// Message is an outbound message.
type Message struct {
	// Body is the JSON payload. Opaque to the backend.
	Body []byte

	// GroupID is the FIFO ordering bucket. Messages sharing a GroupID
	// are processed serially, in send order.
	GroupID string

	// DedupID suppresses identical enqueues within the deduplication
	// window. Required by FIFO backends.
	DedupID string
}

// ReceivedMessage is a delivered message plus the receipt handle the
// consumer must present to settle it.
type ReceivedMessage struct {
	// ID identifies the message for logging.
	ID string

	// Body is the JSON payload as sent.
	Body []byte

	// GroupID is the ordering bucket the message was sent with.
	GroupID string

	// ReceiptHandle settles this particular delivery. It is only valid
	// until the visibility timeout lapses.
	ReceiptHandle string
}

// Queue is the backend interface. Implementations must be safe for
// concurrent use.
type Queue interface {
	// Send enqueues one message.
	Send(ctx context.Context, msg Message) error

	// SendBatch enqueues messages in chunks of at most MaxBatchSize.
	// A partial failure inside any chunk is an error; messages after
	// the failing chunk are not sent.
	SendBatch(ctx context.Context, msgs []Message) error

	// Receive long-polls for up to wait and returns at most max
	// messages, or ErrNoMessages when the wait elapsed empty.
	Receive(ctx context.Context, max int, wait time.Duration) ([]ReceivedMessage, error)

	// Delete settles a delivery. Deleting an expired or already
	// settled receipt handle is an error.
	Delete(ctx context.Context, receiptHandle string) error

	// Close releases backend resources.
	Close() error
}

// Metrics receives per-operation observations from backends. A nil
// Metrics disables instrumentation with zero overhead.
type Metrics interface {
	ObserveSend(queue string, messages int, duration time.Duration, err error)
	ObserveReceive(queue string, messages int, duration time.Duration, err error)
	ObserveDelete(queue string, duration time.Duration, err error)
}
