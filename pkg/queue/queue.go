// Package queue implements the bounded FIFO job queue a boss uses to hand
// work to its pool of worker proxies.
package queue

import (
	"context"

	"github.com/devolvehq/devolve/pkg/core/concurrency"
)

// Job is the application-supplied unit of work the core moves between the
// queue and a worker proxy. The core never inspects a Job's payload.
type Job interface {
	// GetWork returns the bytes to send to a worker. Called exactly once
	// per successful dispatch, immediately before the send.
	GetWork() []byte

	// PutResult delivers the worker's raw response, or nil if the proxy
	// could not deliver the job because of a transport or protocol
	// failure. Called exactly once per dispatch attempt.
	PutResult(result []byte)
}

// quitSentinel is the single reserved token signaling pool termination.
// Item values are always either a Job or this sentinel.
type quitSentinel struct{}

// Item is whatever Queue carries: a Job, or the Quit sentinel.
type Item interface{}

// Quit is the process-wide QUIT sentinel. At most one is ever published by
// the pool façade; every proxy that pops it re-publishes it before
// exiting, so it is never consumed for good until the listener joins.
var Quit Item = quitSentinel{}

// IsQuit reports whether item is the QUIT sentinel.
func IsQuit(item Item) bool {
	_, ok := item.(quitSentinel)
	return ok
}

// Queue is a bounded, thread-safe FIFO of pending Job handles (or the QUIT
// sentinel). Put blocks while the queue is full; Get blocks while it is
// empty. Ordering is FIFO among successful Put calls. It is built directly
// on concurrency.Mailbox, which already hides the channel/select
// primitives this needs; Queue only narrows Mailbox's untyped interface{}
// payload to the Job|Quit Item contract.
type Queue struct {
	mb concurrency.Mailbox
}

// New creates a Queue with the given fixed capacity.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{mb: concurrency.NewBoundedMailbox(capacity)}
}

// Put enqueues item, blocking while the queue is full or until ctx is
// cancelled.
func (q *Queue) Put(ctx context.Context, item Item) error {
	return q.mb.SendBlocking(ctx, item)
}

// PutBlocking enqueues item, blocking unconditionally while the queue is
// full. This is what the public add()/close() operations use: neither is
// meant to be cancellable mid-flight.
func (q *Queue) PutBlocking(item Item) {
	_ = q.mb.SendBlocking(context.Background(), item)
}

// Get dequeues the next item, blocking while the queue is empty or until
// ctx is cancelled.
func (q *Queue) Get(ctx context.Context) (Item, error) {
	return q.mb.Receive(ctx)
}

// Len returns the number of items currently queued. Intended for metrics
// and tests; under concurrent use it is a snapshot, not a guarantee.
func (q *Queue) Len() int {
	return q.mb.Size()
}

// Cap returns the queue's configured capacity.
func (q *Queue) Cap() int {
	return q.mb.Capacity()
}
