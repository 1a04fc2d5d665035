// Package brokertest is a deterministic in-process fake of the broker
// package's interfaces, used by the filter package's scenario tests (spec
// §8) so they don't require a live Kafka cluster — grounded on the
// teacher's own brokertest helper used throughout its shuffle/consumer
// tests.
package brokertest

import (
	"context"
	"sync"

	"github.com/reviewfilter/core/go/broker"
	"github.com/reviewfilter/core/go/packet"
)

// Queue is a single FIFO queue of raw packets, supporting requeue-to-tail.
// It models one broadcast book queue or one shard's review queue.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []packet.Packet
	closed bool
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	var q = &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends p to the tail of the queue and wakes a blocked receiver.
func (q *Queue) Push(p packet.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
	q.cond.Signal()
}

// Close unblocks any waiting receive with ctx cancellation semantics.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *Queue) pop(ctx context.Context) (packet.Packet, error) {
	// sync.Cond.Wait only wakes on Signal/Broadcast, never on context
	// cancellation; register a one-shot waker so a cancelled ctx unblocks a
	// pop that's parked on an empty queue instead of hanging forever.
	var stop = context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, context.Canceled
	}

	var p = q.items[0]
	q.items = q.items[1:]
	return p, nil
}

// Snapshot returns a copy of the queue's current pending items, for tests
// that assert nothing (or something specific) was forwarded.
func (q *Queue) Snapshot() []packet.Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]packet.Packet(nil), q.items...)
}

// Books adapts a Queue to broker.BooksSource. Next is the ring inbox of the
// following shard, so Return models point-to-point ring forwarding rather
// than a broadcast: the token visits each shard exactly once per lap.
type Books struct {
	Queue *Queue
	Next  *Queue
}

func (b Books) Receive(ctx context.Context) (packet.Packet, error) {
	return b.Queue.pop(ctx)
}

// Return hands the stamped EOF token to the next shard's queue.
func (b Books) Return(_ context.Context, eof packet.EOF) error {
	b.Next.Push(eof)
	return nil
}

// Reviews adapts a Queue to broker.ReviewsSource. Requeue pushes the packet
// back to the tail of the same queue, matching spec §5's "returned to the
// tail of their queue" contract exactly (no approximation needed, unlike
// the real Kafka republish-then-commit translation).
type Reviews struct{ Queue *Queue }

func (r Reviews) Receive(ctx context.Context) (broker.Message, error) {
	p, err := r.Queue.pop(ctx)
	if err != nil {
		return broker.Message{}, err
	}
	return broker.NewMessage(p,
		func(context.Context) error { return nil },
		func(_ context.Context, toSend packet.Packet) error {
			r.Queue.Push(toSend)
			return nil
		},
	), nil
}

// Publisher records every packet published to it, in order, under a lock,
// so tests can assert on emission without a broker round-trip.
type Publisher struct {
	mu        sync.Mutex
	Published []packet.Packet
}

func (p *Publisher) Publish(_ context.Context, pkt packet.Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published = append(p.Published, pkt)
	return nil
}

// Snapshot returns a copy of everything published so far.
func (p *Publisher) Snapshot() []packet.Packet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]packet.Packet(nil), p.Published...)
}

var (
	_ broker.BooksSource   = Books{}
	_ broker.ReviewsSource = Reviews{}
	_ broker.Publisher     = (*Publisher)(nil)
)
