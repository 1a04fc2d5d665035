// Package broker adapts the review-filter core to a concrete broker client.
// Spec §6/§7 assume a broker that provides at-least-once delivery with
// manual acknowledgement and requeue; this package maps that contract onto
// a Kafka consumer group with manual offset commit (ack) and
// republish-then-commit (requeue to tail), grounded on
// github.com/twmb/franz-go.
package broker

import (
	"context"

	"github.com/reviewfilter/core/go/packet"
)

// Message is one decoded packet delivered from an input stream, plus the
// broker operations available on it. Ack and Requeue are both terminal:
// exactly one of them must be called per Message.
type Message struct {
	Packet packet.Packet

	// ack commits the message's offset, making it permanently processed.
	ack func(context.Context) error
	// requeue republishes a packet (the original, or a mutated copy — e.g.
	// an EOF token with a freshly appended stamp) to the tail of this
	// message's own topic/partition, then commits the original offset —
	// the Kafka realization of "return to the tail of the queue" (spec §5
	// Backpressure).
	requeue func(context.Context, packet.Packet) error
}

// NewMessage constructs a Message from its Ack/Requeue implementations.
// Exported for broker implementations (kafka.go) and test fakes
// (brokertest) living outside this package; filter package code only ever
// receives Messages, never builds them.
func NewMessage(p packet.Packet, ack func(context.Context) error, requeue func(context.Context, packet.Packet) error) Message {
	return Message{Packet: p, ack: ack, requeue: requeue}
}

// Ack marks the message as durably processed.
func (m Message) Ack(ctx context.Context) error { return m.ack(ctx) }

// Requeue returns p — usually m.Packet itself, but for a barrier token that
// this shard has just stamped, the updated token — for later redelivery to
// the tail of its queue. Never drops a message silently.
func (m Message) Requeue(ctx context.Context, p packet.Packet) error { return m.requeue(ctx, p) }

// BooksSource consumes the broadcast book stream: every shard instance
// receives every message (spec §6, "broadcast fanout"). EOF tokens on this
// stream are auto-acked per spec §9 (they cannot meaningfully be requeued),
// so BooksSource exposes neither Ack nor Requeue: Receive acknowledges each
// message itself.
type BooksSource interface {
	// Receive blocks for the next message, or returns ctx.Err() once ctx is
	// done.
	Receive(ctx context.Context) (packet.Packet, error)

	// Return hands a stamped EOF token to the next shard in the ring (spec
	// §4.1's ring-traversal contract: each shard stamps once, then passes
	// the token on, so after N stamps it has visited every replica).
	Return(ctx context.Context, eof packet.EOF) error
}

// ReviewsSource consumes this shard's partition of the sharded review
// stream (spec §6, "queue name suffixed with shard id"). Every delivery
// requires an explicit Ack or Requeue (manual ack, spec §9).
type ReviewsSource interface {
	Receive(ctx context.Context) (Message, error)
}

// Publisher emits packets to the configured output destinations (spec §6:
// a list of queue names and a list of exchange names; emission goes to
// all of them). Requeue of review-stream messages goes through
// Message.Requeue, not through the Publisher.
type Publisher interface {
	// Publish emits p to every configured output queue and exchange.
	Publish(ctx context.Context, p packet.Packet) error
}
