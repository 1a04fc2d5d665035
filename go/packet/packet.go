// Package packet defines the wire records exchanged between review-filter
// shards and their broker: books, reviews, their enriched join result, and
// the EOF barrier token that flows on both streams.
package packet

// Type discriminates the payload carried by a broker message.
type Type byte

const (
	// TypeBook carries a (title, author) pair for a client's index.
	TypeBook Type = iota + 1
	// TypeReview carries a single client review awaiting a book join.
	TypeReview
	// TypeEnrichedReview carries a review joined against its book's author.
	TypeEnrichedReview
	// TypeEOF carries an end-of-stream barrier token for one client.
	TypeEOF
)

func (t Type) String() string {
	switch t {
	case TypeBook:
		return "BOOK"
	case TypeReview:
		return "REVIEW"
	case TypeEnrichedReview:
		return "ENRICHED_REVIEW"
	case TypeEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Packet is the common interface of every decoded message. Dispatch on
// concrete type is exhaustive: Type() names one of the four constants above,
// and a type switch over the interface value covers all of them.
type Packet interface {
	Type() Type
	Client() uint64
	Packet() uint64
}

// Book is an immutable (title, author) fact for one client.
type Book struct {
	ClientID uint64
	PacketID uint64
	Title    string
	Author   string
}

func (b Book) Type() Type     { return TypeBook }
func (b Book) Client() uint64 { return b.ClientID }
func (b Book) Packet() uint64 { return b.PacketID }

// Review is an immutable client review awaiting a book join.
type Review struct {
	ClientID uint64
	PacketID uint64
	Title    string
	Score    float32
	Text     string
}

func (r Review) Type() Type     { return TypeReview }
func (r Review) Client() uint64 { return r.ClientID }
func (r Review) Packet() uint64 { return r.PacketID }

// EnrichedReview is a Review joined against its book's author. Emitted
// downstream only once Title is known to be present in the client's index.
type EnrichedReview struct {
	ClientID uint64
	PacketID uint64
	Title    string
	Score    float32
	Text     string
	Author   string
}

func (e EnrichedReview) Type() Type     { return TypeEnrichedReview }
func (e EnrichedReview) Client() uint64 { return e.ClientID }
func (e EnrichedReview) Packet() uint64 { return e.PacketID }

// EOF is a distributed barrier token. AckInstances accumulates shard ids as
// the token is stamped once per shard on its ring traversal; the barrier is
// complete once len(AckInstances) equals the cluster size.
type EOF struct {
	ClientID     uint64
	PacketID     uint64
	AckInstances []uint32
}

func (e EOF) Type() Type     { return TypeEOF }
func (e EOF) Client() uint64 { return e.ClientID }
func (e EOF) Packet() uint64 { return e.PacketID }

// Stamped reports whether shard has already appended its id to AckInstances.
// The membership check is what makes EOF stamping idempotent under broker
// redelivery (spec §4.1, §7).
func (e EOF) Stamped(shard uint32) bool {
	for _, id := range e.AckInstances {
		if id == shard {
			return true
		}
	}
	return false
}

// WithStamp returns a copy of e with shard appended to AckInstances, unless
// already present.
func (e EOF) WithStamp(shard uint32) EOF {
	if e.Stamped(shard) {
		return e
	}
	var out = EOF{ClientID: e.ClientID, PacketID: e.PacketID}
	out.AckInstances = append(out.AckInstances, e.AckInstances...)
	out.AckInstances = append(out.AckInstances, shard)
	return out
}

// Complete reports whether the barrier has been stamped by every shard of a
// cluster of the given size.
func (e EOF) Complete(clusterSize uint32) bool {
	return uint32(len(e.AckInstances)) >= clusterSize
}

// Fresh returns a copy of e stripped of AckInstances, the form emitted
// downstream once the barrier on this stream completes (spec §4.2).
func (e EOF) Fresh() EOF {
	return EOF{ClientID: e.ClientID, PacketID: e.PacketID}
}
