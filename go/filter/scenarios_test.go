package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reviewfilter/core/go/broker"
	"github.com/reviewfilter/core/go/broker/brokertest"
	"github.com/reviewfilter/core/go/packet"
	"github.com/reviewfilter/core/go/store"
)

// newTestWorker builds a two-shard cluster's shard 0 over fresh in-memory
// state, matching spec §8's end-to-end scenario fixture (cluster_size=2,
// shard under test=0).
func newTestWorker(t *testing.T) (*Worker, *brokertest.Queue, *brokertest.Publisher) {
	t.Helper()

	var ring = brokertest.NewQueue()
	var pub = &brokertest.Publisher{}

	var w, err = New(context.Background(), Config{
		InstanceID:     0,
		ClusterSize:    2,
		CleanupTimeout: time.Hour,
	}, store.NewMemory(), brokertest.Books{Queue: brokertest.NewQueue(), Next: ring}, nil, pub)
	require.NoError(t, err)
	return w, ring, pub
}

// reviewMessage wraps p as a broker.Message whose Ack/Requeue record onto
// the given slices, for scenarios that drive handleReviewsEOF/filterReview
// directly rather than through a live queue.
func reviewMessage(acked, requeued *[]packet.Packet) func(packet.Packet) broker.Message {
	return func(p packet.Packet) broker.Message {
		return broker.NewMessage(p,
			func(context.Context) error {
				*acked = append(*acked, p)
				return nil
			},
			func(_ context.Context, toSend packet.Packet) error {
				*requeued = append(*requeued, toSend)
				return nil
			},
		)
	}
}

// Scenario 1: book then review then both EOFs join and emit downstream.
func TestScenarioBookThenReviewThenEOF(t *testing.T) {
	var w, _, pub = newTestWorker(t)
	var ctx = context.Background()
	var acked, requeued []packet.Packet
	var msg = reviewMessage(&acked, &requeued)

	require.NoError(t, w.addBook(ctx, packet.Book{ClientID: 1, Title: "A", Author: "X"}))
	require.NoError(t, w.filterReview(ctx, packet.Review{ClientID: 1, Title: "A", Score: 5}, msg(packet.Review{ClientID: 1, Title: "A", Score: 5})))

	require.Len(t, pub.Snapshot(), 1)
	require.Equal(t, packet.EnrichedReview{ClientID: 1, Title: "A", Score: 5, Author: "X"}, pub.Snapshot()[0])

	// Books-EOF, acks=[] arriving at shard 0: stamps to [0], not complete (N=2).
	require.NoError(t, w.handleBooksEOF(ctx, packet.EOF{ClientID: 1}))

	// Reviews-EOF, acks=[] arriving at shard 0: not blocked by the guard
	// (client 1's books stay in memory until reset_filter, so stillHasBooks
	// is true, but eofSeen is also true for client 1 from the Books-EOF
	// above, so the guard does not trigger). Stamps to [0], not complete,
	// re-emits.
	require.NoError(t, w.handleReviewsEOF(ctx, packet.EOF{ClientID: 1}, msg(packet.EOF{ClientID: 1})))
	require.Len(t, requeued, 1, "not yet complete across both shards, so it is re-emitted")

	var reEmitted = requeued[0].(packet.EOF)
	require.True(t, reEmitted.Stamped(0))
	require.False(t, reEmitted.Complete(2))

	// Shard 1 stamps too: the token completes and shard 0 emits downstream.
	var completing = reEmitted.WithStamp(1)
	var acked2, requeued2 []packet.Packet
	require.NoError(t, w.handleReviewsEOF(ctx, completing, reviewMessage(&acked2, &requeued2)(completing)))
	require.Empty(t, requeued2)

	var emissions = pub.Snapshot()
	require.Len(t, emissions, 2)
	require.Equal(t, packet.EOF{ClientID: 1}, emissions[1], "downstream EOF is stripped of ack_instances")
}

// Scenario 2: review arrives before its book, is requeued, then joins once
// the book is stored and the review is redelivered.
func TestScenarioReviewBeforeBookThenRequeue(t *testing.T) {
	var w, _, pub = newTestWorker(t)
	var ctx = context.Background()

	var acked, requeued []packet.Packet
	var review = packet.Review{ClientID: 2, Title: "B", Score: 3}
	require.NoError(t, w.filterReview(ctx, review, reviewMessage(&acked, &requeued)(review)))
	require.Empty(t, acked)
	require.Len(t, requeued, 1)
	require.Empty(t, pub.Snapshot())

	require.NoError(t, w.addBook(ctx, packet.Book{ClientID: 2, Title: "B", Author: "Y"}))

	var acked2, requeued2 []packet.Packet
	require.NoError(t, w.filterReview(ctx, requeued[0].(packet.Review), reviewMessage(&acked2, &requeued2)(requeued[0])))
	require.Empty(t, requeued2)
	require.Len(t, acked2, 1)

	require.Equal(t, []packet.Packet{
		packet.EnrichedReview{ClientID: 2, Title: "B", Score: 3, Author: "Y"},
	}, pub.Snapshot())
}

// Scenario 3: once a client's Books-EOF has completed locally, a review for
// a title never seen is dropped silently rather than requeued forever.
func TestScenarioDropAfterEOFSeen(t *testing.T) {
	var w, _, pub = newTestWorker(t)
	var ctx = context.Background()

	require.NoError(t, w.handleBooksEOF(ctx, packet.EOF{ClientID: 3, AckInstances: []uint32{1}}))

	var acked, requeued []packet.Packet
	var review = packet.Review{ClientID: 3, Title: "Z", Score: 1}
	require.NoError(t, w.filterReview(ctx, review, reviewMessage(&acked, &requeued)(review)))

	require.Len(t, acked, 1)
	require.Empty(t, requeued)
	require.Empty(t, pub.Snapshot())
}

// Scenario 4: Reviews-EOF arrives before Books-EOF for the same client; the
// guard requeues it until Books-EOF has completed locally.
func TestScenarioReviewsEOFBeforeBooksEOF(t *testing.T) {
	var w, _, pub = newTestWorker(t)
	var ctx = context.Background()

	require.NoError(t, w.addBook(ctx, packet.Book{ClientID: 4, Title: "A", Author: "X"}))

	var acked, requeued []packet.Packet
	var eof = packet.EOF{ClientID: 4}
	require.NoError(t, w.handleReviewsEOF(ctx, eof, reviewMessage(&acked, &requeued)(eof)))
	require.Len(t, requeued, 1, "guard: books present locally, EOF not yet seen")
	require.Equal(t, packet.EOF{ClientID: 4}, requeued[0], "guarded requeue leaves the token unstamped")

	require.NoError(t, w.handleBooksEOF(ctx, packet.EOF{ClientID: 4, AckInstances: []uint32{1}}))

	// Guard clears now that Books-EOF has completed locally; this shard
	// stamps its own reviews-EOF barrier, which still needs shard 1's stamp.
	var acked2, requeued2 []packet.Packet
	require.NoError(t, w.handleReviewsEOF(ctx, requeued[0].(packet.EOF), reviewMessage(&acked2, &requeued2)(requeued[0])))
	require.Len(t, requeued2, 1, "reviews barrier needs both shards, not just this one")
	require.Empty(t, pub.Snapshot())

	var completing = requeued2[0].(packet.EOF)
	require.True(t, completing.Stamped(0))
	var acked3, requeued3 []packet.Packet
	require.NoError(t, w.handleReviewsEOF(ctx, completing.WithStamp(1), reviewMessage(&acked3, &requeued3)(completing.WithStamp(1))))
	require.Empty(t, requeued3)
	require.Len(t, pub.Snapshot(), 1)
	require.Equal(t, packet.EOF{ClientID: 4}, pub.Snapshot()[0])
}

// Scenario 5: Books-EOF{acks=[1]} arrives at shard 0 and completes the
// barrier without re-emission.
func TestScenarioBooksEOFCompletesOnSecondStamp(t *testing.T) {
	var w, ring, _ = newTestWorker(t)
	var ctx = context.Background()

	require.NoError(t, w.handleBooksEOF(ctx, packet.EOF{ClientID: 5, AckInstances: []uint32{1}}))

	w.persistMu.Lock()
	_, seen := w.eofSeen[5]
	w.persistMu.Unlock()
	require.True(t, seen)

	require.Zero(t, len(ring.Snapshot()))
}

// Scenario 6: an idle client is reaped by the cleaner and leaves no trace.
func TestScenarioCleanerReapsIdleClient(t *testing.T) {
	var w, _, pub = newTestWorker(t)
	var ctx = context.Background()

	require.NoError(t, w.addBook(ctx, packet.Book{ClientID: 7, Title: "A", Author: "X"}))

	w.stateMu.Lock()
	w.lastActivity[7] = time.Now().Add(-2 * w.cfg.CleanupTimeout)
	w.stateMu.Unlock()

	w.sweep(ctx)

	w.persistMu.Lock()
	_, hasBooks := w.bookIndex[7]
	w.persistMu.Unlock()
	require.False(t, hasBooks)

	keys, err := w.store.Keys(ctx, booksKeyPrefix)
	require.NoError(t, err)
	for _, kr := range keys {
		require.NotEqual(t, booksKey(7), kr.Key)
	}
	require.Empty(t, pub.Snapshot(), "cleaner never forwards a downstream token")
}
