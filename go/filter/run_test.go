package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reviewfilter/core/go/broker/brokertest"
	"github.com/reviewfilter/core/go/packet"
	"github.com/reviewfilter/core/go/store"
)

// TestRunEndToEndThenShutdown drives a Worker through its three live loops
// (Books Ingestor, Reviews Joiner, Cleaner) over brokertest fakes, then
// cancels and expects Run to return promptly rather than hang on the
// Cleaner (see the Run() shutdown watcher).
func TestRunEndToEndThenShutdown(t *testing.T) {
	var booksQ = brokertest.NewQueue()
	var ring = brokertest.NewQueue()
	var reviewsQ = brokertest.NewQueue()
	var pub = &brokertest.Publisher{}

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	w, err := New(ctx, Config{
		InstanceID:     0,
		ClusterSize:    2,
		CleanupTimeout: time.Hour,
	}, store.NewMemory(),
		brokertest.Books{Queue: booksQ, Next: ring},
		brokertest.Reviews{Queue: reviewsQ},
		pub)
	require.NoError(t, err)

	var done = make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	booksQ.Push(packet.Book{ClientID: 1, Title: "A", Author: "X"})
	reviewsQ.Push(packet.Review{ClientID: 1, Title: "A", Score: 5})

	require.Eventually(t, func() bool {
		return len(pub.Snapshot()) == 1
	}, time.Second, time.Millisecond, "enriched review should be published")

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after cancellation")
	}
}
