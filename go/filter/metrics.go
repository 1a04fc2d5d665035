package filter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var booksIngestedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reviewfilter_books_ingested_total",
	Help: "counter of book records added to a client's in-memory index",
}, []string{"instance_id"})

var booksEOFCompletedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reviewfilter_books_eof_completed_total",
	Help: "counter of books-stream EOF barriers observed complete by this shard",
}, []string{"instance_id"})

var reviewsJoinedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reviewfilter_reviews_joined_total",
	Help: "counter of reviews successfully joined against a known book and emitted downstream",
}, []string{"instance_id"})

var reviewsRequeuedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reviewfilter_reviews_requeued_total",
	Help: "counter of reviews requeued pending a book that hasn't arrived yet",
}, []string{"instance_id"})

var reviewsDroppedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reviewfilter_reviews_dropped_total",
	Help: "counter of reviews dropped because their client's books stream ended without the title",
}, []string{"instance_id"})

var reviewsEOFCompletedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reviewfilter_reviews_eof_completed_total",
	Help: "counter of reviews-stream EOF barriers observed complete by this shard",
}, []string{"instance_id"})

var clientsReapedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reviewfilter_clients_reaped_total",
	Help: "counter of clients reset by the cleaner after exceeding the idle timeout",
}, []string{"instance_id"})

// metrics binds one shard's counters to its instance_id label, so every
// Worker in a process (as in tests, which construct several) shares the
// package-level CounterVecs above without re-registering them.
type metrics struct {
	booksIngested       prometheus.Counter
	booksEOFCompleted   prometheus.Counter
	reviewsJoined       prometheus.Counter
	reviewsRequeued     prometheus.Counter
	reviewsDropped      prometheus.Counter
	reviewsEOFCompleted prometheus.Counter
	clientsReaped       prometheus.Counter
}

func newMetrics(instanceID uint32) *metrics {
	var label = strconv.FormatUint(uint64(instanceID), 10)
	return &metrics{
		booksIngested:       booksIngestedCounter.WithLabelValues(label),
		booksEOFCompleted:   booksEOFCompletedCounter.WithLabelValues(label),
		reviewsJoined:       reviewsJoinedCounter.WithLabelValues(label),
		reviewsRequeued:     reviewsRequeuedCounter.WithLabelValues(label),
		reviewsDropped:      reviewsDroppedCounter.WithLabelValues(label),
		reviewsEOFCompleted: reviewsEOFCompletedCounter.WithLabelValues(label),
		clientsReaped:       clientsReapedCounter.WithLabelValues(label),
	}
}
