// Package filter implements the Review-Joining Filter Worker: the core
// stateful stream-processing stage of spec §1–§5. A Worker runs three
// concurrent loops — Books Ingestor, Reviews Joiner, Cleaner — over
// per-client state it shares through the persistence and last-activity
// layers (§4, §5).
package filter

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/reviewfilter/core/go/broker"
	"github.com/reviewfilter/core/go/store"
)

// Persisted key prefixes. Cross-restart compatibility requires these stay
// stable (spec §6).
const (
	booksKeyPrefix = "BOOKS_"
	eofsKey        = "EOFS"
	requeueEOFKey  = "REQUEUE_EOF"
)

// Config is the worker's construction-time configuration, replacing the
// source's module-level RABBITMQ_HOST/PORT globals with an explicit struct
// (spec §9).
type Config struct {
	InstanceID     uint32
	ClusterSize    uint32
	CleanupTimeout time.Duration
}

// Worker is one shard of the Review-Joining Filter Worker cluster.
type Worker struct {
	cfg       Config
	store     store.Store
	books     broker.BooksSource
	reviews   broker.ReviewsSource
	publisher broker.Publisher
	metrics   *metrics

	// state_lock: guards lastActivity. Paired with cond to wake the
	// Cleaner on shutdown (spec §5).
	stateMu      sync.Mutex
	cond         *sync.Cond
	lastActivity map[uint64]time.Time
	shouldStop   bool

	// persistence_lock: guards every access to the persistent store and
	// the in-memory structures it mirrors. Held only for the duration of
	// one composite update (spec §5). Lock ordering: persistMu before
	// stateMu, when both are needed.
	persistMu      sync.Mutex
	bookIndex      map[uint64]map[string]string
	eofSeen        map[uint64]struct{}
	requeuePending map[uint64]struct{}
}

// New constructs a Worker and recovers its state from s (spec §4.3).
func New(ctx context.Context, cfg Config, s store.Store, books broker.BooksSource, reviews broker.ReviewsSource, pub broker.Publisher) (*Worker, error) {
	var w = &Worker{
		cfg:            cfg,
		store:          s,
		books:          books,
		reviews:        reviews,
		publisher:      pub,
		metrics:        newMetrics(cfg.InstanceID),
		lastActivity:   make(map[uint64]time.Time),
		bookIndex:      make(map[uint64]map[string]string),
		eofSeen:        make(map[uint64]struct{}),
		requeuePending: make(map[uint64]struct{}),
	}
	w.cond = sync.NewCond(&w.stateMu)

	if err := w.recover(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Run starts the Books Ingestor, Reviews Joiner, and Cleaner loops and
// blocks until ctx is cancelled or one of them returns a non-nil error —
// at which point the others are cancelled too (spec §5 Cancellation: a
// transient broker error is fatal to the whole shard, restarted by its
// supervisor, spec §7).
func (w *Worker) Run(ctx context.Context) error {
	var grp, grpCtx = errgroup.WithContext(ctx)

	// The Cleaner only returns once should_stop is set; it must learn of
	// cancellation as soon as grpCtx fires, not after grp.Wait() returns
	// below (which would itself wait on the Cleaner: a deadlock).
	grp.Go(func() error {
		<-grpCtx.Done()
		w.stateMu.Lock()
		w.shouldStop = true
		w.cond.Broadcast()
		w.stateMu.Unlock()
		return nil
	})

	grp.Go(func() error { return w.runBooks(grpCtx) })
	grp.Go(func() error { return w.runReviews(grpCtx) })
	grp.Go(func() error { return w.runCleaner(grpCtx) })

	var err = grp.Wait()

	w.stateMu.Lock()
	w.shouldStop = true
	w.cond.Broadcast()
	w.stateMu.Unlock()

	log.Info("graceful shutdown: done")
	return err
}

// touch refreshes last-activity for clientID under state_lock.
func (w *Worker) touch(clientID uint64) {
	w.stateMu.Lock()
	w.lastActivity[clientID] = time.Now()
	w.stateMu.Unlock()
}
