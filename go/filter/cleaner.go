package filter

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// runCleaner is the Cleaner loop (spec §4.4): every CleanupTimeout/10 it
// reaps clients idle past CleanupTimeout. It forwards nothing downstream —
// per spec §9's Open Question, a timed-out client's absence is expected to
// be handled by the downstream pipeline's own timeout, not signaled here.
func (w *Worker) runCleaner(ctx context.Context) error {
	var interval = w.cfg.CleanupTimeout / 10

	for {
		w.stateMu.Lock()
		if w.shouldStop {
			w.stateMu.Unlock()
			log.Info("cleaner thread stopped")
			return nil
		}

		// sync.Cond has no native timed wait; a timer that grabs the same
		// lock and broadcasts is the standard way to bound Wait() while
		// still honoring an immediate shutdown broadcast (spec §5:
		// "must honor wake-ups triggered by shutdown").
		var timer = time.AfterFunc(interval, func() {
			w.stateMu.Lock()
			w.cond.Broadcast()
			w.stateMu.Unlock()
		})
		w.cond.Wait()
		timer.Stop()

		var stop = w.shouldStop
		w.stateMu.Unlock()

		if stop {
			log.Info("cleaner thread stopped")
			return nil
		}
		w.sweep(ctx)
	}
}

// sweep iterates last-activity once and resets any client idle past
// CleanupTimeout.
func (w *Worker) sweep(ctx context.Context) {
	var now = time.Now()

	w.stateMu.Lock()
	var stale []uint64
	for clientID, last := range w.lastActivity {
		if now.Sub(last) > w.cfg.CleanupTimeout {
			stale = append(stale, clientID)
		}
	}
	w.stateMu.Unlock()

	for _, clientID := range stale {
		log.WithField("client_id", clientID).Info("cleaner: reaping idle client")
		if err := w.resetFilter(ctx, clientID); err != nil {
			// resetFilter only fails via a persistence I/O error. Spec §7:
			// persistence failures abort the process rather than continue,
			// since bookIndex has already been dropped in memory while the
			// persisted deletion failed, breaking persistence-⊇-memory.
			log.WithError(err).Fatal("persistence I/O error resetting idle client")
		}
		w.metrics.clientsReaped.Inc()
	}
}
