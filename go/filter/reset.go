package filter

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// resetFilter clears every trace of clientID, both in-memory and persisted
// (spec §4.5). Ordering matters for crash-safety: the in-memory drop happens
// first, then the persistent deletes, so a crash mid-reset leaves at worst a
// client that still looks "seen" on the next recover rather than one whose
// in-memory state silently outlives its persisted record.
func (w *Worker) resetFilter(ctx context.Context, clientID uint64) error {
	w.persistMu.Lock()
	delete(w.bookIndex, clientID)
	w.persistMu.Unlock()

	if err := w.store.DeleteKeys(ctx, booksKey(clientID)); err != nil {
		return fmt.Errorf("filter: deleting book list for client %d: %w", clientID, err)
	}

	w.persistMu.Lock()
	delete(w.eofSeen, clientID)
	var eofErr = w.persistIDSet(ctx, eofsKey, w.eofSeen)
	delete(w.requeuePending, clientID)
	var pendingErr = w.persistIDSet(ctx, requeueEOFKey, w.requeuePending)
	w.persistMu.Unlock()

	if eofErr != nil {
		return fmt.Errorf("filter: persisting eof-seen after reset of client %d: %w", clientID, eofErr)
	}
	if pendingErr != nil {
		return fmt.Errorf("filter: persisting requeue-pending after reset of client %d: %w", clientID, pendingErr)
	}

	w.stateMu.Lock()
	delete(w.lastActivity, clientID)
	w.stateMu.Unlock()

	log.WithField("client_id", clientID).Debug("filter state reset")
	return nil
}
