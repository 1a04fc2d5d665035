package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// recover rebuilds bookIndex, eofSeen, and requeuePending from the
// persistent store at startup (spec §4.3). No per-review persistence is
// required: reviews in flight at crash time are redelivered by the broker.
func (w *Worker) recover(ctx context.Context) error {
	books, err := w.store.Keys(ctx, booksKeyPrefix)
	if err != nil {
		return fmt.Errorf("filter: recovering book index: %w", err)
	}
	for _, kr := range books {
		clientID, err := strconv.ParseUint(strings.TrimPrefix(kr.Key, booksKeyPrefix), 10, 64)
		if err != nil {
			return fmt.Errorf("filter: recovering %q: %w", kr.Key, err)
		}
		var index = make(map[string]string, len(kr.Records))
		for _, record := range kr.Records {
			var pair [2]string
			if err := json.Unmarshal(record, &pair); err != nil {
				return fmt.Errorf("filter: decoding book record for client %d: %w", clientID, err)
			}
			index[pair[0]] = pair[1]
		}
		w.bookIndex[clientID] = index
	}

	eofs, err := w.loadIDSet(ctx, eofsKey)
	if err != nil {
		return err
	}
	w.eofSeen = eofs

	// Seed last-activity with wall time for every client already past
	// Books-EOF, so the Cleaner's timeout starts counting from restart
	// rather than from whatever it was before the crash.
	var now = time.Now()
	for clientID := range w.eofSeen {
		w.lastActivity[clientID] = now
	}

	pending, err := w.loadIDSet(ctx, requeueEOFKey)
	if err != nil {
		return err
	}
	w.requeuePending = pending

	log.WithField("clients", len(w.bookIndex)).
		WithField("eofs", len(w.eofSeen)).
		WithField("requeue_pending", len(w.requeuePending)).
		Info("recovered persisted state")
	return nil
}

func (w *Worker) loadIDSet(ctx context.Context, key string) (map[uint64]struct{}, error) {
	raw, ok, err := w.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("filter: loading %q: %w", key, err)
	}
	var set = make(map[uint64]struct{})
	if !ok {
		return set, nil
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("filter: decoding %q: %w", key, err)
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// persistIDSet writes set to key. Callers must already hold persistMu.
func (w *Worker) persistIDSet(ctx context.Context, key string, set map[uint64]struct{}) error {
	var ids = make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("filter: encoding %q: %w", key, err)
	}
	if err := w.store.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("filter: persisting %q: %w", key, err)
	}
	return nil
}

func booksKey(clientID uint64) string {
	return booksKeyPrefix + strconv.FormatUint(clientID, 10)
}
