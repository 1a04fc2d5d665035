package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/reviewfilter/core/go/packet"
)

// runBooks is the Books Ingestor loop (spec §4.1): consumes the broadcast
// book stream, growing the per-client index and stamping the Books-EOF
// barrier. It owns books and must not share it with runReviews.
func (w *Worker) runBooks(ctx context.Context) error {
	for {
		p, err := w.books.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("filter: books receiver: %w", err)
		}

		switch v := p.(type) {
		case packet.Book:
			if err := w.addBook(ctx, v); err != nil {
				return err
			}
		case packet.EOF:
			if err := w.handleBooksEOF(ctx, v); err != nil {
				return err
			}
		default:
			log.WithField("type", p.Type()).Warn("books stream: unexpected packet type, dropping")
		}
	}
}

// addBook implements spec §4.1's per-book contract: insert into the index,
// append to the persistent list, refresh last-activity. Books are always
// auto-acked by the BooksSource (spec §9), so there is no Ack call here.
func (w *Worker) addBook(ctx context.Context, b packet.Book) error {
	w.persistMu.Lock()
	defer w.persistMu.Unlock()

	if _, ok := w.bookIndex[b.ClientID]; !ok {
		w.bookIndex[b.ClientID] = make(map[string]string)
	}
	w.bookIndex[b.ClientID][b.Title] = b.Author

	record, err := json.Marshal([2]string{b.Title, b.Author})
	if err != nil {
		return fmt.Errorf("filter: encoding book record: %w", err)
	}
	if err := w.store.Append(ctx, booksKey(b.ClientID), record); err != nil {
		log.WithError(err).Fatal("persistence I/O error appending book")
	}

	w.touch(b.ClientID)
	w.metrics.booksIngested.Inc()

	if n := len(w.bookIndex[b.ClientID]); n%2000 == 0 {
		log.WithField("client_id", b.ClientID).WithField("count", n).Info("stored books count")
	}
	return nil
}

// handleBooksEOF implements spec §4.1's barrier step. Stamping is
// idempotent on ack_instances membership, absorbing broker redelivery
// (spec §7).
func (w *Worker) handleBooksEOF(ctx context.Context, eof packet.EOF) error {
	w.persistMu.Lock()
	var stamped = eof
	if !eof.Stamped(w.cfg.InstanceID) {
		stamped = eof.WithStamp(w.cfg.InstanceID)
		w.touch(stamped.ClientID)
	}

	w.eofSeen[stamped.ClientID] = struct{}{}
	if err := w.persistIDSet(ctx, eofsKey, w.eofSeen); err != nil {
		w.persistMu.Unlock()
		log.WithError(err).Fatal("persistence I/O error persisting EOFS")
	}
	w.persistMu.Unlock()

	if stamped.Complete(w.cfg.ClusterSize) {
		log.WithField("client_id", stamped.ClientID).Debug("books EOF barrier complete")
		w.metrics.booksEOFCompleted.Inc()
		return nil
	}

	if err := w.books.Return(ctx, stamped); err != nil {
		return fmt.Errorf("filter: returning books EOF to ring: %w", err)
	}
	return nil
}
