package filter

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/reviewfilter/core/go/broker"
	"github.com/reviewfilter/core/go/packet"
)

// runReviews is the Reviews Joiner loop (spec §4.2): consumes this shard's
// partition of the sharded review stream, joins each review against the
// book index, and coordinates the Reviews-EOF barrier. It owns reviews and
// must not share it with runBooks.
func (w *Worker) runReviews(ctx context.Context) error {
	for {
		msg, err := w.reviews.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("filter: reviews receiver: %w", err)
		}

		switch v := msg.Packet.(type) {
		case packet.Review:
			if err := w.filterReview(ctx, v, msg); err != nil {
				return err
			}
		case packet.EOF:
			if err := w.handleReviewsEOF(ctx, v, msg); err != nil {
				return err
			}
		default:
			log.WithField("type", msg.Packet.Type()).Warn("reviews stream: unexpected packet type, acking")
			if err := msg.Ack(ctx); err != nil {
				return fmt.Errorf("filter: acking unexpected packet: %w", err)
			}
		}
	}
}

// filterReview implements spec §4.2 steps 1-5.
func (w *Worker) filterReview(ctx context.Context, r packet.Review, msg broker.Message) error {
	w.touch(r.ClientID)

	w.persistMu.Lock()
	author, found := w.bookIndex[r.ClientID][r.Title]
	var isEOFSeen bool
	if !found {
		_, isEOFSeen = w.eofSeen[r.ClientID]
	}
	w.persistMu.Unlock()

	if found {
		var enriched = packet.EnrichedReview{
			ClientID: r.ClientID,
			PacketID: r.PacketID,
			Title:    r.Title,
			Score:    r.Score,
			Text:     r.Text,
			Author:   author,
		}
		if err := w.publisher.Publish(ctx, enriched); err != nil {
			return fmt.Errorf("filter: publishing enriched review: %w", err)
		}
		w.metrics.reviewsJoined.Inc()
		return msg.Ack(ctx)
	}

	if !isEOFSeen {
		// Book not yet known, and this client's Books-EOF hasn't completed
		// locally: it may still arrive. Requeue and remember that a
		// Reviews-EOF for this client must be requeued at least once
		// (spec §4.2; testable property 5 of spec §8).
		w.persistMu.Lock()
		w.requeuePending[r.ClientID] = struct{}{}
		var err = w.persistIDSet(ctx, requeueEOFKey, w.requeuePending)
		w.persistMu.Unlock()
		if err != nil {
			log.WithError(err).Fatal("persistence I/O error persisting requeue-pending")
		}

		w.metrics.reviewsRequeued.Inc()
		return msg.Requeue(ctx, r)
	}

	// Book missing and the client's books stream has already terminated:
	// it will never arrive. Silently drop (ack without emission).
	w.metrics.reviewsDropped.Inc()
	return msg.Ack(ctx)
}

// handleReviewsEOF implements spec §4.2's barrier step, including the
// ordering-race guard against Books-EOF arriving late relative to in-flight
// reviews of the same client.
func (w *Worker) handleReviewsEOF(ctx context.Context, eof packet.EOF, msg broker.Message) error {
	w.persistMu.Lock()
	_, stillHasBooks := w.bookIndex[eof.ClientID]
	_, eofSeen := w.eofSeen[eof.ClientID]
	_, pendingRequeue := w.requeuePending[eof.ClientID]

	var mustRequeue = (stillHasBooks && !eofSeen) || pendingRequeue
	if pendingRequeue {
		delete(w.requeuePending, eof.ClientID)
		var err = w.persistIDSet(ctx, requeueEOFKey, w.requeuePending)
		w.persistMu.Unlock()
		if err != nil {
			log.WithError(err).Fatal("persistence I/O error persisting requeue-pending")
		}
	} else {
		w.persistMu.Unlock()
	}

	if mustRequeue {
		log.WithField("client_id", eof.ClientID).Warn("reviews EOF arrived early, requeuing")
		return msg.Requeue(ctx, eof)
	}

	var stamped = eof
	if !eof.Stamped(w.cfg.InstanceID) {
		stamped = eof.WithStamp(w.cfg.InstanceID)
		if err := w.resetFilter(ctx, stamped.ClientID); err != nil {
			return err
		}
	}

	if stamped.Complete(w.cfg.ClusterSize) {
		if err := w.publisher.Publish(ctx, stamped.Fresh()); err != nil {
			return fmt.Errorf("filter: publishing downstream EOF: %w", err)
		}
		w.metrics.reviewsEOFCompleted.Inc()
		return msg.Ack(ctx)
	}

	if err := msg.Requeue(ctx, stamped); err != nil {
		return fmt.Errorf("filter: re-emitting reviews EOF: %w", err)
	}
	return nil
}
