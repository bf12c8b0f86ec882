package hub

import (
	"context"
	"strings"
	"time"

	"go-messenger/internal/metrics"
)

// Send persists a message and fans it out. A nil receiverID broadcasts to
// every live connection and the message stays Sent. For a direct message the
// status advances to Delivered when the receiver holds at least one live
// connection; an offline receiver leaves the message Sent with no error,
// deferred to history retrieval.
//
// The insert always completes before any push, so clients never observe a
// message ID that does not exist in the store.
func (h *Hub) Send(ctx context.Context, sender UserIdentity, receiverID *int, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidMessage
	}

	msg := &Message{
		Content:    content,
		SenderID:   sender.ID,
		SenderName: sender.Username,
		ReceiverID: receiverID,
		CreatedAt:  time.Now().UTC(),
		Status:     StatusSent,
	}

	id, err := h.store.InsertMessage(ctx, msg)
	if err != nil {
		h.log.Error().Err(err).Int("sender_id", sender.ID).Msg("message insert failed")
		return nil, ErrPersistenceFailed
	}
	msg.ID = id

	if receiverID == nil {
		metrics.MessagesSent.WithLabelValues("broadcast").Inc()
		h.pushAll(EventMessageNew, msg)
		return msg, nil
	}

	metrics.MessagesSent.WithLabelValues("direct").Inc()

	receiverConns := h.registry.ConnectionsFor(*receiverID)
	if len(receiverConns) > 0 {
		now := time.Now().UTC()
		msg.Status = StatusDelivered
		msg.DeliveredAt = &now

		// Best effort: the pushed message reflects Delivered even if the
		// status write fails; storage may lag behind.
		if _, err := h.store.UpdateMessageStatus(ctx, id, StatusDelivered, &now, nil); err != nil {
			h.log.Warn().Err(err).Int("message_id", id).Msg("delivered-status update failed")
		} else {
			metrics.StatusTransitions.WithLabelValues("delivered").Inc()
		}

		for _, connID := range receiverConns {
			h.pushTo(connID, EventMessageNew, msg)
		}
	}

	// Echo to every sender connection so all their devices see the outgoing
	// message with whatever status it reached.
	for _, connID := range h.registry.ConnectionsFor(sender.ID) {
		h.pushTo(connID, EventMessageNew, msg)
	}

	return msg, nil
}

// MarkRead advances a direct message to Read on behalf of its receiver and
// pushes a read receipt to every connection of the original sender. A reader
// who is not the stored receiver, or a repeat call on an already-read
// message, is a silent no-op.
func (h *Hub) MarkRead(ctx context.Context, messageID, readerID int) error {
	senderID, receiverID, err := h.store.GetMessageOwner(ctx, messageID)
	if err != nil {
		h.log.Error().Err(err).Int("message_id", messageID).Msg("message owner lookup failed")
		return ErrPersistenceFailed
	}

	// Only the addressed receiver may mark a message read; broadcast
	// messages have no receiver and never reach Read.
	if receiverID == nil || *receiverID != readerID {
		return nil
	}

	// Read implies Delivered: a message read through history retrieval may
	// never have been pushed, so the read timestamp backfills an absent
	// delivered_at to keep deliveredAt set iff status >= Delivered.
	now := time.Now().UTC()
	applied, err := h.store.UpdateMessageStatus(ctx, messageID, StatusRead, &now, &now)
	if err != nil {
		h.log.Error().Err(err).Int("message_id", messageID).Msg("read-status update failed")
		return ErrPersistenceFailed
	}
	if !applied {
		// Already read. Read is terminal, so this is idempotent.
		return nil
	}

	metrics.StatusTransitions.WithLabelValues("read").Inc()

	update := StatusUpdate{MessageID: messageID, Status: StatusRead, ReadAt: &now}
	for _, connID := range h.registry.ConnectionsFor(senderID) {
		h.pushTo(connID, EventMessageStatus, update)
	}
	return nil
}
