package hub

import (
	"encoding/json"

	"go-messenger/internal/metrics"
)

// Call signaling is a stateless store-and-forward relay: every operation is
// a pure routing function over the registry's current snapshot. No call
// state is retained between calls and there is no timeout machinery; an
// unanswered offer simply leaves no trace.

// InitiateCall pushes a call offer to every connection of the receiver.
// Returns ErrPeerOffline when the receiver has no live connections so the
// caller's client can show "user unavailable".
func (h *Hub) InitiateCall(caller UserIdentity, receiverID int, isVideo bool) error {
	conns := h.registry.ConnectionsFor(receiverID)
	if len(conns) == 0 {
		return ErrPeerOffline
	}

	metrics.CallEvents.WithLabelValues("offer").Inc()
	offer := CallOffer{CallerID: caller.ID, CallerName: caller.Username, IsVideo: isVideo}
	for _, connID := range conns {
		h.pushTo(connID, EventCallOffer, offer)
	}

	h.log.Info().
		Int("caller_id", caller.ID).
		Int("receiver_id", receiverID).
		Bool("video", isVideo).
		Msg("call initiated")
	return nil
}

// SendCallSignal relays an opaque SDP/ICE payload to every connection of
// the receiver. Same offline semantics as InitiateCall.
func (h *Hub) SendCallSignal(senderID, receiverID int, signal json.RawMessage) error {
	conns := h.registry.ConnectionsFor(receiverID)
	if len(conns) == 0 {
		return ErrPeerOffline
	}

	metrics.CallEvents.WithLabelValues("signal").Inc()
	payload := CallSignal{SenderID: senderID, Signal: signal}
	for _, connID := range conns {
		h.pushTo(connID, EventCallSignal, payload)
	}
	return nil
}

// AnswerCall pushes the accept/reject decision to every connection of the
// original caller.
func (h *Hub) AnswerCall(responder UserIdentity, callerID int, accepted bool) error {
	conns := h.registry.ConnectionsFor(callerID)
	if len(conns) == 0 {
		return ErrPeerOffline
	}

	metrics.CallEvents.WithLabelValues("answer").Inc()
	answer := CallAnswer{ReceiverID: responder.ID, ReceiverName: responder.Username, Accepted: accepted}
	for _, connID := range conns {
		h.pushTo(connID, EventCallAnswer, answer)
	}

	h.log.Info().
		Int("responder_id", responder.ID).
		Int("caller_id", callerID).
		Bool("accepted", accepted).
		Msg("call answered")
	return nil
}

// EndCall notifies the peer that the call was torn down. An offline peer is
// not an error: the far end may have already hung up, so this is logged and
// silently succeeds.
func (h *Hub) EndCall(enderID, peerID int) error {
	conns := h.registry.ConnectionsFor(peerID)
	if len(conns) == 0 {
		h.log.Info().
			Int("ender_id", enderID).
			Int("peer_id", peerID).
			Msg("end-call peer offline, nothing to notify")
		return nil
	}

	metrics.CallEvents.WithLabelValues("end").Inc()
	for _, connID := range conns {
		h.pushTo(connID, EventCallEnd, CallEnd{EnderID: enderID})
	}
	return nil
}
