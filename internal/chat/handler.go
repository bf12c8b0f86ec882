package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-messenger/internal/hub"
	"go-messenger/internal/middleware"
	"go-messenger/internal/transport"
)

const historyLimit = 50

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// command is the envelope clients send over the websocket. Type selects the
// hub operation; the identity is always the one resolved at attach time,
// never taken from the frame.
type command struct {
	Type       string          `json:"type"`
	Content    string          `json:"content,omitempty"`
	ReceiverID *int            `json:"receiverId,omitempty"`
	MessageID  int             `json:"messageId,omitempty"`
	PeerID     int             `json:"peerId,omitempty"`
	IsVideo    bool            `json:"isVideo,omitempty"`
	Accepted   bool            `json:"accepted,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
}

type Handler struct {
	hub  *hub.Hub
	pool *transport.Pool
	repo *Repository
	log  zerolog.Logger
}

func NewHandler(h *hub.Hub, pool *transport.Pool, repo *Repository, log zerolog.Logger) *Handler {
	return &Handler{
		hub:  h,
		pool: pool,
		repo: repo,
		log:  log.With().Str("component", "chat").Logger(),
	}
}

// ServeWs upgrades the request to a websocket, attaches the connection to
// the hub under the identity the auth middleware resolved, and dispatches
// inbound frames until the connection dies.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	identity := hub.UserIdentity{ID: userID, Username: username}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	var client *transport.Client
	client = h.pool.NewClient(conn,
		func(frame []byte) {
			h.dispatch(client.ID, identity, frame)
		},
		func() {
			h.hub.Detach(context.Background(), client.ID)
		},
	)

	// Attach before the pumps start: once readPump runs, its teardown path
	// must always find the connection registered, and the first inbound
	// frame must already see the sender's own connection. The send buffer
	// absorbs the roster push queued before the write pump is up.
	h.hub.Attach(context.Background(), client.ID, identity)
	client.Start()
}

// dispatch routes one inbound frame to the matching hub operation.
// Operation errors go back to the issuing connection only.
func (h *Handler) dispatch(connID string, identity hub.UserIdentity, frame []byte) {
	var cmd command
	if err := json.Unmarshal(frame, &cmd); err != nil {
		h.pushError(connID, "malformed command")
		return
	}

	ctx := context.Background()
	var err error

	switch cmd.Type {
	case "send":
		_, err = h.hub.Send(ctx, identity, cmd.ReceiverID, cmd.Content)
	case "mark_read":
		err = h.hub.MarkRead(ctx, cmd.MessageID, identity.ID)
	case "typing":
		h.hub.Typing(connID, identity.Username)
	case "call_offer":
		err = h.hub.InitiateCall(identity, cmd.PeerID, cmd.IsVideo)
	case "call_signal":
		err = h.hub.SendCallSignal(identity.ID, cmd.PeerID, cmd.Signal)
	case "call_answer":
		err = h.hub.AnswerCall(identity, cmd.PeerID, cmd.Accepted)
	case "call_end":
		err = h.hub.EndCall(identity.ID, cmd.PeerID)
	default:
		h.pushError(connID, "unknown command type")
		return
	}

	if err != nil {
		h.pushError(connID, err.Error())
	}
}

func (h *Handler) pushError(connID, message string) {
	if err := h.pool.Push(connID, hub.EventError, map[string]string{"message": message}); err != nil {
		h.log.Warn().Err(err).Str("conn_id", connID).Msg("error push failed")
	}
}

// GetHistory returns the recent direct messages between the authenticated
// user and the peer named by ?with=. Oldest first, ready for replay.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	peerID, err := strconv.Atoi(r.URL.Query().Get("with"))
	if err != nil {
		http.Error(w, "invalid peer id", http.StatusBadRequest)
		return
	}

	msgs, err := h.repo.ListConversation(r.Context(), userID, peerID, historyLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("history query failed")
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	// Newest-first from the store, chronological for the client.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []*hub.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}
