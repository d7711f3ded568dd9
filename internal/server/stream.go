package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"minigames/internal/engine"
	"minigames/internal/repo"
)

const (
	streamWriteWait = 5 * time.Second
	streamReadWait  = 60 * time.Second
)

// streamMessage is one server to client frame on the session stream.
type streamMessage struct {
	Type     string           `json:"type"` // "snapshot" or "command"
	Applied  *bool            `json:"applied,omitempty"`
	Code     string           `json:"code,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
}

type streamHandler struct {
	host     *Host
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func newStreamHandler(h *Host, logger *slog.Logger) *streamHandler {
	return &streamHandler{
		host: h,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP pushes every frame of a live session to the client and applies
// the commands it sends back.
func (s *streamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	playerID, authErr := playerIDFromContext(r.Context())
	if authErr != nil {
		respondStatusError(w, authErr)
		return
	}
	id := chi.URLParam(r, "id")
	snaps, unsubscribe, err := s.host.Subscribe(id, playerID)
	if err != nil {
		respondStatusError(w, handleError(err))
		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replies := make(chan streamMessage, 16)
	writeErr := make(chan error, 1)
	go func() {
		for {
			var msg streamMessage
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case snap, ok := <-snaps:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"), time.Now().Add(time.Second))
					writeErr <- nil
					return
				}
				msg = streamMessage{Type: "snapshot", Snapshot: &snap}
			case msg = <-replies:
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				writeErr <- err
				return
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var req CommandRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.reply(replies, streamMessage{Type: "command", Applied: boolPtr(false), Code: "bad_request", Reason: "invalid command json"})
			continue
		}
		snap, err := s.host.Apply(r.Context(), id, playerID, req.command())
		if errors.Is(err, repo.ErrNotFound) {
			break
		}
		s.reply(replies, commandMessage(snap, err))
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
}

func (s *streamHandler) reply(out chan<- streamMessage, msg streamMessage) {
	select {
	case out <- msg:
	default:
		s.log.Debug("stream reply dropped", "code", msg.Code)
	}
}

func commandMessage(snap engine.Snapshot, err error) streamMessage {
	resp := commandResponse(snap, err)
	return streamMessage{
		Type:     "command",
		Applied:  boolPtr(resp.Applied),
		Code:     resp.Code,
		Reason:   resp.Reason,
		Snapshot: &resp.Snapshot,
	}
}

func boolPtr(v bool) *bool { return &v }
