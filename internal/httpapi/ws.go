package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ahmedesmail07/ai-agent-platform/internal/apperr"
	"github.com/ahmedesmail07/ai-agent-platform/internal/protocol"
	"github.com/ahmedesmail07/ai-agent-platform/internal/store"
)

const wsWriteTimeout = 10 * time.Second

// handleChatWS runs the streaming chat loop over one websocket connection.
// Payloads are handled strictly in sequence: persist the user turn, stream
// completion deltas to the client, persist the accumulated agent turn, then
// read the next payload. A client disconnect mid-stream aborts the turn
// without persisting partial output.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uintParam(r, "sessionID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	// Reject unknown sessions before upgrading.
	if _, err := s.store.Session(r.Context(), sessionID); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		payload, err := protocol.ParseChatPayload(data)
		if err != nil {
			s.writeWS(conn, protocol.ErrorEvent{Error: err.Error(), Code: "INVALID_PAYLOAD"})
			continue
		}

		emit := func(delta string) error {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			return conn.WriteJSON(protocol.MessageEvent{Sender: store.SenderAgent, Content: delta})
		}

		_, _, err = s.chat.StreamUserMessage(ctx, sessionID, payload.Content, payload.KnowledgeBase, emit)
		if err != nil {
			s.metrics.Completions.WithLabelValues("streaming", "error").Inc()
			s.closeWSWithError(conn, err)
			return
		}
		s.metrics.Completions.WithLabelValues("streaming", "ok").Inc()
	}
}

func (s *Server) writeWS(conn *websocket.Conn, v any) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteJSON(v)
}

// closeWSWithError reports the failure as an error payload and closes the
// connection with an internal-error status. When the failure was the
// client's own disconnect the writes are no-ops.
func (s *Server) closeWSWithError(conn *websocket.Conn, err error) {
	event := protocol.ErrorEvent{Error: "internal server error", Code: "INTERNAL_ERROR"}
	if e, ok := apperr.As(err); ok {
		event = protocol.ErrorEvent{Error: e.Message, Code: e.Code}
		s.metrics.GatewayErrors.WithLabelValues(e.Code).Inc()
	}
	s.writeWS(conn, event)
	deadline := time.Now().Add(wsWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""), deadline)
}
