package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ellahq/ella/internal/chat"
	"github.com/ellahq/ella/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsReadLimit    = 1 << 20
)

// handleChatWS carries the same exchange flow as POST /v1/chat over a
// websocket so clients can hold one connection per conversation. Messages on
// one connection are handled sequentially; per-owner ordering comes from the
// engine either way.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	defaultOwner := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if defaultOwner == "" {
		defaultOwner = DefaultOwnerID
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			if !s.writeWS(conn, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			}) {
				return
			}
			continue
		}

		ownerID := strings.TrimSpace(msg.OwnerID)
		if ownerID == "" {
			ownerID = defaultOwner
		}

		res, err := s.engine.Exchange(ctx, chat.ExchangeRequest{
			OwnerID:         ownerID,
			Message:         msg.Message,
			ClientTimestamp: msg.ClientTimestamp,
		})
		if err != nil {
			if !s.writeWS(conn, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   string(chat.CodeOf(err)),
				Detail: err.Error(),
			}) {
				return
			}
			continue
		}

		if !s.writeWS(conn, protocol.AssistantReply{
			Type:    protocol.TypeAssistantReply,
			OwnerID: ownerID,
			Reply:   res.Reply,
		}) {
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msg any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn().Err(err).Msg("websocket write failed")
		return false
	}
	return true
}
