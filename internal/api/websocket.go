package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Lllllllleong/attachmentflow/internal/chat"
	"github.com/Lllllllleong/attachmentflow/internal/models"
)

// serveWS serves one conversation per connection. The server opens a
// session and announces its id; the client then sends message and end_chat
// frames. The connection closes after chat_ended.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed.", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sessionID, err := s.chat.Connect(ctx)
	if err != nil {
		_ = conn.WriteJSON(models.WSMessage{Type: models.WSTypeError, Error: err.Error()})
		return
	}
	logCtx := slog.With("sessionId", sessionID)
	if err := conn.WriteJSON(models.WSMessage{Type: models.WSTypeSessionID, SessionID: sessionID}); err != nil {
		return
	}

	for {
		var in models.WSMessage
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logCtx.Debug("WebSocket read ended.", "error", err)
			}
			return
		}
		id := sessionID
		if in.SessionID != "" {
			id = in.SessionID
		}

		var out models.WSMessage
		switch in.Type {
		case models.WSTypeMessage:
			reply, err := s.chat.Message(ctx, id, in.Message)
			if err != nil {
				out = models.WSMessage{Type: models.WSTypeError, SessionID: id, Error: err.Error()}
				break
			}
			out = models.WSMessage{Type: models.WSTypeMessage, SessionID: id, Role: chat.RoleAssistant, Content: reply}
		case models.WSTypeEndChat:
			n, err := s.chat.EndChat(ctx, id)
			if err != nil {
				out = models.WSMessage{Type: models.WSTypeError, SessionID: id, Error: err.Error()}
				break
			}
			out = models.WSMessage{Type: models.WSTypeChatEnded, SessionID: id, TranscriptNumber: n}
		default:
			out = models.WSMessage{Type: models.WSTypeError, Error: "unknown frame type " + in.Type}
		}

		if err := conn.WriteJSON(out); err != nil {
			logCtx.Warn("WebSocket write failed.", "error", err)
			return
		}
		if out.Type == models.WSTypeChatEnded {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "chat ended"))
			return
		}
	}
}
