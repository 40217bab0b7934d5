// Package ws is the websocket gateway: it authenticates the handshake,
// registers the connection with the room directory, and dispatches
// inbound frames to the chat service.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lalith-99/campuslink/internal/apperr"
	"github.com/lalith-99/campuslink/internal/auth"
	"github.com/lalith-99/campuslink/internal/chat"
	"github.com/lalith-99/campuslink/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Keepalive is the only liveness signal: a client that stops
	// answering pings is torn down and cleaned out of every room.

	maxFrameSize = 64 * 1024

	// actionTimeout bounds the persistence I/O behind one inbound
	// frame. The connection's read loop is blocked meanwhile, so this
	// stays short.
	actionTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers connect from the campus SPA origin; cross-origin policy
	// is enforced by the deployment's reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	jwtSecret string
	dir       *realtime.Directory
	chat      *chat.Service
	logger    *zap.Logger
}

func NewHandler(jwtSecret string, dir *realtime.Directory, chatSvc *chat.Service, logger *zap.Logger) *Handler {
	return &Handler{jwtSecret: jwtSecret, dir: dir, chat: chatSvc, logger: logger}
}

// Serve handles GET /v1/ws. The token comes from the query string
// (browser WebSocket clients cannot set headers) or, for non-browser
// clients, the usual Bearer header. A bad credential is rejected
// before the upgrade: the connection dies with 401 and joins nothing.
func (h *Handler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if header := c.GetHeader("Authorization"); len(header) > 7 {
			token = header[7:]
		}
	}

	claims, err := auth.ParseToken(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := realtime.NewClient(claims.Identity())
	h.dir.Register(client)

	h.logger.Info("websocket connected",
		zap.String("connection_id", client.ID.String()),
		zap.String("user_id", client.Identity.ID.String()),
	)

	go h.writePump(conn, client)
	h.readPump(conn, client)
}

// readPump reads frames until the connection dies, then synchronously
// unwinds all room, presence and typing state before returning.
func (h *Handler) readPump(conn *websocket.Conn, client *realtime.Client) {
	defer func() {
		h.dir.Unregister(client)
		conn.Close()
		h.logger.Info("websocket disconnected",
			zap.String("connection_id", client.ID.String()),
			zap.String("user_id", client.Identity.ID.String()),
		)
	}()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var frame realtime.InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.dir.SendTo(client, realtime.ErrorEvent("malformed frame"))
			continue
		}
		h.dispatch(client, frame)
	}
}

func (h *Handler) writePump(conn *websocket.Conn, client *realtime.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev := <-client.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

type groupPayload struct {
	GroupID uuid.UUID `json:"groupId"`
}

type sendMessagePayload struct {
	GroupID     uuid.UUID `json:"groupId"`
	Text        string    `json:"text"`
	Attachments []string  `json:"attachments"`
}

type editMessagePayload struct {
	MessageID int64  `json:"messageId"`
	NewText   string `json:"newText"`
}

type messageIDPayload struct {
	MessageID int64 `json:"messageId"`
}

type reactionPayload struct {
	MessageID int64  `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// dispatch routes one inbound frame. A panic while handling a frame is
// contained here: the connection survives and, more importantly, no
// other group's state is touched mid-flight.
func (h *Handler) dispatch(client *realtime.Client, frame realtime.InboundFrame) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic handling frame",
				zap.String("event", frame.Name),
				zap.Any("panic", r),
			)
			h.dir.SendTo(client, realtime.ErrorEvent("internal error"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	switch frame.Name {
	case realtime.EventJoinChat:
		var p groupPayload
		if !h.decode(client, frame.Data, &p) {
			return
		}
		h.reportError(client, h.chat.Join(ctx, client, p.GroupID))

	case realtime.EventLeaveChat:
		var p groupPayload
		if !h.decode(client, frame.Data, &p) {
			return
		}
		h.chat.Leave(client, p.GroupID)

	case realtime.EventSendMessage:
		var p sendMessagePayload
		if !h.decode(client, frame.Data, &p) {
			return
		}
		_, err := h.chat.Send(ctx, client, p.GroupID, p.Text, p.Attachments)
		h.reportError(client, err)

	case realtime.EventEditMessage:
		var p editMessagePayload
		if !h.decode(client, frame.Data, &p) {
			return
		}
		_, err := h.chat.Edit(ctx, client, p.MessageID, p.NewText)
		h.reportError(client, err)

	case realtime.EventDeleteMessage:
		var p messageIDPayload
		if !h.decode(client, frame.Data, &p) {
			return
		}
		h.reportError(client, h.chat.Delete(ctx, client, p.MessageID))

	case realtime.EventTypingStart:
		var p groupPayload
		if !h.decode(client, frame.Data, &p) {
			return
		}
		h.chat.StartTyping(client, p.GroupID)

	case realtime.EventTypingStop:
		var p groupPayload
		if !h.decode(client, frame.Data, &p) {
			return
		}
		h.chat.StopTyping(client, p.GroupID)

	case realtime.EventAddReaction:
		var p reactionPayload
		if !h.decode(client, frame.Data, &p) {
			return
		}
		h.reportError(client, h.chat.React(ctx, client, p.MessageID, p.Emoji))

	default:
		h.dir.SendTo(client, realtime.ErrorEvent("unknown event: "+frame.Name))
	}
}

func (h *Handler) decode(client *realtime.Client, raw json.RawMessage, into any) bool {
	if err := json.Unmarshal(raw, into); err != nil {
		h.dir.SendTo(client, realtime.ErrorEvent("malformed payload"))
		return false
	}
	return true
}

// reportError turns a service failure into an error event for the
// originating connection only. Taxonomy errors carry their own safe
// message; anything else is logged and reported generically.
func (h *Handler) reportError(client *realtime.Client, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrPermission),
		errors.Is(err, apperr.ErrNotFound):
		h.dir.SendTo(client, realtime.ErrorEvent(err.Error()))
	default:
		h.logger.Error("action failed",
			zap.String("user_id", client.Identity.ID.String()),
			zap.Error(err),
		)
		h.dir.SendTo(client, realtime.ErrorEvent("internal error"))
	}
}
