package fanout

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"auction-house/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WSHandler upgrades authenticated requests to websocket connections.
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewWSHandler creates a handler. An empty allowedOrigins accepts any origin.
func NewWSHandler(hub *Hub, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Serve handles GET /ws. The session gateway must have stored the user id.
func (h *WSHandler) Serve(c *gin.Context) {
	userID, ok := utils.UserID(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	// The hijacked response only carries the headers passed here, so cookies
	// rotated by the gateway must be forwarded explicitly.
	var header http.Header
	if cookies := c.Writer.Header().Values("Set-Cookie"); len(cookies) > 0 {
		header = http.Header{"Set-Cookie": cookies}
	}
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		utils.Warn("fanout: websocket upgrade failed", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}

	conn := h.hub.Register(context.WithoutCancel(c.Request.Context()), userID)
	utils.Info("fanout: client connected", map[string]any{"user_id": userID})

	go h.writePump(ws, conn)
	go h.readPump(ws, conn)
}

// readPump applies subscription frames until the socket fails, then removes
// the connection from the registry.
func (h *WSHandler) readPump(ws *websocket.Conn, conn *Conn) {
	defer func() {
		h.hub.Unregister(conn)
		_ = ws.Close()
		utils.Info("fanout: client disconnected", map[string]any{"user_id": conn.UserID()})
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Warn("fanout: unexpected close", map[string]any{"user_id": conn.UserID(), "error": err.Error()})
			}
			return
		}

		reply, err := Encode(h.hub.HandleFrame(conn, data))
		if err != nil {
			continue
		}
		h.hub.offer(conn, reply)
	}
}

// writePump writes queued frames and keepalive pings. It exits when the hub
// closes the queue or a write fails.
func (h *WSHandler) writePump(ws *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case frame, ok := <-conn.Send():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
