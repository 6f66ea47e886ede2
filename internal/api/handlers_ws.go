package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AttachWebSocket upgrades the request and parks the connection under the
// caller's session token so permission changes can be pushed to it. The
// read loop exists only to observe the close.
func (h *Handler) AttachWebSocket(c *gin.Context) {
	token := c.GetString("token")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	h.proc.Push().Add(token, conn)
	h.proc.AttachSession(c.Request.Context(), token)

	go func() {
		defer func() {
			h.proc.Push().Remove(token, conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
