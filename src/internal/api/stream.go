package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// handleWebsocket registers a client for task reports. Messages sent by
// the client are ignored; the connection ends when reading fails.
func (s *Server) handleWebsocket(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	if _, ok := c.Get("pharmaclaw_ws_key"); ok {
		// Browser sends multiple sub-protocols, we must split them
		// to satisfy the handshake, as we already verified it in authMiddleware
		requested := c.GetHeader("Sec-WebSocket-Protocol")
		if requested != "" {
			parts := strings.Split(requested, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			upgrader.Subprotocols = parts
		}
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	s.wsMu.Lock()
	s.wsConns[ws] = struct{}{}
	s.wsMu.Unlock()
	slog.Info("task report client connected", "remote", c.ClientIP())

	defer func() {
		s.wsMu.Lock()
		delete(s.wsConns, ws)
		s.wsMu.Unlock()
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) closeWebsockets() {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for conn := range s.wsConns {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
	}
}

func (s *Server) wsClientCount() int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return len(s.wsConns)
}
