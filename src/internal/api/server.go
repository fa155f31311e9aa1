package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pharmaclaw/src/internal/cron"
	"pharmaclaw/src/internal/gateway"
	"pharmaclaw/src/internal/tasks"
)

type Server struct {
	Gateway *gateway.Gateway
	Engine  *gin.Engine

	limiter *ipLimiter

	// websocket clients receiving task reports
	wsMu    sync.Mutex
	wsConns map[*websocket.Conn]struct{}
}

func NewServer(gw *gateway.Gateway) *Server {
	e := gin.Default()
	rl := gw.Config().Server.RateLimit
	s := &Server{
		Gateway: gw,
		Engine:  e,
		limiter: newIPLimiter(rl.PerSecond, rl.Burst),
		wsConns: make(map[*websocket.Conn]struct{}),
	}
	s.Engine.Use(s.corsMiddleware())
	s.Engine.Use(s.injectMiddleware())
	s.Engine.Use(s.authMiddleware())
	s.setupRoutesRest()
	s.setupRoutesWebSocket()
	s.setupRoutesAdmin()
	s.Gateway.SetTaskReportHandler(s.handleTaskReport)
	return s
}

func (s *Server) handleTaskReport(t *tasks.Task, r *cron.Report) {
	if t.Silent {
		return
	}

	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	if len(s.wsConns) == 0 {
		return
	}

	slog.Info("Broadcasting task report", "task_id", t.ID, "conns", len(s.wsConns))
	msg := gin.H{
		"source":    "task",
		"task_id":   t.ID,
		"task_name": t.Name,
		"response":  r.Summary,
		"report":    r,
	}
	for conn := range s.wsConns {
		if err := conn.WriteJSON(msg); err != nil {
			slog.Warn("Failed to send task report to websocket", "task_id", t.ID, "error", err)
		}
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Server-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutesAdmin() {
	admin := s.Engine.Group("/api/admin/v1", s.adminMiddleware())
	{
		admin.GET("/health", s.handleAdminHealth)

		admin.GET("/config", s.handleGetConfig)
		admin.POST("/config", s.handleUpdateConfig)
		admin.POST("/channels", s.handleChannels)
		admin.GET("/interpreter", s.handleInterpreter)

		// Skill management
		admin.GET("/skills", s.handleListSkills)
		admin.POST("/skills", s.handleInstallSkill)
		admin.POST("/skills/reload", s.handleReloadSkills)
		admin.GET("/skills/:name", s.handleGetSkill)
		admin.DELETE("/skills/:name", s.handleRemoveSkill)
		admin.GET("/remote-skills", s.handleListRemoteSkills)
		admin.GET("/remote-skills/:slug", s.handleGetRemoteSkill)

		admin.GET("/watchlist", s.handleListWatchlist)
		admin.POST("/watchlist", s.handleAddWatch)
		admin.GET("/watchlist/:id", s.handleGetWatch)
		admin.PUT("/watchlist/:id", s.handleUpdateWatch)
		admin.DELETE("/watchlist/:id", s.handleDeleteWatch)

		// Task management
		admin.GET("/tasks", s.handleListTasks)
		admin.POST("/tasks", s.handleAddTask)
		admin.GET("/tasks/:id", s.handleGetTask)
		admin.PUT("/tasks/:id", s.handleUpdateTask)
		admin.DELETE("/tasks/:id", s.handleDeleteTask)
		admin.POST("/tasks/:id/run", s.handleRunTask)

		admin.GET("/history", s.handleListHistory)
		admin.GET("/history/:id", s.handleGetHistory)
	}
}

func (s *Server) setupRoutesWebSocket() {
	s.Engine.GET("/ws", s.handleWebsocket)
}

func (s *Server) setupRoutesRest() {
	s.Engine.GET("/api/health", s.handleHealth)

	lookups := s.Engine.Group("/api", s.rateLimitMiddleware())
	{
		lookups.POST("/chemistry", s.handleChemistry)
		lookups.POST("/pharmacology", s.handlePharmacology)
		lookups.POST("/catalyst", s.handleCatalyst)
	}

	v1 := s.Engine.Group("/api/v1")
	{
		v1.POST("/compare", s.rateLimitMiddleware(), s.handleCompare)
		v1.POST("/batch", s.rateLimitMiddleware(), s.handleBatch)
		v1.GET("/tools", s.handleListTools)
		v1.POST("/tools/:name", s.rateLimitMiddleware(), s.handleInvokeTool)
		v1.GET("/files/*filepath", s.handleGetFile)
	}
}

func (s *Server) injectMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("gateway", s.Gateway)
		c.Next()
	}
}

const wsKeyProtocol = "pharmaclaw-key"

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip server key auth for admin endpoints
		if strings.HasPrefix(c.Request.URL.Path, "/api/admin/v1") {
			c.Next()
			return
		}

		// Skip auth for OPTIONS requests (CORS preflight)
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		gw := c.MustGet("gateway").(*gateway.Gateway)
		key := gw.Config().Server.Key
		if key == "" {
			c.Next()
			return
		}
		provided := c.GetHeader("X-Server-Key")

		isWebSocket := false
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			conn := strings.ToLower(c.GetHeader("Connection"))
			if strings.Contains(conn, "upgrade") {
				isWebSocket = true
			}
		}

		// Browsers cannot set headers on a websocket handshake: accept the
		// key as ?token= or as the subprotocol pair "pharmaclaw-key, <key>".
		if isWebSocket {
			if protocol := c.GetHeader("Sec-WebSocket-Protocol"); protocol != "" {
				c.Set("pharmaclaw_ws_key", protocol)
			}

			if provided == "" {
				provided = c.Query("token")
			}
			if provided == "" {
				parts := strings.Split(c.GetHeader("Sec-WebSocket-Protocol"), ",")
				for i, p := range parts {
					if strings.TrimSpace(p) == wsKeyProtocol && i+1 < len(parts) {
						provided = strings.TrimSpace(parts[i+1])
						break
					}
				}
			}
		}

		if provided != key {
			slog.Warn("unauthorized request", "path", c.Request.URL.Path, "remote", c.ClientIP(), "provided", provided != "")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing server key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		gw := c.MustGet("gateway").(*gateway.Gateway)
		user := gw.Config().Server.AdminUser
		pass := gw.Config().Server.AdminPass

		// If no admin credentials set, deny all admin access
		if user == "" || pass == "" {
			c.Header("WWW-Authenticate", `Basic realm="Admin Restricted"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		providedUser, providedPass, ok := c.Request.BasicAuth()
		if !ok || providedUser != user || providedPass != pass {
			c.Header("WWW-Authenticate", `Basic realm="Admin Restricted"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Next()
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 60 * time.Second,
		ReadTimeout:       600 * time.Second,
		WriteTimeout:      600 * time.Second,
		IdleTimeout:       1200 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed && err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	slog.Info("shutting down server...")

	ctxShut, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server graceful shutdown error", "error", err)
	}

	s.closeWebsockets()
	slog.Info("server stopped")
	return nil
}
