package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pulsewatch/pulsewatch/internal/relay"
)

const pongTimeout = 60 * time.Second

// WSHandler upgrades clients and parks them in their user room. Tenant and
// user identity arrive from the upstream auth middleware; query params are
// the fallback for local runs without a proxy in front.
type WSHandler struct {
	hub      *relay.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(hub *relay.Hub, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The auth proxy in front already enforces origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "ws_handler"),
	}
}

func (h *WSHandler) Serve(ctx *gin.Context) {
	tenantID := ctx.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		tenantID = ctx.Query("tenant_id")
	}
	userID := ctx.GetHeader("X-User-ID")
	if userID == "" {
		userID = ctx.Query("user_id")
	}
	if tenantID == "" || userID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and user_id are required"})
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.hub.Register(conn, relay.Room(tenantID, userID))
	go h.readPump(conn)
}

// readPump drains client frames (clients only listen) and detects closed
// connections through the pong deadline. The hub's writer pump sends the
// pings; this goroutine never writes to the connection.
func (h *WSHandler) readPump(conn *websocket.Conn) {
	defer h.hub.Unregister(conn)

	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
