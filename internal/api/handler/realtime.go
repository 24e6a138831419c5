package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mcoot/typeroom/internal/api/middleware"
	"github.com/mcoot/typeroom/internal/dependencies/clock"
	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/realtime"
)

// RealtimeHandler upgrades room connections to websockets
type RealtimeHandler struct {
	upgrader   websocket.Upgrader
	controller *realtime.Controller
	router     *realtime.Router
	clock      clock.Clock
	cfg        realtime.Config
	logger     *slog.Logger
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(
	controller *realtime.Controller,
	router *realtime.Router,
	clock clock.Clock,
	cfg realtime.Config,
	logger *slog.Logger,
) *RealtimeHandler {
	return &RealtimeHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are served from other origins; identity comes from the token
			CheckOrigin: func(*http.Request) bool { return true },
		},
		controller: controller,
		router:     router,
		clock:      clock,
		cfg:        cfg.WithDefaults(),
		logger:     logger,
	}
}

// Serve handles GET /ws?code=...&userId=...&token=...
func (h *RealtimeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := model.NormalizeRoomCode(query.Get("code"))
	userID := model.UserID(query.Get("userId"))

	token := query.Get("token")
	if token == "" {
		token = middleware.ExtractToken(r)
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := realtime.NewConn(ws, code, userID, h.clock.Now(), h.cfg, h.logger)
	go conn.WritePump()

	if code == "" || userID == "" {
		conn.Close(realtime.ClosePolicyViolation, realtime.ReasonMissingParams)
		<-conn.Finished()
		return
	}

	// Frame handlers bound their own storage calls
	ctx := context.WithoutCancel(r.Context())

	connectCtx, cancel := context.WithTimeout(ctx, h.cfg.OpTimeout)
	err = h.controller.OnConnect(connectCtx, conn, token)
	cancel()
	if err != nil {
		<-conn.Finished()
		return
	}

	conn.ReadPump(func(frame []byte) {
		h.router.HandleFrame(ctx, conn, frame)
	})

	h.controller.OnDisconnect(conn)
	<-conn.Finished()
}
