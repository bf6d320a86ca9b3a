package myws

import (
	"context"
	"net/http"
	"time"

	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"

	"github.com/gorilla/websocket"
)

// Handler upgrades browser drivers and hands the socket to the same session
// loop the TCP surface uses.
type Handler struct {
	ctx          context.Context
	mylog        mylogger.Logger
	upgrader     websocket.Upgrader
	serve        protocol.Handler
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewHandler(ctx context.Context, mylog mylogger.Logger, serve protocol.Handler, readTimeout, writeTimeout time.Duration) *Handler {
	return &Handler{
		ctx:   ctx,
		mylog: mylog,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		serve:        serve,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (h *Handler) HandleDriverWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.mylog.Action("ws_upgrade").Warn("websocket upgrade failed", "remote", r.RemoteAddr, "reason", err.Error())
		return
	}

	conn := protocol.NewWSConn(ws, h.readTimeout, h.writeTimeout)
	defer conn.Close()

	// hijacked sockets outlive http.Server.Shutdown
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-h.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	h.serve(h.ctx, conn)
}
