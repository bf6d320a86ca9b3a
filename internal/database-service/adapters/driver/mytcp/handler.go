package mytcp

import (
	"context"
	"errors"

	"ride-share/internal/database-service/core/ports/driver"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

// Handler answers requests on one connection until the client closes it.
// One-shot callers send a single line; replication pushes never read the reply.
type Handler struct {
	mylog mylogger.Logger
	svc   driver.IDBService
}

func NewHandler(mylog mylogger.Logger, svc driver.IDBService) *Handler {
	return &Handler{mylog: mylog, svc: svc}
}

func (h *Handler) Serve(ctx context.Context, conn protocol.Conn) {
	log := h.mylog.Action("db_connection").With("remote", conn.RemoteAddr())

	for {
		req, err := conn.Read()
		if err != nil {
			var decErr *protocol.DecodeError
			if errors.As(err, &decErr) {
				log.Warn("malformed request", "reason", decErr.Error())
				if werr := conn.Write(protocol.ErrorMessage("Malformed message")); werr != nil {
					return
				}
				continue
			}
			switch {
			case protocol.IsTimeout(err):
				log.Debug("idle connection closed")
			case !protocol.IsDisconnect(err):
				log.Warn("read failed", "reason", err.Error())
			}
			return
		}
		if req.Type == protocol.Disconnect {
			return
		}

		resp := h.svc.Handle(ctx, req)
		if err := conn.Write(resp); err != nil {
			// replication senders hang up without reading
			log.Debug("reply not delivered", "type", resp.Type, "reason", err.Error())
			return
		}
	}
}
