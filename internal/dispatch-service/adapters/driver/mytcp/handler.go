package mytcp

import (
	"context"
	"errors"

	"ride-share/internal/dispatch-service/core/domain/model"
	"ride-share/internal/dispatch-service/core/ports/driver"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

// Handler serves one passenger connection: one reply per request line.
type Handler struct {
	mylog mylogger.Logger
	svc   driver.IDispatchService
}

func NewHandler(mylog mylogger.Logger, svc driver.IDispatchService) *Handler {
	return &Handler{mylog: mylog, svc: svc}
}

func (h *Handler) Serve(ctx context.Context, conn protocol.Conn) {
	sess := &model.Session{}
	log := h.mylog.Action("passenger_connection").With("remote", conn.RemoteAddr())
	log.Debug("passenger connected")
	defer h.svc.Disconnect(sess)

	for {
		req, err := conn.Read()
		if err != nil {
			var decErr *protocol.DecodeError
			if errors.As(err, &decErr) {
				log.Warn("malformed request", "reason", decErr.Error())
				if werr := conn.Write(protocol.ErrorMessage("Invalid message format")); werr != nil {
					return
				}
				continue
			}
			switch {
			case protocol.IsTimeout(err):
				log.Info("idle passenger disconnected", "username", sess.Username)
			case !protocol.IsDisconnect(err):
				log.Warn("read failed", "username", sess.Username, "reason", err.Error())
			}
			return
		}
		if req.Type == protocol.Disconnect {
			return
		}

		if err := conn.Write(h.svc.Handle(ctx, sess, req)); err != nil {
			log.Warn("reply not delivered", "username", sess.Username, "type", req.Type, "reason", err.Error())
			return
		}
	}
}
