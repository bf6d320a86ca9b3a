package mytcp

import (
	"context"
	"errors"

	"ride-share/internal/driver-service/core/domain/model"
	"ride-share/internal/driver-service/core/ports/driver"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

// SessionHandler runs the long-lived driver conversation. The websocket
// surface reuses it with a different Conn.
type SessionHandler struct {
	mylog mylogger.Logger
	svc   driver.IDriverService
}

func NewSessionHandler(mylog mylogger.Logger, svc driver.IDriverService) *SessionHandler {
	return &SessionHandler{mylog: mylog, svc: svc}
}

func (h *SessionHandler) Serve(ctx context.Context, conn protocol.Conn) {
	sess := model.NewSession(conn, model.Persistent)
	log := h.mylog.Action("driver_connection").With("remote", conn.RemoteAddr())
	log.Debug("driver connected")

	defer func() {
		h.svc.Disconnect(sess)
		log.Debug("driver connection closed", "username", sess.Username)
	}()

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
				log.Info("idle driver disconnected", "username", sess.Username)
			case !protocol.IsDisconnect(err):
				log.Warn("read failed", "username", sess.Username, "reason", err.Error())
			}
			return
		}
		if req.Type == protocol.Disconnect {
			return
		}

		for _, resp := range h.svc.HandleDriver(ctx, sess, req) {
			if err := conn.Write(resp); err != nil {
				log.Warn("reply not delivered", "username", sess.Username, "type", resp.Type, "reason", err.Error())
				return
			}
		}
	}
}
