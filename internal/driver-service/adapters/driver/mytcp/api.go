package mytcp

import (
	"context"
	"errors"

	"ride-share/internal/driver-service/core/ports/driver"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

// APIHandler answers the coordinator's queries until the caller hangs up.
// Callers normally send one request per connection.
type APIHandler struct {
	mylog mylogger.Logger
	svc   driver.IAPIService
}

func NewAPIHandler(mylog mylogger.Logger, svc driver.IAPIService) *APIHandler {
	return &APIHandler{mylog: mylog, svc: svc}
}

func (h *APIHandler) Serve(ctx context.Context, conn protocol.Conn) {
	log := h.mylog.Action("api_connection").With("remote", conn.RemoteAddr())

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
			if !protocol.IsDisconnect(err) && !protocol.IsTimeout(err) {
				log.Warn("read failed", "reason", err.Error())
			}
			return
		}
		if req.Type == protocol.Disconnect {
			return
		}

		if err := conn.Write(h.svc.HandleAPI(ctx, req)); err != nil {
			log.Debug("reply not delivered", "type", req.Type, "reason", err.Error())
			return
		}
	}
}
