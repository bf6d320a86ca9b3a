package driver

import (
	"context"

	"ride-share/internal/driver-service/core/domain/model"
	"ride-share/internal/protocol"
)

// IDriverService serves the long-lived driver surface (TCP and websocket).
type IDriverService interface {
	HandleDriver(ctx context.Context, sess *model.Session, req protocol.Message) []protocol.Message
	Disconnect(sess *model.Session)
}

// IAPIService serves one-shot queries from the dispatch coordinator.
type IAPIService interface {
	HandleAPI(ctx context.Context, req protocol.Message) protocol.Message
}
