package driver

import (
	"context"

	"ride-share/internal/dispatch-service/core/domain/model"
	"ride-share/internal/protocol"
)

// IDispatchService answers passenger and operator requests, one reply each.
type IDispatchService interface {
	Handle(ctx context.Context, sess *model.Session, req protocol.Message) protocol.Message
	Disconnect(sess *model.Session)
}
