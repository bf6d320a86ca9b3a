package driver

import (
	"context"

	"ride-share/internal/protocol"
)

type IDBService interface {
	Handle(ctx context.Context, req protocol.Message) protocol.Message
}

type IPeerService interface {
	AddPeer(ctx context.Context, addr string) bool
	Bootstrap(ctx context.Context, peers []string)
}
