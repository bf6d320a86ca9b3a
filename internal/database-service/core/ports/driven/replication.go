package driven

import (
	"context"

	"ride-share/internal/database-service/core/domain/model"
	"ride-share/internal/protocol"
)

// IPublisher ships a committed mutation, already tagged as a sync message,
// to other nodes. It must not block the caller on remote I/O.
type IPublisher interface {
	Publish(ctx context.Context, mutation protocol.Message)
}

type IPeerSet interface {
	// Add reports whether addr was new.
	Add(addr string) bool
	List() []string
}

type ISnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, addr string) (model.Snapshot, error)
}
