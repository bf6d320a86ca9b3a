package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"ride-share/internal/database-service/core/domain/model"
	"ride-share/internal/database-service/core/myerrors"
	"ride-share/internal/database-service/core/ports/driven"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

// Publishers fans a mutation out to several replication channels.
type Publishers []driven.IPublisher

func (ps Publishers) Publish(ctx context.Context, mutation protocol.Message) {
	for _, p := range ps {
		p.Publish(ctx, mutation)
	}
}

func (s *DBService) syncRequest(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("export snapshot: %w", err)
	}
	passengers, err := protocol.EncodeRecords(snap.Passengers)
	if err != nil {
		return protocol.Message{}, err
	}
	drivers, err := protocol.EncodeRecords(snap.Drivers)
	if err != nil {
		return protocol.Message{}, err
	}

	s.mylog.Action("SyncRequest").Info("snapshot exported", "passengers", len(snap.Passengers), "drivers", len(snap.Drivers))
	return req.Reply(protocol.SyncDataResponse).
		With("success", true).
		With("passengers", passengers).
		With("drivers", drivers), nil
}

// Bootstrap adds the configured peers and pulls from each once.
func (s *DBService) Bootstrap(ctx context.Context, peers []string) {
	for _, addr := range peers {
		s.AddPeer(ctx, addr)
	}
}

// AddPeer records addr and, the first time only, pulls a full snapshot from it.
func (s *DBService) AddPeer(ctx context.Context, addr string) bool {
	log := s.mylog.Action("AddPeer")

	addr = NormalizePeer(addr, s.peerPort)
	if !s.peers.Add(addr) {
		return false
	}
	log.Info("sync peer added", "peer", addr)

	imported, err := s.SyncFrom(ctx, addr)
	if err != nil {
		log.Warn("initial sync failed", "peer", addr, "reason", err.Error())
		return true
	}
	log.Info("initial sync finished", "peer", addr, "imported", imported)
	return true
}

// SyncFrom imports every passenger and driver of a peer's snapshot. Records
// that already exist locally are skipped, not merged.
func (s *DBService) SyncFrom(ctx context.Context, addr string) (int, error) {
	log := s.mylog.Action("SyncFrom").With("peer", addr)

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	snap, err := s.fetcher.FetchSnapshot(opCtx, addr)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, p := range snap.Passengers {
		_, err := s.store.InsertPassenger(opCtx, model.Passenger{
			Username:     p.Username,
			PasswordHash: p.PasswordHash,
			Phone:        p.Phone,
		})
		if err != nil {
			logImportFailure(log, "passenger", p.Username, err)
			continue
		}
		imported++
	}

	for _, d := range snap.Drivers {
		status := d.Status
		if status == "" {
			status = model.DriverApproved
		}
		_, err := s.store.InsertDriver(opCtx, model.Driver{
			Username:     d.Username,
			PasswordHash: d.PasswordHash,
			Phone:        d.Phone,
			Available:    status == model.DriverApproved,
			Status:       status,
			Application:  d.DriverApplication,
		})
		if err != nil {
			logImportFailure(log, "driver", d.Username, err)
			continue
		}
		imported++
	}
	return imported, nil
}

func logImportFailure(log mylogger.Logger, kind, username string, err error) {
	if errors.Is(err, myerrors.ErrDuplicate) {
		log.Debug("record already present", "kind", kind, "username", username)
		return
	}
	log.Warn("record import failed", "kind", kind, "username", username, "reason", err.Error())
}

// NormalizePeer appends the default service port when addr has none.
func NormalizePeer(addr string, port int) string {
	addr = strings.TrimSpace(addr)
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(port))
}
