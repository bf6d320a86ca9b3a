package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-share/internal/database-service/core/myerrors"
	"ride-share/internal/database-service/core/ports/driven"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

const (
	// SyncTag marks a replayed mutation so that it is never forwarded again.
	SyncTag = "isSync"

	NotApprovedMessage = "Your account is not yet approved. Please wait for admin verification."
	defaultOpTimeout   = 15 * time.Second
)

// mutations are replicated to peers after they succeed locally.
var mutations = map[protocol.MessageType]bool{
	protocol.DBInsertPassenger:      true,
	protocol.DBInsertDriver:         true,
	protocol.DBInsertDriverDetailed: true,
	protocol.DBApproveDriver:        true,
	protocol.DBCreateRide:           true,
	protocol.DBUpdateRide:           true,
	protocol.AssignDriver:           true,
}

func IsMutation(t protocol.MessageType) bool {
	return mutations[t]
}

type handlerFunc func(ctx context.Context, req protocol.Message) (protocol.Message, error)

type DBService struct {
	mylog     mylogger.Logger
	store     driven.IStore
	publisher driven.IPublisher
	peers     driven.IPeerSet
	fetcher   driven.ISnapshotFetcher
	peerPort  int
	opTimeout time.Duration
	routes    map[protocol.MessageType]handlerFunc
}

func NewDBService(mylog mylogger.Logger,
	store driven.IStore,
	publisher driven.IPublisher,
	peers driven.IPeerSet,
	fetcher driven.ISnapshotFetcher,
	peerPort int,
) *DBService {
	s := &DBService{
		mylog:     mylog,
		store:     store,
		publisher: publisher,
		peers:     peers,
		fetcher:   fetcher,
		peerPort:  peerPort,
		opTimeout: defaultOpTimeout,
	}
	s.routes = map[protocol.MessageType]handlerFunc{
		protocol.DBInsertPassenger:         s.insertPassenger,
		protocol.DBInsertDriver:            s.insertDriver,
		protocol.DBInsertDriverDetailed:    s.insertDriverDetailed,
		protocol.DBValidateLogin:           s.validateLogin,
		protocol.DBUpdatePassengerLocation: s.updatePassengerLocation,
		protocol.DBUpdateDriverLocation:    s.updateDriverLocation,
		protocol.DBCreateRide:              s.createRide,
		protocol.DBUpdateRide:              s.updateRide,
		protocol.AssignDriver:              s.assignDriver,
		protocol.DBGetRide:                 s.getRide,
		protocol.DBGetPendingDrivers:       s.pendingDrivers,
		protocol.DBApproveDriver:           s.approveDriver,
		protocol.DBGetActiveRides:          s.activeRides,
		protocol.GetLocations:              s.locations,
		protocol.SyncRequest:               s.syncRequest,
		protocol.Heartbeat:                 s.heartbeat,
	}
	return s
}

// Handle executes one request and returns its reply. Successful mutations
// that did not arrive as sync messages are published to the other nodes.
func (s *DBService) Handle(ctx context.Context, req protocol.Message) protocol.Message {
	log := s.mylog.Action(string(req.Type)).With("request_id", req.RequestID)

	h, ok := s.routes[req.Type]
	if !ok {
		log.Warn("unsupported request")
		resp := protocol.ErrorMessage(fmt.Sprintf("Unknown message type: %s", req.Type))
		resp.RequestID = req.RequestID
		return resp
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	resp, err := h(opCtx, req)
	if err != nil {
		if isClientError(err) {
			log.Warn("request rejected", "reason", err.Error())
		} else {
			log.Error("request failed", err)
		}
		return failure(req, err)
	}
	resp.RequestID = req.RequestID

	s.replicate(ctx, req, resp)
	return resp
}

func (s *DBService) replicate(ctx context.Context, req, resp protocol.Message) {
	if s.publisher == nil || !IsMutation(req.Type) || req.Payload.Bool(SyncTag) || !resp.Payload.Bool("success") {
		return
	}

	mutation := req.Clone().With(SyncTag, true)
	if req.Type == protocol.DBCreateRide {
		// peers insert with the same id
		mutation = mutation.With("rideId", resp.Payload["rideId"])
	}
	s.publisher.Publish(ctx, mutation)
	s.mylog.Action("replicate").Debug("mutation published", "type", req.Type, "request_id", req.RequestID)
}

func ok(req protocol.Message) protocol.Message {
	return req.Reply(protocol.DBResponse).With("success", true)
}

func failure(req protocol.Message, err error) protocol.Message {
	return req.Reply(protocol.DBResponse).With("success", false).With("error", err.Error())
}

func isClientError(err error) bool {
	for _, target := range []error{
		myerrors.ErrFieldIsEmpty,
		myerrors.ErrDuplicate,
		myerrors.ErrPassengerNotFound,
		myerrors.ErrDriverNotFound,
		myerrors.ErrRideNotFound,
		myerrors.ErrInvalidTransition,
		myerrors.ErrDriverRequired,
		myerrors.ErrRideAlreadyAssigned,
		errInvalidField,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *DBService) heartbeat(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	return req.Reply(protocol.Heartbeat), nil
}
