package mytcp

import (
	"context"
	"net"
	"testing"
	"time"

	"ride-share/internal/database-service/adapters/driven/memory"
	"ride-share/internal/database-service/adapters/driven/peers"
	"ride-share/internal/database-service/core/services"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testTimeout = 2 * time.Second

func init() {
	services.HashFactor = bcrypt.MinCost
}

type node struct {
	addr  string
	set   *peers.Set
	svc   *services.DBService
	store *memory.Store
}

func startNode(t *testing.T, ctx context.Context) *node {
	t.Helper()

	log := mylogger.Nop()
	n := &node{set: peers.NewSet(), store: memory.New()}
	pub := peers.NewPublisher(log, n.set, testTimeout)
	n.svc = services.NewDBService(log, n.store, pub, n.set, peers.NewFetcher(testTimeout), 5002)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	n.addr = ln.Addr().String()

	l := protocol.NewListener(log, NewHandler(log, n.svc).Serve, testTimeout, testTimeout)
	go l.Serve(ctx, ln)
	t.Cleanup(func() {
		l.Close()
		pub.Wait()
	})
	return n
}

func tryCall(addr string, m protocol.Message) (protocol.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	return protocol.NewClient(testTimeout).Call(ctx, addr, m)
}

func call(t *testing.T, addr string, m protocol.Message) protocol.Message {
	t.Helper()
	resp, err := tryCall(addr, m)
	require.NoError(t, err)
	return resp
}

func TestServesSeveralRequestsPerConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := startNode(t, ctx)

	raw, err := net.Dial("tcp", n.addr)
	require.NoError(t, err)
	conn := protocol.NewLineConn(raw, testTimeout, testTimeout)
	defer conn.Close()

	_, err = raw.Write([]byte("{not json}\n"))
	require.NoError(t, err)
	resp, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, protocol.Error, resp.Type)

	for i := 0; i < 2; i++ {
		hb := protocol.New(protocol.Heartbeat)
		require.NoError(t, conn.Write(hb))
		resp, err := conn.Read()
		require.NoError(t, err)
		assert.Equal(t, protocol.Heartbeat, resp.Type)
		assert.Equal(t, hb.RequestID, resp.RequestID)
	}
}

// TestMutationsReachPeers registers on one node and logs in on the other.
func TestMutationsReachPeers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := startNode(t, ctx)
	b := startNode(t, ctx)
	a.set.Add(b.addr)
	b.set.Add(a.addr)

	resp := call(t, a.addr, protocol.New(protocol.DBInsertPassenger).
		With("username", "abebe").
		With("password", "secret"))
	require.True(t, resp.Payload.Bool("success"))

	login := protocol.New(protocol.DBValidateLogin).
		With("role", "PASSENGER").
		With("username", "abebe").
		With("password", "secret")
	assert.Eventually(t, func() bool {
		r, err := tryCall(b.addr, login.Clone())
		return err == nil && r.Payload.Bool("valid")
	}, 3*time.Second, 20*time.Millisecond)

	resp = call(t, a.addr, protocol.New(protocol.DBCreateRide).
		With("passengerUsername", "abebe").
		With("startLat", 9.01).With("startLon", 38.71).
		With("destLat", 9.05).With("destLon", 38.80))
	require.True(t, resp.Payload.Bool("success"))
	rideID := resp.Payload["rideId"]

	assert.Eventually(t, func() bool {
		r, err := tryCall(b.addr, protocol.New(protocol.DBGetRide).With("rideId", rideID))
		return err == nil && r.Payload.Bool("success") && r.Payload.String("passengerUsername") == "abebe"
	}, 3*time.Second, 20*time.Millisecond)

	// replayed mutations are not echoed back, so a still has exactly one ride
	time.Sleep(100 * time.Millisecond)
	locs, err := a.store.Locations(context.Background())
	require.NoError(t, err)
	assert.Len(t, locs.Rides, 1)
}

// TestSnapshotPull imports an existing node's users when a peer is added.
func TestSnapshotPull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := startNode(t, ctx)

	for _, name := range []string{"abebe", "chaltu"} {
		resp := call(t, a.addr, protocol.New(protocol.DBInsertPassenger).
			With("username", name).
			With("password", "secret"))
		require.True(t, resp.Payload.Bool("success"))
	}
	resp := call(t, a.addr, protocol.New(protocol.DBInsertDriver).
		With("username", "kebede").
		With("password", "secret"))
	require.True(t, resp.Payload.Bool("success"))

	b := startNode(t, ctx)
	require.True(t, b.svc.AddPeer(ctx, a.addr))

	snap, err := b.store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Passengers, 2)
	require.Len(t, snap.Drivers, 1)

	r := call(t, b.addr, protocol.New(protocol.DBValidateLogin).
		With("role", "DRIVER").
		With("username", "kebede").
		With("password", "secret"))
	assert.True(t, r.Payload.Bool("valid"))
}
