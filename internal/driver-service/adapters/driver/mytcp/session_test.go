package mytcp

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ride-share/internal/driver-service/adapters/driver/myws"
	"ride-share/internal/driver-service/core/services"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

type nopDB struct{}

func (nopDB) UpdateDriverLocation(context.Context, string, float64, float64) {}
func (nopDB) UpdateRide(context.Context, int64, string, float64, float64) error {
	return nil
}
func (nopDB) AssignDriver(context.Context, int64, string) error { return nil }

type driverNode struct {
	driverAddr string
	apiAddr    string
	sessions   *SessionHandler
	registry   *services.Registry
}

func startDriverNode(t *testing.T, ctx context.Context) *driverNode {
	t.Helper()
	log := mylogger.Nop()
	n := &driverNode{registry: services.NewRegistry()}
	svc := services.NewDriverService(log, n.registry, nopDB{})
	n.sessions = NewSessionHandler(log, svc)

	listen := func(h protocol.Handler) string {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		l := protocol.NewListener(log, h, testTimeout, testTimeout)
		go l.Serve(ctx, ln)
		t.Cleanup(func() { l.Close() })
		return ln.Addr().String()
	}
	n.driverAddr = listen(n.sessions.Serve)
	n.apiAddr = listen(NewAPIHandler(log, svc).Serve)
	return n
}

func dialDriver(t *testing.T, addr string) *protocol.LineConn {
	t.Helper()
	raw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn := protocol.NewLineConn(raw, testTimeout, testTimeout)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func callAPI(t *testing.T, addr string, m protocol.Message) protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	resp, err := protocol.NewClient(testTimeout).Call(ctx, addr, m)
	require.NoError(t, err)
	return resp
}

func register(t *testing.T, conn protocol.Conn, username string) {
	t.Helper()
	require.NoError(t, conn.Write(protocol.New(protocol.RegisterDriver).
		With("username", username).
		With("latitude", 9.0).
		With("longitude", 38.7)))
	resp, err := conn.Read()
	require.NoError(t, err)
	require.Equal(t, protocol.LoginSuccess, resp.Type)
}

func assignRide(rideID int64) protocol.Message {
	return protocol.New(protocol.AssignDriver).
		With("driverUsername", "abebe").
		With("passengerUsername", "chaltu").
		With("rideId", rideID).
		With("pickupLat", 9.01).
		With("pickupLon", 38.71)
}

func TestAssignmentReachesTCPDriver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := startDriverNode(t, ctx)

	conn := dialDriver(t, n.driverAddr)
	register(t, conn, "abebe")

	resp := callAPI(t, n.apiAddr, protocol.New(protocol.GetAvailableDrivers))
	require.Equal(t, protocol.AvailableDriversList, resp.Type)
	assert.Equal(t, int64(1), resp.Payload["count"])

	resp = callAPI(t, n.apiAddr, assignRide(42))
	require.Equal(t, protocol.DriverAssigned, resp.Type)

	push, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, protocol.RideAssignment, push.Type)
	assert.Equal(t, int64(42), push.Payload["rideId"])
	assert.Equal(t, 9.01, push.Payload["pickupLat"])
}

func TestDisconnectRemovesDriver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := startDriverNode(t, ctx)

	conn := dialDriver(t, n.driverAddr)
	register(t, conn, "abebe")
	require.Equal(t, 1, n.registry.Len())

	require.NoError(t, conn.Write(protocol.New(protocol.Disconnect)))
	assert.Eventually(t, func() bool { return n.registry.Len() == 0 }, testTimeout, 10*time.Millisecond)

	resp := callAPI(t, n.apiAddr, assignRide(1))
	assert.Equal(t, protocol.Error, resp.Type)
}

func TestMalformedLineKeepsDriverSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := startDriverNode(t, ctx)

	raw, err := net.Dial("tcp", n.driverAddr)
	require.NoError(t, err)
	conn := protocol.NewLineConn(raw, testTimeout, testTimeout)
	defer conn.Close()

	register(t, conn, "abebe")
	_, err = raw.Write([]byte("{\"type\":\"NOT_A_TYPE\"}\n"))
	require.NoError(t, err)
	resp, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, protocol.Error, resp.Type)

	hb := protocol.New(protocol.Heartbeat)
	require.NoError(t, conn.Write(hb))
	resp, err = conn.Read()
	require.NoError(t, err)
	assert.Equal(t, hb.RequestID, resp.RequestID)
	assert.Equal(t, 1, n.registry.Len())
}

func TestAssignmentReachesWebsocketDriver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := startDriverNode(t, ctx)

	h := myws.NewHandler(ctx, mylogger.Nop(), n.sessions.Serve, testTimeout, testTimeout)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleDriverWebsocket))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/drivers", nil)
	require.NoError(t, err)
	conn := protocol.NewWSConn(ws, testTimeout, testTimeout)
	defer conn.Close()

	register(t, conn, "abebe")

	resp := callAPI(t, n.apiAddr, assignRide(7))
	require.Equal(t, protocol.DriverAssigned, resp.Type)

	push, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, protocol.RideAssignment, push.Type)
	assert.Equal(t, int64(7), push.Payload["rideId"])
}
