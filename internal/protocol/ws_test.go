package protocol

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWSConnExchange sends one envelope per text frame in both directions.
func TestWSConnExchange(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWSConn(ws, time.Second, time.Second)
		defer conn.Close()
		msg, err := conn.Read()
		if err != nil {
			return
		}
		_ = conn.Write(msg.Reply(LocationUpdated).With("username", msg.Payload.String("username")))
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	client := NewWSConn(ws, time.Second, time.Second)
	defer client.Close()

	req := New(UpdateLocation).With("username", "d1").With("latitude", 9.0).With("longitude", 38.7)
	require.NoError(t, client.Write(req))

	resp, err := client.Read()
	require.NoError(t, err)
	assert.Equal(t, LocationUpdated, resp.Type)
	assert.Equal(t, req.RequestID, resp.RequestID)
	assert.Equal(t, "d1", resp.Payload.String("username"))
}
