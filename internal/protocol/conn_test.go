package protocol

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"ride-share/internal/mylogger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEcho(t *testing.T, readTimeout time.Duration) *Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	l := NewListener(mylogger.Nop(), func(ctx context.Context, conn Conn) {
		for {
			msg, err := conn.Read()
			if err != nil {
				if IsDisconnect(err) {
					return
				}
				_ = conn.Write(ErrorMessage(err.Error()))
				continue
			}
			_ = conn.Write(msg.Reply(msg.Type).With("echo", msg.Payload.String("value")))
		}
	}, readTimeout, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go l.Serve(ctx, ln)
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	require.Eventually(t, func() bool { return l.Addr() != nil }, time.Second, 5*time.Millisecond)
	return l
}

// TestClientCall exercises a full request/response exchange through the listener.
func TestClientCall(t *testing.T) {
	l := startEcho(t, time.Second)
	client := NewClient(time.Second)

	req := New(Heartbeat).With("value", "ping")
	resp, err := client.Call(context.Background(), l.Addr().String(), req)
	require.NoError(t, err)
	assert.Equal(t, Heartbeat, resp.Type)
	assert.Equal(t, req.RequestID, resp.RequestID)
	assert.Equal(t, "ping", resp.Payload.String("echo"))
}

// TestMalformedLineKeepsConnection reports a protocol error and keeps serving the same connection.
func TestMalformedLineKeepsConnection(t *testing.T) {
	l := startEcho(t, time.Second)

	raw, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer raw.Close()
	conn := NewLineConn(raw, time.Second, time.Second)

	_, err = raw.Write([]byte("not a message\n"))
	require.NoError(t, err)
	resp, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, Error, resp.Type)

	require.NoError(t, conn.Write(New(Heartbeat).With("value", "still here")))
	resp, err = conn.Read()
	require.NoError(t, err)
	assert.Equal(t, "still here", resp.Payload.String("echo"))
}

// TestIdleReadDeadline closes an idle connection as a disconnect.
func TestIdleReadDeadline(t *testing.T) {
	l := startEcho(t, 50*time.Millisecond)

	raw, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	require.NoError(t, raw.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err = raw.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

// TestClientCallHonoursContext gives up when the server never answers.
func TestClientCallHonoursContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(time.Second)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = NewClient(5*time.Second).Call(ctx, ln.Addr().String(), New(Heartbeat))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestIsDisconnect classifies end-of-stream and timeouts.
func TestIsDisconnect(t *testing.T) {
	assert.True(t, IsDisconnect(io.EOF))
	assert.True(t, IsDisconnect(net.ErrClosed))
	assert.False(t, IsDisconnect(&DecodeError{Reason: "x"}))
	assert.False(t, IsDisconnect(nil))
}
