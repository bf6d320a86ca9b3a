package discovery

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"ride-share/internal/mylogger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeers struct {
	mu    sync.Mutex
	known map[string]bool
	calls []string
}

func (f *fakePeers) AddPeer(ctx context.Context, addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, addr)
	if f.known[addr] {
		return false
	}
	f.known[addr] = true
	return true
}

func (f *fakePeers) Bootstrap(ctx context.Context, peers []string) {}

func (f *fakePeers) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestDiscovery(peers *fakePeers) *Discovery {
	d := New(mylogger.Nop(), peers, 8888, 20*time.Millisecond)
	d.isLocal = func(ip net.IP) bool { return ip.Equal(net.IPv4(10, 0, 0, 1)) }
	return d
}

func TestHandleDatagram(t *testing.T) {
	peers := &fakePeers{known: map[string]bool{}}
	d := newTestDiscovery(peers)
	ctx := context.Background()
	foreign := net.IPv4(10, 0, 0, 7)

	assert.True(t, d.HandleDatagram(ctx, []byte(Token), foreign))
	assert.False(t, d.HandleDatagram(ctx, []byte(Token+"\n"), foreign), "same address twice is a no-op")
	assert.False(t, d.HandleDatagram(ctx, []byte(Token), net.IPv4(10, 0, 0, 1)), "own broadcasts are ignored")
	assert.False(t, d.HandleDatagram(ctx, []byte("HELLO"), net.IPv4(10, 0, 0, 9)))

	assert.Equal(t, []string{"10.0.0.7", "10.0.0.7"}, peers.Calls())
}

func TestBroadcastAndListen(t *testing.T) {
	peers := &fakePeers{known: map[string]bool{}}
	d := newTestDiscovery(peers)
	d.isLocal = func(net.IP) bool { return false }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	sender, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	go d.Listen(ctx, listener)
	go d.Broadcast(ctx, sender, listener.LocalAddr())

	assert.Eventually(t, func() bool {
		return len(peers.Calls()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	for _, addr := range peers.Calls() {
		assert.Equal(t, "127.0.0.1", addr)
	}
	peers.mu.Lock()
	assert.Len(t, peers.known, 1)
	peers.mu.Unlock()
}
