// Package discovery finds other database nodes on the local network by UDP
// broadcast and hands their addresses to the peer service.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"ride-share/internal/database-service/core/ports/driver"
	"ride-share/internal/mylogger"
)

const Token = "DISRIBUTED_RIDE_SHARE_DISCOVERY"

const maxDatagram = 1024

type Discovery struct {
	mylog    mylogger.Logger
	peers    driver.IPeerService
	port     int
	interval time.Duration
	isLocal  func(ip net.IP) bool
}

func New(mylog mylogger.Logger, peers driver.IPeerService, port int, interval time.Duration) *Discovery {
	return &Discovery{
		mylog:    mylog,
		peers:    peers,
		port:     port,
		interval: interval,
		isLocal:  isLocalIP,
	}
}

// Run binds the discovery port and both broadcasts and listens on it until
// ctx is done.
func (d *Discovery) Run(ctx context.Context) error {
	pc, err := net.ListenPacket("udp4", ":"+strconv.Itoa(d.port))
	if err != nil {
		return fmt.Errorf("discovery listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: d.port}
	go d.Broadcast(ctx, pc, dst)

	d.mylog.Action("discovery_started").Info("discovery running", "port", d.port, "interval", d.interval.String())
	return d.Listen(ctx, pc)
}

// Broadcast sends the token to dst every interval, starting immediately.
func (d *Discovery) Broadcast(ctx context.Context, pc net.PacketConn, dst net.Addr) {
	log := d.mylog.Action("discovery_broadcast")
	t := time.NewTicker(d.interval)
	defer t.Stop()

	for {
		if _, err := pc.WriteTo([]byte(Token), dst); err != nil && ctx.Err() == nil {
			log.Debug("broadcast failed", "reason", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Listen reads datagrams until pc is closed.
func (d *Discovery) Listen(ctx context.Context, pc net.PacketConn) error {
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("discovery read: %w", err)
		}
		udp, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}
		payload := append([]byte(nil), buf[:n]...)
		go d.HandleDatagram(ctx, payload, udp.IP)
	}
}

// HandleDatagram reports whether the sender was new and has been added.
// Datagrams from this host or without the token are ignored.
func (d *Discovery) HandleDatagram(ctx context.Context, payload []byte, from net.IP) bool {
	if !bytes.Equal(bytes.TrimSpace(payload), []byte(Token)) {
		return false
	}
	if from == nil || d.isLocal(from) {
		return false
	}
	added := d.peers.AddPeer(ctx, from.String())
	if added {
		d.mylog.Action("peer_discovered").Info("new peer discovered", "ip", from.String())
	}
	return added
}

func isLocalIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok && n.IP.Equal(ip) {
			return true
		}
	}
	return false
}
