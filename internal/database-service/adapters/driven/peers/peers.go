// Package peers replicates mutations to other database nodes over the
// line-delimited TCP protocol.
package peers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ride-share/internal/database-service/core/domain/model"
	"ride-share/internal/database-service/core/ports/driven"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

// Set is the process-wide list of known peers. It only grows.
type Set struct {
	mu    sync.RWMutex
	addrs map[string]struct{}
}

var _ driven.IPeerSet = (*Set)(nil)

func NewSet() *Set {
	return &Set{addrs: make(map[string]struct{})}
}

func (s *Set) Add(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.addrs[addr]; ok {
		return false
	}
	s.addrs[addr] = struct{}{}
	return true
}

func (s *Set) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.addrs))
	for a := range s.addrs {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Publisher sends each mutation to every peer on its own goroutine. Failures
// are logged and dropped; there is no retry queue.
type Publisher struct {
	mylog   mylogger.Logger
	peers   driven.IPeerSet
	client  *protocol.Client
	timeout time.Duration
	wg      sync.WaitGroup
}

var _ driven.IPublisher = (*Publisher)(nil)

func NewPublisher(mylog mylogger.Logger, peers driven.IPeerSet, timeout time.Duration) *Publisher {
	return &Publisher{
		mylog:   mylog,
		peers:   peers,
		client:  protocol.NewClient(timeout),
		timeout: timeout,
	}
}

// Publish does not wait for delivery. The request context is not used for the
// sends because the caller is already answering its client.
func (p *Publisher) Publish(_ context.Context, mutation protocol.Message) {
	for _, addr := range p.peers.List() {
		p.wg.Add(1)
		go func(addr string) {
			defer p.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			defer cancel()
			if err := p.client.Send(ctx, addr, mutation); err != nil {
				p.mylog.Action("replicate").Warn("peer unreachable", "peer", addr, "type", mutation.Type, "reason", err.Error())
			}
		}(addr)
	}
}

// Wait blocks until in-flight sends are finished.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

// Fetcher pulls a peer's passenger and driver tables with SYNC_REQUEST.
type Fetcher struct {
	client *protocol.Client
}

var _ driven.ISnapshotFetcher = (*Fetcher)(nil)

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: protocol.NewClient(timeout)}
}

func (f *Fetcher) FetchSnapshot(ctx context.Context, addr string) (model.Snapshot, error) {
	resp, err := f.client.Call(ctx, addr, protocol.New(protocol.SyncRequest))
	if err != nil {
		return model.Snapshot{}, err
	}
	if resp.Type != protocol.SyncDataResponse || !resp.Payload.Bool("success") {
		return model.Snapshot{}, fmt.Errorf("sync from %s: unexpected reply %s %s", addr, resp.Type, resp.Payload.String("error"))
	}

	var snap model.Snapshot
	if err := protocol.DecodeRecords(resp.Payload.String("passengers"), &snap.Passengers); err != nil {
		return model.Snapshot{}, fmt.Errorf("sync from %s: passengers: %w", addr, err)
	}
	if err := protocol.DecodeRecords(resp.Payload.String("drivers"), &snap.Drivers); err != nil {
		return model.Snapshot{}, fmt.Errorf("sync from %s: drivers: %w", addr, err)
	}
	return snap, nil
}
