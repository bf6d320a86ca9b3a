package protocol

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"ride-share/internal/mylogger"
)

// Handler serves one accepted connection until it returns.
type Handler func(ctx context.Context, conn Conn)

// Listener runs one worker per accepted TCP connection.
type Listener struct {
	mylog        mylogger.Logger
	handler      Handler
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewListener(mylog mylogger.Logger, handler Handler, readTimeout, writeTimeout time.Duration) *Listener {
	return &Listener{
		mylog:        mylog,
		handler:      handler,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		conns:        make(map[net.Conn]struct{}),
	}
}

// Serve accepts until ln is closed or ctx is done.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}

		l.mu.Lock()
		l.conns[raw] = struct{}{}
		l.mu.Unlock()

		l.wg.Add(1)
		go l.serveConn(ctx, raw)
	}
}

func (l *Listener) serveConn(ctx context.Context, raw net.Conn) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.conns, raw)
		l.mu.Unlock()
		raw.Close()
	}()
	defer func() {
		if r := recover(); r != nil {
			l.mylog.Action("connection_panic").Warn("connection worker recovered", "remote", raw.RemoteAddr().String(), "panic", r)
		}
	}()

	l.handler(ctx, NewLineConn(raw, l.readTimeout, l.writeTimeout))
}

// Addr is the bound address once Serve has started.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Close stops accepting, drops open connections and waits for their workers.
func (l *Listener) Close() error {
	l.mu.Lock()
	var err error
	if l.ln != nil {
		err = l.ln.Close()
	}
	for c := range l.conns {
		c.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
