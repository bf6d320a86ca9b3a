package protocol

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Client performs short-lived request/response exchanges: dial, one line out,
// one line back, close.
type Client struct {
	Timeout time.Duration
}

func NewClient(timeout time.Duration) *Client {
	return &Client{Timeout: timeout}
}

// Call sends req to addr and waits for a single reply.
func (c *Client) Call(ctx context.Context, addr string, req Message) (Message, error) {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return Message{}, err
	}
	defer conn.Close()

	if err := conn.Write(req); err != nil {
		return Message{}, fmt.Errorf("call %s %s: %w", addr, req.Type, err)
	}

	type result struct {
		msg Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := conn.Read()
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return Message{}, fmt.Errorf("call %s %s: %w", addr, req.Type, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return Message{}, fmt.Errorf("call %s %s: %w", addr, req.Type, r.err)
		}
		return r.msg, nil
	}
}

// Send writes req and closes without waiting for a reply.
func (c *Client) Send(ctx context.Context, addr string, req Message) error {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Write(req); err != nil {
		return fmt.Errorf("send %s %s: %w", addr, req.Type, err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context, addr string) (*LineConn, error) {
	d := net.Dialer{Timeout: c.Timeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewLineConn(raw, c.Timeout, c.Timeout), nil
}
