package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// MaxLineSize bounds a single message; snapshots are the largest messages exchanged.
const MaxLineSize = 16 << 20

// Conn carries messages in both directions. Writes are safe for concurrent use.
type Conn interface {
	Read() (Message, error)
	Write(Message) error
	RemoteAddr() string
	Close() error
}

// LineConn frames messages as newline-terminated JSON over a stream.
type LineConn struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	readTimeout  time.Duration
	writeTimeout time.Duration
	mu           sync.Mutex
}

func NewLineConn(conn net.Conn, readTimeout, writeTimeout time.Duration) *LineConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &LineConn{
		conn:         conn,
		scanner:      scanner,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Read blocks for the next line. A malformed line yields a *DecodeError and
// leaves the connection usable; io.EOF and deadline expiry end it.
func (c *LineConn) Read() (Message, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return Message{}, err
		}
	}
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return Decode(line)
	}
	if err := c.scanner.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}

// Write sends one message as one line in one write call.
func (c *LineConn) Write(m Message) error {
	line, err := Encode(m)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", m.Type, err)
	}
	return nil
}

func (c *LineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *LineConn) Close() error {
	return c.conn.Close()
}

// IsDisconnect reports errors that mean the peer is gone or idle past its deadline.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsTimeout reports deadline expiry.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}
