package protocol

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn carries one message per websocket text frame.
type WSConn struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	mu           sync.Mutex
}

func NewWSConn(conn *websocket.Conn, readTimeout, writeTimeout time.Duration) *WSConn {
	conn.SetReadLimit(MaxLineSize)
	return &WSConn{
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (c *WSConn) Read() (Message, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return Message{}, err
		}
	}
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Message{}, io.EOF
			}
			return Message{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return Decode(data)
	}
}

func (c *WSConn) Write(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", m.Type, err)
	}
	return nil
}

func (c *WSConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *WSConn) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
