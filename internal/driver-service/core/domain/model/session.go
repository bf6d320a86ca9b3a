package model

import "ride-share/internal/protocol"

// Session is the state of one driver connection.
type Session struct {
	Conn     protocol.Conn
	Kind     ConnKind
	Username string
}

func NewSession(conn protocol.Conn, kind ConnKind) *Session {
	return &Session{Conn: conn, Kind: kind}
}
