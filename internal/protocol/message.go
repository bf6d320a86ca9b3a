package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope of every exchange between clients and services.
type Message struct {
	Type      MessageType
	Payload   Payload
	RequestID string
	Timestamp int64
}

// New creates a message with a fresh request id and the current time in milliseconds.
func New(t MessageType) Message {
	return Message{
		Type:      t,
		Payload:   Payload{},
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
	}
}

// With sets a payload value and returns the message for chaining.
func (m Message) With(key string, value any) Message {
	if m.Payload == nil {
		m.Payload = Payload{}
	}
	m.Payload.Set(key, value)
	return m
}

// Reply builds a response carrying the request id of m.
func (m Message) Reply(t MessageType) Message {
	r := New(t)
	r.RequestID = m.RequestID
	return r
}

// Clone copies the payload so the copy can be tagged without touching m.
func (m Message) Clone() Message {
	c := m
	c.Payload = make(Payload, len(m.Payload))
	for k, v := range m.Payload {
		c.Payload[k] = v
	}
	return c
}

// ErrorMessage is the standard typed error reply.
func ErrorMessage(text string) Message {
	return New(Error).With("error", text)
}

// Payload is a flat mapping of scalar values: string, int64, float64, bool or nil.
type Payload map[string]any

// Set normalizes integer and float widths so that equality survives a round trip.
func (p Payload) Set(key string, value any) {
	switch v := value.(type) {
	case int:
		p[key] = int64(v)
	case int32:
		p[key] = int64(v)
	case uint32:
		p[key] = int64(v)
	case float32:
		p[key] = float64(v)
	default:
		p[key] = value
	}
}

func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the value as text. Numbers and booleans are formatted.
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Float accepts numbers and numeric strings.
func (p Payload) Float(key string) (float64, error) {
	switch v := p[key].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("field %s: missing", key)
	default:
		return 0, fmt.Errorf("field %s: not a number", key)
	}
}

// Int accepts integers, integral floats and numeric strings.
func (p Payload) Int(key string) (int64, error) {
	switch v := p[key].(type) {
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("field %s: not an integer", key)
		}
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		return i, nil
	case nil:
		return 0, fmt.Errorf("field %s: missing", key)
	default:
		return 0, fmt.Errorf("field %s: not an integer", key)
	}
}

// Bool treats a missing key as false and accepts "true"/"false" strings.
func (p Payload) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Coordinates reads a latitude/longitude pair and checks its range.
func (p Payload) Coordinates(latKey, lonKey string) (float64, float64, error) {
	lat, err := p.Float(latKey)
	if err != nil {
		return 0, 0, err
	}
	lon, err := p.Float(lonKey)
	if err != nil {
		return 0, 0, err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("coordinates out of range: %v,%v", lat, lon)
	}
	return lat, lon, nil
}
