package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DecodeError reports a line that is not a valid message.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode message: %s: %v", e.Reason, e.Err)
	}
	return "decode message: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

var ErrUnsupportedValue = errors.New("payload value must be a string, number, boolean or null")

type envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"requestId"`
	Timestamp int64           `json:"timestamp"`
}

// Encode renders m as one line of JSON, without the trailing newline.
func Encode(m Message) ([]byte, error) {
	if !m.Type.Valid() {
		return nil, fmt.Errorf("encode message: unknown type %q", m.Type)
	}
	payload, err := encodePayload(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", m.Type, err)
	}
	return json.Marshal(envelope{
		Type:      string(m.Type),
		Payload:   payload,
		RequestID: m.RequestID,
		Timestamp: m.Timestamp,
	})
}

// Decode parses one line. It never panics and rejects unknown types.
func Decode(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Message{}, &DecodeError{Reason: "empty line"}
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return Message{}, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	if dec.More() {
		return Message{}, &DecodeError{Reason: "trailing data after envelope"}
	}

	t, err := ParseMessageType(env.Type)
	if err != nil {
		return Message{}, &DecodeError{Reason: "bad type", Err: err}
	}

	payload, err := decodePayload(env.Payload)
	if err != nil {
		return Message{}, &DecodeError{Reason: "bad payload", Err: err}
	}

	return Message{
		Type:      t,
		Payload:   payload,
		RequestID: env.RequestID,
		Timestamp: env.Timestamp,
	}, nil
}

// encodePayload writes keys in sorted order. Floats always carry a decimal
// point or exponent so that they decode back as floats.
func encodePayload(p Payload) (json.RawMessage, error) {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		switch v := p[k].(type) {
		case nil:
			buf.WriteString("null")
		case string:
			vb, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		case bool:
			buf.WriteString(strconv.FormatBool(v))
		case int:
			buf.WriteString(strconv.FormatInt(int64(v), 10))
		case int64:
			buf.WriteString(strconv.FormatInt(v, 10))
		case float64:
			s, err := formatFloat(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			buf.WriteString(s)
		default:
			return nil, fmt.Errorf("field %s: %w", k, ErrUnsupportedValue)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite float %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}

func decodePayload(raw json.RawMessage) (Payload, error) {
	p := Payload{}
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}

	for k, v := range fields {
		switch val := v.(type) {
		case nil, string, bool:
			p[k] = val
		case json.Number:
			n, err := parseNumber(val)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			p[k] = n
		default:
			return nil, fmt.Errorf("field %s: %w", k, ErrUnsupportedValue)
		}
	}
	return p, nil
}

func parseNumber(n json.Number) (any, error) {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		return n.Float64()
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	// integers beyond int64 degrade to float
	return n.Float64()
}
