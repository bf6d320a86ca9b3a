package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoundTrip checks decode(encode(m)) == m across every scalar kind.
func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{name: "empty payload", msg: New(Heartbeat)},
		{name: "string", msg: New(Login).With("username", "abebe").With("password", "p@ss \"quoted\"")},
		{name: "integer", msg: New(DBGetRide).With("rideId", 42).With("negative", int64(-7))},
		{name: "float", msg: New(UpdateLocation).With("latitude", 9.01).With("longitude", 38.0).With("tiny", 1e-9)},
		{name: "boolean", msg: New(UpdateAvailability).With("available", true).With("stateless", false)},
		{name: "null", msg: New(DBCreateRide).With("driverUsername", nil)},
		{name: "embedded array", msg: New(AvailableDriversList).With("drivers", `[{"username":"d1"}]`).With("count", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.NotContains(t, string(line), "\n")

			got, err := Decode(line)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

// TestEncodeShape checks the four top-level fields and that floats keep their kind.
func TestEncodeShape(t *testing.T) {
	m := Message{Type: RideRequest, Payload: Payload{"pickupLat": 9.0}, RequestID: "r-1", Timestamp: 1700000000000}

	line, err := Encode(m)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"RIDE_REQUEST","payload":{"pickupLat":9.0},"requestId":"r-1","timestamp":1700000000000}`, string(line))
}

// TestDecodeFailsClosed covers malformed input, which must produce a DecodeError.
func TestDecodeFailsClosed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"not json":       "hello",
		"truncated":      `{"type":"LOGIN","payload":{`,
		"unknown type":   `{"type":"TELEPORT","payload":{},"requestId":"x","timestamp":1}`,
		"nested object":  `{"type":"LOGIN","payload":{"user":{"name":"a"}},"requestId":"x","timestamp":1}`,
		"nested array":   `{"type":"LOGIN","payload":{"ids":[1,2]},"requestId":"x","timestamp":1}`,
		"extra field":    `{"type":"LOGIN","payload":{},"requestId":"x","timestamp":1,"extra":true}`,
		"trailing value": `{"type":"LOGIN","payload":{},"requestId":"x","timestamp":1} {}`,
	}

	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(line))
			require.Error(t, err)
			var decErr *DecodeError
			assert.ErrorAs(t, err, &decErr)
		})
	}
}

// TestEncodeRejectsNested keeps structured values out of the payload.
func TestEncodeRejectsNested(t *testing.T) {
	_, err := Encode(New(Login).With("user", map[string]any{"a": 1}))
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = Encode(Message{Type: "BOGUS", Payload: Payload{}})
	assert.Error(t, err)
}

// TestDecodeTolerantNumbers accepts integer-valued and string coordinates through the accessors.
func TestDecodeTolerantNumbers(t *testing.T) {
	m, err := Decode([]byte(`{"type":"UPDATE_LOCATION","payload":{"latitude":9,"longitude":"38.7","rideId":"12"},"requestId":"x","timestamp":1}`))
	require.NoError(t, err)

	lat, lon, err := m.Payload.Coordinates("latitude", "longitude")
	require.NoError(t, err)
	assert.Equal(t, 9.0, lat)
	assert.Equal(t, 38.7, lon)

	id, err := m.Payload.Int("rideId")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, _, err = Payload{"latitude": 91.0, "longitude": 0.0}.Coordinates("latitude", "longitude")
	assert.Error(t, err)
}

// TestStringsWithNewlinesStayOnOneLine ensures escaped newlines never split a frame.
func TestStringsWithNewlinesStayOnOneLine(t *testing.T) {
	line, err := Encode(New(RideRequest).With("pickupAddr", "Bole\nAddis Ababa"))
	require.NoError(t, err)
	assert.Equal(t, 1, len(strings.Split(string(line), "\n")))
}
