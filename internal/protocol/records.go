package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// EncodeRecords serializes structured values into the string that travels
// inside a single payload field.
func EncodeRecords(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode records: %w", err)
	}
	return string(b), nil
}

// DecodeRecords parses a payload-embedded JSON array or object into out,
// matching fields by their json tags and tolerating stringly typed numbers.
// Embedded structs are flattened the way encoding/json flattens them.
func DecodeRecords(s string, out any) error {
	if s == "" {
		return nil
	}
	var raw any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}
	return weakDecode(raw, out)
}

// DecodePayload maps payload fields onto a struct by json tag.
func DecodePayload(p Payload, out any) error {
	return weakDecode(map[string]any(p), out)
}

func weakDecode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Squash:           true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}
	return nil
}
