package services

import (
	"errors"
	"fmt"
	"strings"

	"ride-share/internal/database-service/core/myerrors"
	"ride-share/internal/protocol"

	"golang.org/x/crypto/bcrypt"
)

const (
	MaxUsernameLen = 50
	MaxPasswordLen = 72
)

// HashFactor is the bcrypt cost for stored passwords.
var HashFactor = 10

var errInvalidField = errors.New("invalid field")

func requireString(p protocol.Payload, key string) (string, error) {
	v := strings.TrimSpace(p.String(key))
	if v == "" {
		return "", fmt.Errorf("%s: %w", key, myerrors.ErrFieldIsEmpty)
	}
	return v, nil
}

func requireInt(p protocol.Payload, key string) (int64, error) {
	v, err := p.Int(key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidField, err)
	}
	return v, nil
}

func requireCoordinates(p protocol.Payload, latKey, lonKey string) (float64, float64, error) {
	lat, lon, err := p.Coordinates(latKey, lonKey)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", errInvalidField, err)
	}
	return lat, lon, nil
}

// optionalCoordinates reads a position when both keys are present.
func optionalCoordinates(p protocol.Payload, latKey, lonKey string) (float64, float64, error) {
	if p[latKey] == nil || p[lonKey] == nil {
		return 0, 0, nil
	}
	return requireCoordinates(p, latKey, lonKey)
}

func validateCredentials(username, password string) error {
	if len(username) > MaxUsernameLen {
		return fmt.Errorf("%w: username longer than %d", errInvalidField, MaxUsernameLen)
	}
	if len(password) > MaxPasswordLen {
		return fmt.Errorf("%w: password longer than %d", errInvalidField, MaxPasswordLen)
	}
	return nil
}

func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), HashFactor)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func checkPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}
