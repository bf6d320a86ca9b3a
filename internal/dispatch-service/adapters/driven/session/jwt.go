package session

import (
	"fmt"
	"time"

	"ride-share/internal/dispatch-service/core/myerrors"

	"github.com/golang-jwt/jwt"
)

const role = "PASSENGER"

// JWT issues HS256 passenger tokens that a stateless client can present
// instead of its username.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) *JWT {
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (j *JWT) Issue(username string) (string, error) {
	now := j.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"role":     role,
		"iat":      now.Unix(),
		"exp":      now.Add(j.ttl).Unix(),
	})
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify returns the username carried by a valid, unexpired token.
func (j *JWT) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", myerrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", myerrors.ErrInvalidToken
	}
	if r, _ := claims["role"].(string); r != role {
		return "", fmt.Errorf("%w: wrong role", myerrors.ErrInvalidToken)
	}
	username, _ := claims["username"].(string)
	if username == "" {
		return "", fmt.Errorf("%w: username is required", myerrors.ErrInvalidToken)
	}
	return username, nil
}
