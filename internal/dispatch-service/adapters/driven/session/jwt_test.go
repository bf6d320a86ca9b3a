package session

import (
	"testing"
	"time"

	"ride-share/internal/dispatch-service/core/myerrors"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	j := NewJWT("s3cret", time.Hour)

	token, err := j.Issue("chaltu")
	require.NoError(t, err)

	username, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "chaltu", username)
}

func TestVerifyRejects(t *testing.T) {
	j := NewJWT("s3cret", time.Hour)

	t.Run("other secret", func(t *testing.T) {
		token, err := NewJWT("other", time.Hour).Issue("chaltu")
		require.NoError(t, err)
		_, err = j.Verify(token)
		assert.ErrorIs(t, err, myerrors.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewJWT("s3cret", time.Minute)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, err := old.Issue("chaltu")
		require.NoError(t, err)
		_, err = j.Verify(token)
		assert.ErrorIs(t, err, myerrors.ErrInvalidToken)
	})

	t.Run("driver role", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"username": "abebe",
			"role":     "DRIVER",
		}).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		_, err = j.Verify(token)
		assert.ErrorIs(t, err, myerrors.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := j.Verify("not-a-token")
		assert.ErrorIs(t, err, myerrors.ErrInvalidToken)
	})
}
