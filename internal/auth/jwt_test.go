package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 2)
	uid := uuid.New()
	token, err := svc.Generate(uid, "a@example.com")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, uid, claims.UserID)
	require.Equal(t, "a@example.com", claims.Email)
}

func TestJWT_RejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("one", 1).Generate(uuid.New(), "a@example.com")
	require.NoError(t, err)
	_, err = NewJWTService("two", 1).Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_RejectsExpired(t *testing.T) {
	svc := NewJWTService("secret", 1)
	svc.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	token, err := svc.Generate(uuid.New(), "a@example.com")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_RejectsForeignIssuer(t *testing.T) {
	svc := NewJWTService("secret", 1)
	claims := Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_UserID(t *testing.T) {
	svc := NewJWTService("secret", 1)
	uid := uuid.New()
	token, err := svc.Generate(uid, "a@example.com")
	require.NoError(t, err)

	got, err := svc.UserID(token)
	require.NoError(t, err)
	require.Equal(t, uid, got)

	_, err = svc.UserID("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}
