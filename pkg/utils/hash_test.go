package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hashed, err := HashPassword("correct horse")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse", hashed)
	require.True(t, CheckPassword("correct horse", hashed))
	require.False(t, CheckPassword("wrong horse", hashed))
}

func TestHashPassword_TooShort(t *testing.T) {
	_, err := HashPassword("short")
	require.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "pastor@church.org", NormalizeEmail("  Pastor@Church.ORG "))
}
