package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateResourceFile(t *testing.T) {
	ct, ok := ValidateResourceFile("Setlist.PDF")
	require.True(t, ok)
	require.Equal(t, "application/pdf", ct)

	_, ok = ValidateResourceFile("payload.exe")
	require.False(t, ok)
}

func TestResourceKey(t *testing.T) {
	key := ResourceKey("tenant-1", "../../etc/sermon.mp3")
	require.True(t, strings.HasPrefix(key, "resources/tenant-1/"))
	require.True(t, strings.HasSuffix(key, "-sermon.mp3"))
	require.True(t, KeyBelongsToTenant(key, "tenant-1"))
	require.False(t, KeyBelongsToTenant(key, "tenant-2"))
	require.False(t, KeyBelongsToTenant("resources/tenant-10/x", "tenant-1"))
}
