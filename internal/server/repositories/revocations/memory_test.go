package revocations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository()
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, repo.Revoke(ctx, "a", time.Minute))
	require.NoError(t, repo.Revoke(ctx, "b", 0))

	ok, _ := repo.IsRevoked(ctx, "a")
	assert.True(t, ok)
	ok, _ = repo.IsRevoked(ctx, "b")
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = repo.IsRevoked(ctx, "a")
	assert.False(t, ok, "revocation lapses with the credential")

	require.NoError(t, repo.Revoke(ctx, "c", time.Minute))
	assert.NotContains(t, repo.expires, "a", "expired entries are pruned")
}
