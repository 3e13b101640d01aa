package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBlacklist_RevokeAndExpire(t *testing.T) {
	m, client := newRedis(t)
	bl := NewBlacklist(client, "")
	ctx := context.Background()

	require.NoError(t, bl.Revoke(ctx, "access-token-1", 2*time.Second))
	ok, err := bl.IsRevoked(ctx, "access-token-1")
	require.NoError(t, err)
	require.True(t, ok)

	m.FastForward(3 * time.Second)
	ok, err = bl.IsRevoked(ctx, "access-token-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlacklist_NilIsDisabled(t *testing.T) {
	var bl *Blacklist
	require.NoError(t, bl.Revoke(context.Background(), "x", time.Second))
	ok, err := bl.IsRevoked(context.Background(), "x")
	require.NoError(t, err)
	require.False(t, ok)
}
