package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestMemory_BlocksAfterMaxFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMemory(clock, Settings{Window: time.Minute, MaxFails: 3, BlockFor: 5 * time.Minute})
	ctx := context.Background()
	ip := HashIP("10.0.0.1")

	for i := 0; i < 2; i++ {
		blocked, _, err := m.Failure(ctx, ScopeOpen, ip)
		require.NoError(t, err)
		require.False(t, blocked)
	}
	blocked, dur, err := m.Failure(ctx, ScopeOpen, ip)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 5*time.Minute, dur)

	ok, retry, err := m.Allow(ctx, ScopeOpen, ip)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 5*time.Minute, retry)

	ok, _, _ = m.Allow(ctx, ScopeLogin, ip)
	require.True(t, ok, "scopes are independent")
	ok, _, _ = m.Allow(ctx, ScopeOpen, HashIP("10.0.0.2"))
	require.True(t, ok, "clients are independent")

	clock.Advance(5*time.Minute + time.Second)
	ok, retry, _ = m.Allow(ctx, ScopeOpen, ip)
	require.True(t, ok)
	require.Zero(t, retry)
}

func TestMemory_WindowResetsCount(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMemory(clock, Settings{Window: time.Minute, MaxFails: 2, BlockFor: time.Minute})
	ctx := context.Background()
	ip := HashIP("10.0.0.1")

	blocked, _, _ := m.Failure(ctx, ScopeOpen, ip)
	require.False(t, blocked)
	clock.Advance(2 * time.Minute)
	blocked, _, _ = m.Failure(ctx, ScopeOpen, ip)
	require.False(t, blocked, "a failure outside the window starts a new count")
	blocked, _, _ = m.Failure(ctx, ScopeOpen, ip)
	require.True(t, blocked)
}

func TestMemory_SuccessClears(t *testing.T) {
	m := NewMemory(nil, Settings{MaxFails: 2})
	ctx := context.Background()
	ip := HashIP("10.0.0.1")

	_, _, _ = m.Failure(ctx, ScopeLogin, ip)
	require.NoError(t, m.Success(ctx, ScopeLogin, ip))
	blocked, _, _ := m.Failure(ctx, ScopeLogin, ip)
	require.False(t, blocked)
}
