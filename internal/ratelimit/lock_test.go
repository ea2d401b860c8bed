package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerIsExclusiveUntilReleased(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "job", "someone-else"))
	assert.True(t, mr.Exists("job"))

	require.NoError(t, locker.Release(ctx, "job", token))
	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerExpires(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locker.TryLock(ctx, "job", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerRejectsInvalidInput(t *testing.T) {
	_, client := newRedis(t)
	locker := NewLocker(client)

	_, _, err := locker.TryLock(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidLock)
	_, _, err = locker.TryLock(context.Background(), "job", 0)
	assert.ErrorIs(t, err, ErrInvalidLock)

	var missing *Locker
	_, _, err = missing.TryLock(context.Background(), "job", time.Minute)
	assert.ErrorIs(t, err, ErrLockUnavailable)
}
