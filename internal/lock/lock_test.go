package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Agentica/internal/errors"
)

func TestMemorySerialisesSameKey(t *testing.T) {
	locker := NewMemory()

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := locker.Acquire(context.Background(), "room-1", time.Minute)
			if !assert.NoError(t, err) {
				return
			}
			n := active.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			assert.NoError(t, lease.Release(context.Background()))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxSeen.Load())
	assert.Empty(t, locker.slots)
}

func TestMemoryDifferentKeysDoNotBlock(t *testing.T) {
	locker := NewMemory()
	a, err := locker.Acquire(context.Background(), "room-a", time.Minute)
	require.NoError(t, err)
	defer func() { _ = a.Release(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	b, err := locker.Acquire(ctx, "room-b", time.Minute)
	require.NoError(t, err)
	require.NoError(t, b.Release(context.Background()))
}

func TestMemoryAcquireHonoursContext(t *testing.T) {
	locker := NewMemory()
	lease, err := locker.Acquire(context.Background(), "room-1", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "room-1", time.Minute)
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, CodeLockUnavailable))

	require.NoError(t, lease.Release(context.Background()))
	require.NoError(t, lease.Release(context.Background()))
	assert.Empty(t, locker.slots)
}

func TestNoopNeverBlocks(t *testing.T) {
	var locker Locker = Noop{}
	for i := 0; i < 3; i++ {
		lease, err := locker.Acquire(context.Background(), "room", time.Second)
		require.NoError(t, err)
		require.NoError(t, lease.Release(context.Background()))
	}
}
