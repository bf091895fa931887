package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	locker := NewKeyed()
	ctx := context.Background()

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "AAPL")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, unlock())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 0, locker.Len())
}

func TestKeyed_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewKeyed()
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "AAPL")
	require.NoError(t, err)
	defer unlockA()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx2, "MSFT")
	require.NoError(t, err)
	assert.NoError(t, unlockB())
}

func TestKeyed_ContextCancelWhileWaiting(t *testing.T) {
	locker := NewKeyed()

	unlock, err := locker.Lock(context.Background(), "AAPL")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "AAPL")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock())
	assert.ErrorIs(t, unlock(), ErrNotHeld)
	assert.Equal(t, 0, locker.Len())
}
