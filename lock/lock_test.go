package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/labor-ledger/lock"
)

func TestKeyed_SameKeySerializes(t *testing.T) {
	// GIVEN: 20 goroutines competing for the same key
	// WHEN: Each holds the lock while bumping a shared counter
	// THEN: At most one is ever inside the critical section

	k := lock.NewKeyed()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := k.Obtain(ctx, "time-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, l.Release(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestKeyed_DifferentKeysDoNotContend(t *testing.T) {
	k := lock.NewKeyed()
	ctx := context.Background()

	a, err := k.Obtain(ctx, "time-a")
	require.NoError(t, err)
	defer a.Release(ctx)

	ctx2, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	b, err := k.Obtain(ctx2, "time-b")
	require.NoError(t, err, "unrelated key must not block")
	require.NoError(t, b.Release(ctx))
}

func TestKeyed_ContextTimeout(t *testing.T) {
	// GIVEN: A held lock
	// WHEN: A second caller waits with a short deadline
	// THEN: It gets ErrNotObtained instead of blocking forever

	k := lock.NewKeyed()
	ctx := context.Background()

	held, err := k.Obtain(ctx, "time-1")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = k.Obtain(short, "time-1")
	assert.ErrorIs(t, err, lock.ErrNotObtained)

	require.NoError(t, held.Release(ctx))

	again, err := k.Obtain(ctx, "time-1")
	require.NoError(t, err, "lock must be reusable after release")
	require.NoError(t, again.Release(ctx))
}

func TestKeyed_ReleaseIsIdempotent(t *testing.T) {
	k := lock.NewKeyed()
	ctx := context.Background()

	l, err := k.Obtain(ctx, "time-1")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))
	require.NoError(t, l.Release(ctx))

	l2, err := k.Obtain(ctx, "time-1")
	require.NoError(t, err)
	require.NoError(t, l2.Release(ctx))
}
