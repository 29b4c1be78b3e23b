package reservations

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, opts ...RedisLockerOption) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	opts = append([]RedisLockerOption{WithRetryInterval(5 * time.Millisecond)}, opts...)
	return NewRedisLocker(client, opts...), mr
}

func TestRedisLockerBlocksUntilRelease(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "court:cancha_1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKeyPrefix+"court:cancha_1"))

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Lock(ctx, "court:cancha_1")
		if err == nil {
			close(acquired)
			second()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock")
	}
}

func TestRedisLockerRespectsContext(t *testing.T) {
	locker, _ := newRedisLocker(t)
	release, err := locker.Lock(context.Background(), "court:cancha_2")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "court:cancha_2")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLockerExpiredLeaseIsNotReleasedByStaleHolder(t *testing.T) {
	locker, mr := newRedisLocker(t, WithLeaseTTL(time.Second))
	ctx := context.Background()
	key := lockKeyPrefix + "court:cancha_1"

	stale, err := locker.Lock(ctx, "court:cancha_1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists(key))

	fresh, err := locker.Lock(ctx, "court:cancha_1")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists(key), "stale release must not drop the new lease")

	fresh()
	assert.False(t, mr.Exists(key))
}

func TestMemoryLockerIsPerKey(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	a, err := locker.Lock(ctx, "court:cancha_1")
	require.NoError(t, err)
	b, err := locker.Lock(ctx, "court:cancha_2")
	require.NoError(t, err, "different courts do not contend")
	b()

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "court:cancha_1")
	assert.Error(t, err)
	a()
}

func TestRedisLockerRenewsLeaseWhileHeld(t *testing.T) {
	locker, mr := newRedisLocker(t, WithLeaseTTL(600*time.Millisecond))
	key := lockKeyPrefix + "court:cancha_1"

	release, err := locker.Lock(context.Background(), "court:cancha_1")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		mr.FastForward(500 * time.Millisecond)
		time.Sleep(250 * time.Millisecond)
		require.True(t, mr.Exists(key), "lease expired while held (round %d)", i)
	}

	release()
	assert.False(t, mr.Exists(key))

	again, err := locker.Lock(context.Background(), "court:cancha_1")
	require.NoError(t, err)
	again()
}
