package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("allows up to the budget", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 5; i++ {
			res, err := store.Allow(ctx, "login:ip:1.2.3.4", 5, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed, "request %d should be allowed", i+1)
			assert.Equal(t, 4-i, res.Remaining)
		}
	})

	t.Run("denies over budget", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 3; i++ {
			_, err := store.Allow(ctx, "signup:ip:1.2.3.4", 3, time.Hour)
			require.NoError(t, err)
		}

		res, err := store.Allow(ctx, "signup:ip:1.2.3.4", 3, time.Hour)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.False(t, res.ResetAt.IsZero())
	})

	t.Run("keys are independent", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 3; i++ {
			_, err := store.Allow(ctx, "login:ip:10.0.0.1", 3, time.Minute)
			require.NoError(t, err)
		}

		res, err := store.Allow(ctx, "login:ip:10.0.0.2", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("window elapse frees budget", func(t *testing.T) {
		store := newStore(t)
		window := 50 * time.Millisecond

		for i := 0; i < 2; i++ {
			_, err := store.Allow(ctx, "api:user:7", 2, window)
			require.NoError(t, err)
		}
		res, err := store.Allow(ctx, "api:user:7", 2, window)
		require.NoError(t, err)
		require.False(t, res.Allowed)

		time.Sleep(window + 20*time.Millisecond)

		res, err = store.Allow(ctx, "api:user:7", 2, window)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("denied request does not extend the window", func(t *testing.T) {
		store := newStore(t)
		window := 80 * time.Millisecond

		res, err := store.Allow(ctx, "login:ip:9.9.9.9", 1, window)
		require.NoError(t, err)
		require.True(t, res.Allowed)

		// Hammering while denied must not push the reset further out.
		for i := 0; i < 3; i++ {
			res, err = store.Allow(ctx, "login:ip:9.9.9.9", 1, window)
			require.NoError(t, err)
			require.False(t, res.Allowed)
			time.Sleep(10 * time.Millisecond)
		}

		time.Sleep(window)

		res, err = store.Allow(ctx, "login:ip:9.9.9.9", 1, window)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestRedisStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewRedisStore(client)
	})
}
