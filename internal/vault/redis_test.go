package vault

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/AlexZinkM/relay-wallet/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return server, NewRedisStore(client)
}

func TestRedisStoreGetMissing(t *testing.T) {
	_, store := newMiniRedisStore(t)

	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNoVaultEntry)
}

func TestRedisStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	server, store := newMiniRedisStore(t)
	entry := model.VaultEntry{Salt: "a", IV: "b", CipherText: "c"}

	require.NoError(t, store.Put(ctx, "w1", entry))
	assert.True(t, server.Exists("vault:entry:w1"))
	assert.Zero(t, server.TTL("vault:entry:w1"))

	got, err := store.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	rotated := model.VaultEntry{Salt: "d", IV: "e", CipherText: "f"}
	require.NoError(t, store.Put(ctx, "w1", rotated))
	got, err = store.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, rotated, got)

	require.NoError(t, store.Delete(ctx, "w1"))
	assert.False(t, server.Exists("vault:entry:w1"))
	_, err = store.Get(ctx, "w1")
	assert.ErrorIs(t, err, ErrNoVaultEntry)

	// deleting a missing entry is not an error
	assert.NoError(t, store.Delete(ctx, "w1"))
}

func TestRedisStoreDeleteAll(t *testing.T) {
	ctx := context.Background()
	server, store := newMiniRedisStore(t)
	entry := model.VaultEntry{Salt: "a", IV: "b", CipherText: "c"}

	// more keys than one SCAN page
	const wallets = 250
	for i := 0; i < wallets; i++ {
		require.NoError(t, store.Put(ctx, fmt.Sprintf("w%d", i), entry))
	}
	require.NoError(t, server.Set("session:other", "keep"))

	require.NoError(t, store.DeleteAll(ctx))

	for i := 0; i < wallets; i++ {
		_, err := store.Get(ctx, fmt.Sprintf("w%d", i))
		require.ErrorIs(t, err, ErrNoVaultEntry)
	}
	assert.Equal(t, []string{"session:other"}, server.Keys())

	// empty store
	assert.NoError(t, store.DeleteAll(ctx))
}

func TestRedisStoreErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupt entry", func(t *testing.T) {
		server, store := newMiniRedisStore(t)
		require.NoError(t, server.Set("vault:entry:w1", "{not json"))

		_, err := store.Get(ctx, "w1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoVaultEntry)
		assert.Contains(t, err.Error(), "failed to unmarshal vault entry")
	})

	t.Run("server error", func(t *testing.T) {
		server, store := newMiniRedisStore(t)
		require.NoError(t, store.client.Ping(ctx).Err())
		server.SetError("ERR backend unavailable")

		_, err := store.Get(ctx, "w1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoVaultEntry)
		assert.Contains(t, err.Error(), "failed to get vault entry")

		err = store.Put(ctx, "w1", model.VaultEntry{Salt: "a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save vault entry")

		err = store.DeleteAll(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to scan vault entries")
	})
}

// Runs against a real server when REDIS_TEST_ADDR is set
func TestRedisStoreLive(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	store := NewRedisStore(client)
	require.NoError(t, store.DeleteAll(ctx))

	_, err := store.Get(ctx, "w1")
	assert.ErrorIs(t, err, ErrNoVaultEntry)

	entry := model.VaultEntry{Salt: "a", IV: "b", CipherText: "c"}
	require.NoError(t, store.Put(ctx, "w1", entry))
	got, err := store.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	require.NoError(t, store.DeleteAll(ctx))
	_, err = store.Get(ctx, "w1")
	assert.ErrorIs(t, err, ErrNoVaultEntry)
}
