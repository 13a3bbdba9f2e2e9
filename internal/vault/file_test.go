package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AlexZinkM/relay-wallet/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.json")

	store, err := NewFileStore(path, "evm:1")
	require.NoError(t, err)

	_, err = store.Get(ctx, "w1")
	assert.ErrorIs(t, err, ErrNoVaultEntry)

	entry := model.VaultEntry{Salt: "c2FsdA==", IV: "aXY=", CipherText: "Y3Q="}
	require.NoError(t, store.Put(ctx, "w1", entry))
	require.NoError(t, store.Put(ctx, "w2", entry))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, utf8BOM, data[:3])

	// A second store over the same file sees the entries
	reopened, err := NewFileStore(path, "evm:1")
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "w2")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	require.NoError(t, store.Delete(ctx, "w1"))
	_, err = store.Get(ctx, "w1")
	assert.ErrorIs(t, err, ErrNoVaultEntry)

	require.NoError(t, store.DeleteAll(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, store.DeleteAll(ctx))
}

func TestFileStoreWithoutBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	raw := `{"network":"evm:1","entries":{"w1":{"salt":"a","iv":"b","cipherText":"c"}}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0600))

	store, err := NewFileStore(path, "evm:1")
	require.NoError(t, err)
	got, err := store.Get(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "c", got.CipherText)
}

func TestFileStoreRejects(t *testing.T) {
	_, err := NewFileStore("", "evm:1")
	assert.Error(t, err)

	_, err = NewFileStore(filepath.Join(t.TempDir(), "vault.cwt"), "evm:1")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "vault.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"network":"evm:5","entries":{}}`), 0600))
	store, err := NewFileStore(path, "evm:1")
	require.NoError(t, err)
	_, err = store.Get(context.Background(), "w1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoVaultEntry)
}
