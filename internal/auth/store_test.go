package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/dagent/internal/testutil"
)

func readAuthFile(t *testing.T, dir string) AuthData {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, "auth.json"))
	require.NoError(t, err)
	var data AuthData
	require.NoError(t, json.Unmarshal(raw, &data))
	return data
}

func TestNewStore(t *testing.T) {
	t.Run("creates data directory", func(t *testing.T) {
		dir := testutil.TempDir(t)
		subDir := filepath.Join(dir, "newdir")

		store, err := NewStore(subDir)
		require.NoError(t, err)
		require.NotNil(t, store)

		_, err = os.Stat(subDir)
		require.NoError(t, err)
	})

	t.Run("loads existing auth.json", func(t *testing.T) {
		dir := testutil.TempDir(t)

		authJSON := `{
			"version": 1,
			"access_token": "a-1",
			"refresh_token": "r-1",
			"remember": true
		}`
		err := os.WriteFile(filepath.Join(dir, "auth.json"), []byte(authJSON), 0600)
		require.NoError(t, err)

		store, err := NewStore(dir)
		require.NoError(t, err)

		access, refresh := store.Tokens()
		assert.Equal(t, "a-1", access)
		assert.Equal(t, "r-1", refresh)
		assert.True(t, store.Remember())
	})

	t.Run("handles missing auth.json", func(t *testing.T) {
		store, err := NewStore(testutil.TempDir(t))
		require.NoError(t, err)

		access, refresh := store.Tokens()
		assert.Empty(t, access)
		assert.Empty(t, refresh)
		assert.False(t, store.Remember())
	})

	t.Run("returns error for corrupt auth.json", func(t *testing.T) {
		dir := testutil.TempDir(t)
		err := os.WriteFile(filepath.Join(dir, "auth.json"), []byte("not valid json"), 0600)
		require.NoError(t, err)

		_, err = NewStore(dir)
		require.Error(t, err)
	})
}

func TestStore_SetTokens(t *testing.T) {
	t.Run("remembered tokens survive a reload", func(t *testing.T) {
		dir := testutil.TempDir(t)
		store, err := NewStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.SetRemember(true))
		require.NoError(t, store.SetTokens("access", "refresh"))

		reloaded, err := NewStore(dir)
		require.NoError(t, err)
		access, refresh := reloaded.Tokens()
		assert.Equal(t, "access", access)
		assert.Equal(t, "refresh", refresh)
	})

	t.Run("unremembered tokens stay in memory", func(t *testing.T) {
		dir := testutil.TempDir(t)
		store, err := NewStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.SetTokens("access", "refresh"))

		access, _ := store.Tokens()
		assert.Equal(t, "access", access)

		data := readAuthFile(t, dir)
		assert.Empty(t, data.AccessToken)
		assert.Empty(t, data.RefreshToken)

		reloaded, err := NewStore(dir)
		require.NoError(t, err)
		access, _ = reloaded.Tokens()
		assert.Empty(t, access)
	})

	t.Run("turning remember off scrubs the file", func(t *testing.T) {
		dir := testutil.TempDir(t)
		store, err := NewStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.SetRemember(true))
		require.NoError(t, store.SetTokens("access", "refresh"))
		require.NoError(t, store.SetRemember(false))

		assert.Empty(t, readAuthFile(t, dir).AccessToken)
	})

	t.Run("clear removes both tokens", func(t *testing.T) {
		dir := testutil.TempDir(t)
		store, err := NewStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.SetRemember(true))
		require.NoError(t, store.SetTokens("access", "refresh"))
		require.NoError(t, store.Clear())

		access, refresh := store.Tokens()
		assert.Empty(t, access)
		assert.Empty(t, refresh)
		assert.Empty(t, readAuthFile(t, dir).RefreshToken)
	})
}

func TestStore_FilePermissions(t *testing.T) {
	dir := testutil.TempDir(t)
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.SetServer("http://localhost:8081/api"))

	info, err := os.Stat(filepath.Join(dir, "auth.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.Equal(t, "http://localhost:8081/api", store.Server())

	_, err = os.Stat(filepath.Join(dir, "auth.json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store, err := NewStore(testutil.TempDir(t))
	require.NoError(t, err)
	require.NoError(t, store.SetRemember(true))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.SetTokens("a", "r")
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Tokens()
		}()
	}
	wg.Wait()

	access, refresh := store.Tokens()
	assert.Equal(t, "a", access)
	assert.Equal(t, "r", refresh)
}
