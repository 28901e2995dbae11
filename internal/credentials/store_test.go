package credentials

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, store.Save(ctx, Pair{Access: "a1", Refresh: "r1"}))
	pair, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, Pair{Access: "a1", Refresh: "r1"}, pair)

	require.NoError(t, store.SaveAccess(ctx, "a2"))
	pair, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "a2", pair.Access)
	require.Equal(t, "r1", pair.Refresh, "SaveAccess must keep the refresh credential")

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestMemoryStoreSaveAccessWithoutLogin(t *testing.T) {
	store := NewMemoryStore()
	require.ErrorIs(t, store.SaveAccess(context.Background(), "a1"), ErrNoCredentials)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "creds.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, Pair{Access: "a1", Refresh: "r1"}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	pair, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, Pair{Access: "a1", Refresh: "r1"}, pair)
}

func TestSQLiteStoreSaveAccessKeepsRefresh(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, Pair{Access: "a1", Refresh: "r1"}))
	require.NoError(t, store.SaveAccess(ctx, "a2"))

	pair, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, Pair{Access: "a2", Refresh: "r1"}, pair)
}

func TestSQLiteStoreClearAndSaveAccessEmpty(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNoCredentials)
	require.ErrorIs(t, store.SaveAccess(ctx, "a1"), ErrNoCredentials)

	require.NoError(t, store.Save(ctx, Pair{Access: "a1", Refresh: "r1"}))
	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNoCredentials)
}
