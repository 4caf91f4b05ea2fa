package storage

import (
	"context"
	"testing"

	"github.com/ruteri/device-activation-backend/interfaces"
	"github.com/stretchr/testify/require"
)

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	require.True(t, backend.Available(ctx))

	_, err = backend.Fetch(ctx, "qualifier/default")
	require.ErrorIs(t, err, interfaces.ErrContentNotFound)

	require.NoError(t, backend.Store(ctx, "qualifier/default", []byte("s3cr3t")))
	data, err := backend.Fetch(ctx, "qualifier/default")
	require.NoError(t, err)
	require.Equal(t, []byte("s3cr3t"), data)

	for _, name := range []string{"", "/etc/passwd", "../outside", "a/../../b", "a//b"} {
		require.ErrorIs(t, backend.Store(ctx, name, []byte("x")), interfaces.ErrValidation, name)
	}
}

func TestSecretStoreFactory(t *testing.T) {
	factory := NewSecretStoreFactory(discardLogger())
	dir := t.TempDir()

	fileLoc, err := interfaces.NewStorageBackendLocation("file://" + dir)
	require.NoError(t, err)

	store, err := factory.SecretStoreFor(fileLoc)
	require.NoError(t, err)
	require.IsType(t, &FileBackend{}, store)

	vaultLoc, err := interfaces.NewStorageBackendLocation("vault://root-token@127.0.0.1:8200/secret/activation?tls=false")
	require.NoError(t, err)
	store, err = factory.SecretStoreFor(vaultLoc)
	require.NoError(t, err)
	require.Equal(t, "vault-secret-activation", store.Name())

	multi, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{fileLoc, vaultLoc})
	require.NoError(t, err)
	require.Equal(t, "multi-storage", multi.Name())

	_, err = interfaces.NewStorageBackendLocation("ipfs://localhost:5001")
	require.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}
