package payload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
)

func TestLocalStore_PutRead(t *testing.T) {
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("hello"), ".PNG")
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592.png", ref)

	again, err := store.Put(ctx, []byte("hello"), ".png")
	require.NoError(t, err)
	assert.Equal(t, ref, again, "same content maps to the same reference")

	data, err := store.Read(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLocalStore_ReadErrors(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Read(ctx, "missing.png")
	assert.ErrorIs(t, err, broker.ErrPayloadNotFound)

	for _, ref := range []string{"", "../etc/passwd", "/etc/passwd"} {
		_, err = store.Read(ctx, ref)
		assert.ErrorIs(t, err, broker.ErrInvalidPayload, ref)
	}
}
