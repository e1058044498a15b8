package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return map[string]Storage{
		"local":  local,
		"memory": NewMemoryStorage(),
	}
}

func TestStorage_ReadWriteDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Read(ctx, "agents/a.yaml")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Write(ctx, "agents/a.yaml", []byte("one")))
			require.NoError(t, s.Write(ctx, "agents/a.yaml", []byte("two")))

			data, err := s.Read(ctx, "agents/a.yaml")
			require.NoError(t, err)
			assert.Equal(t, "two", string(data))

			ok, err := s.Exists(ctx, "agents/a.yaml")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, s.Delete(ctx, "agents/a.yaml"))
			assert.ErrorIs(t, s.Delete(ctx, "agents/a.yaml"), ErrNotFound)
		})
	}
}

func TestStorage_ListDirectChildrenOnly(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Write(ctx, "steps/t1/0002.yaml", []byte("b")))
			require.NoError(t, s.Write(ctx, "steps/t1/0001.yaml", []byte("a")))
			require.NoError(t, s.Write(ctx, "steps/t2/0001.yaml", []byte("c")))

			keys, err := s.List(ctx, "steps/t1")
			require.NoError(t, err)
			assert.Equal(t, []string{"steps/t1/0001.yaml", "steps/t1/0002.yaml"}, keys)

			keys, err = s.List(ctx, "steps")
			require.NoError(t, err)
			assert.Empty(t, keys)

			keys, err = s.List(ctx, "missing")
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	// Cleaned against "/", so ".." cannot climb above the root.
	require.NoError(t, s.Write(context.Background(), "../outside.yaml", []byte("x")))
	ok, err := s.Exists(context.Background(), "outside.yaml")
	require.NoError(t, err)
	assert.True(t, ok)
}
