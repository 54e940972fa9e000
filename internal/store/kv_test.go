package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every KV implementation.
func backends(t *testing.T) map[string]KV {
	t.Helper()

	sqlite := createTestStore(t)

	bdg, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { bdg.Close() })

	return map[string]KV{
		"sqlite": sqlite,
		"badger": bdg,
		"memory": NewMemory(),
	}
}

func TestKV_GetMissingKey(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v, ok, err := kv.Get(context.Background(), "nope")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, "", v)
		})
	}
}

func TestKV_SetReplaces(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, kv.Set(ctx, "k", "one"))
			require.NoError(t, kv.Set(ctx, "k", "two"))

			v, ok, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "two", v)
		})
	}
}

func TestKV_SetMany(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, kv.Set(ctx, "a", "old"))
			require.NoError(t, kv.SetMany(ctx, map[string]string{
				"a": "1",
				"b": "2",
			}))

			for key, want := range map[string]string{"a": "1", "b": "2"} {
				v, ok, err := kv.Get(ctx, key)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, want, v)
			}

			require.NoError(t, kv.SetMany(ctx, nil))
		})
	}
}

func TestKV_EmptyValueIsPresent(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, kv.Set(ctx, "k", ""))
			_, ok, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	ctx := context.Background()

	b1, err := OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	require.NoError(t, b1.Set(ctx, "k", "v"))
	require.NoError(t, b1.Close())

	b2, err := OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	defer b2.Close()

	v, ok, err := b2.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}

func TestMemory_Writes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "a", "1"))
	require.NoError(t, m.SetMany(ctx, map[string]string{"b": "2", "c": "3"}))
	assert.Equal(t, 2, m.Writes())
}
