// Package enginetest holds the behavior every types.Engine implementation
// must share. Engine packages call Run from their own tests.
package enginetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

// Opener returns a fresh, empty engine. dir is a per-test directory that
// the opener may reuse to reopen the same data.
type Opener func(t *testing.T, dir string) types.Engine

// Run executes the shared engine tests.
func Run(t *testing.T, open Opener) {
	t.Run("missing key returns nil", func(t *testing.T) {
		e := open(t, t.TempDir())
		v, err := e.Get("nope")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("put then get", func(t *testing.T) {
		e := open(t, t.TempDir())
		require.NoError(t, e.PutMulti(map[string][]byte{"a": []byte(`"1"`), "b": []byte(`[2]`)}))

		v, err := e.Get("a")
		require.NoError(t, err)
		assert.Equal(t, `"1"`, string(v))

		got, err := e.GetMulti([]string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, `[2]`, string(got["b"]))
	})

	t.Run("put overwrites", func(t *testing.T) {
		e := open(t, t.TempDir())
		require.NoError(t, e.PutMulti(map[string][]byte{"a": []byte(`1`)}))
		require.NoError(t, e.PutMulti(map[string][]byte{"a": []byte(`2`)}))
		v, err := e.Get("a")
		require.NoError(t, err)
		assert.Equal(t, `2`, string(v))
	})

	t.Run("delete and keys", func(t *testing.T) {
		e := open(t, t.TempDir())
		require.NoError(t, e.PutMulti(map[string][]byte{"a": []byte(`1`), "b": []byte(`2`), "c": []byte(`3`)}))
		require.NoError(t, e.DeleteMulti([]string{"a", "missing"}))

		keys, err := e.Keys()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"b", "c"}, keys)
	})

	t.Run("clear removes everything", func(t *testing.T) {
		e := open(t, t.TempDir())
		require.NoError(t, e.PutMulti(map[string][]byte{"a": []byte(`1`), "b": []byte(`2`)}))
		require.NoError(t, e.Clear())

		keys, err := e.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)

		require.NoError(t, e.PutMulti(map[string][]byte{"c": []byte(`3`)}), "engine stays usable after clear")
	})

	t.Run("data survives reopen", func(t *testing.T) {
		dir := t.TempDir()
		e := open(t, dir)
		require.NoError(t, e.PutMulti(map[string][]byte{"k": []byte(`{"x":1}`)}))
		require.NoError(t, e.Close())

		e2 := open(t, dir)
		v, err := e2.Get("k")
		require.NoError(t, err)
		assert.JSONEq(t, `{"x":1}`, string(v))
	})

	t.Run("closed engine rejects calls", func(t *testing.T) {
		e := open(t, t.TempDir())
		require.NoError(t, e.Close())
		require.NoError(t, e.Close(), "close is idempotent")

		_, err := e.Get("a")
		assert.ErrorIs(t, err, types.ErrEngineClosed)
		assert.ErrorIs(t, e.PutMulti(map[string][]byte{"a": nil}), types.ErrEngineClosed)
	})
}
