package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamwright/eventfold/ports/kv"
)

func TestKV(t *testing.T) {
	type fooBar struct {
		Fruit string
		Count int
	}
	connectNats := NewTestContainer(t)
	store, err := NewKvStore(KvConfig{
		Bucket:  "fruits",
		Connect: connectNats,
	})
	require.NoError(t, err)

	require.NoError(t, kv.Put(t.Context(), store, "apple", fooBar{Fruit: "apple", Count: 10}, kv.PutOptions{}))

	v, err := kv.Get[fooBar](t.Context(), store, "apple")
	require.NoError(t, err)
	require.Equal(t, fooBar{Fruit: "apple", Count: 10}, v)

	t.Run("missing key", func(t *testing.T) {
		_, err := kv.Get[fooBar](t.Context(), store, "banana")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(t.Context(), "apple"))
		_, err := kv.Get[fooBar](t.Context(), store, "apple")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("ttl", func(t *testing.T) {
		require.NoError(t, kv.Put(t.Context(), store, "pear", fooBar{Fruit: "pear"}, kv.PutOptions{TTL: 50 * time.Millisecond}))
		time.Sleep(100 * time.Millisecond)
		_, err := kv.Get[fooBar](t.Context(), store, "pear")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("keys with separators", func(t *testing.T) {
		require.NoError(t, kv.Put(t.Context(), store, "snapshot/account/a1", 42, kv.PutOptions{}))
		n, err := kv.Get[int](t.Context(), store, "snapshot/account/a1")
		require.NoError(t, err)
		require.Equal(t, 42, n)
	})
}
