package cacheinfra

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-readmodel-cache/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contractStore interface {
	cache.TagStore
	cache.PrefixStore
}

// harnessFunc returns a fresh store and a function moving its clock forward.
type harnessFunc func(t *testing.T) (contractStore, func(time.Duration))

func runStoreContract(t *testing.T, newHarness harnessFunc) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		store, _ := newHarness(t)
		_, ok, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put then get", func(t *testing.T) {
		store, _ := newHarness(t)
		require.NoError(t, store.Put(ctx, "find:42", []byte("payload"), time.Hour))

		got, ok, err := store.Get(ctx, "find:42")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("payload"), got)
	})

	t.Run("put overwrites", func(t *testing.T) {
		store, _ := newHarness(t)
		require.NoError(t, store.Put(ctx, "k", []byte("a"), time.Hour))
		require.NoError(t, store.Put(ctx, "k", []byte("b"), time.Hour))

		got, _, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("b"), got)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		store, advance := newHarness(t)
		require.NoError(t, store.Put(ctx, "find:42", []byte("payload"), 3600*time.Second))

		advance(1000 * time.Second)
		_, ok, err := store.Get(ctx, "find:42")
		require.NoError(t, err)
		assert.True(t, ok, "entry should be readable before its ttl")

		advance(2700 * time.Second)
		_, ok, err = store.Get(ctx, "find:42")
		require.NoError(t, err)
		assert.False(t, ok, "entry should be gone after its ttl")
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		store, advance := newHarness(t)
		require.NoError(t, store.Put(ctx, "forever", []byte("x"), 0))

		advance(48 * time.Hour)
		_, ok, err := store.Get(ctx, "forever")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("add is exclusive", func(t *testing.T) {
		store, advance := newHarness(t)

		added, err := store.Add(ctx, "lock", []byte("a"), 300*time.Second)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = store.Add(ctx, "lock", []byte("b"), 300*time.Second)
		require.NoError(t, err)
		assert.False(t, added)

		got, _, err := store.Get(ctx, "lock")
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), got)

		advance(301 * time.Second)
		added, err = store.Add(ctx, "lock", []byte("c"), 300*time.Second)
		require.NoError(t, err)
		assert.True(t, added, "expired entries must not block add")
	})

	t.Run("forget", func(t *testing.T) {
		store, _ := newHarness(t)
		require.NoError(t, store.Put(ctx, "k", []byte("v"), time.Hour))
		require.NoError(t, store.Forget(ctx, "k"))
		require.NoError(t, store.Forget(ctx, "never-there"))

		_, ok, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("tag flush leaves disjoint entries", func(t *testing.T) {
		store, _ := newHarness(t)
		require.NoError(t, store.PutTagged(ctx, "campaign:7", []byte("c"), time.Hour, []string{"campaigns", "campaign:7"}))
		require.NoError(t, store.PutTagged(ctx, "org:9", []byte("o"), time.Hour, []string{"organization:9"}))

		require.NoError(t, store.FlushTags(ctx, "campaign:7"))

		_, ok, err := store.Get(ctx, "campaign:7")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = store.Get(ctx, "org:9")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, store.FlushTags(ctx, "unknown-tag"))
	})

	t.Run("retagged entry survives flush of its old tag", func(t *testing.T) {
		store, _ := newHarness(t)
		require.NoError(t, store.PutTagged(ctx, "k", []byte("old"), time.Hour, []string{"a"}))
		require.NoError(t, store.PutTagged(ctx, "k", []byte("new"), time.Hour, []string{"b"}))

		require.NoError(t, store.FlushTags(ctx, "a"))
		got, ok, err := store.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("new"), got)

		require.NoError(t, store.FlushTags(ctx, "b"))
		_, ok, err = store.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("untagged overwrite drops tags", func(t *testing.T) {
		store, _ := newHarness(t)
		require.NoError(t, store.PutTagged(ctx, "k", []byte("old"), time.Hour, []string{"a"}))
		require.NoError(t, store.Put(ctx, "k", []byte("new"), time.Hour))

		require.NoError(t, store.FlushTags(ctx, "a"))
		_, ok, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("tag flush clears other memberships", func(t *testing.T) {
		store, _ := newHarness(t)
		require.NoError(t, store.PutTagged(ctx, "k", []byte("v1"), time.Hour, []string{"a", "b"}))
		require.NoError(t, store.FlushTags(ctx, "a"))

		require.NoError(t, store.PutTagged(ctx, "k", []byte("v2"), time.Hour, []string{"c"}))
		require.NoError(t, store.FlushTags(ctx, "b"))

		got, ok, err := store.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("forget prefix", func(t *testing.T) {
		store, _ := newHarness(t)
		require.NoError(t, store.Put(ctx, "campaign:findAll:1", []byte("a"), time.Hour))
		require.NoError(t, store.Put(ctx, "campaign:findAll:2", []byte("b"), time.Hour))
		require.NoError(t, store.Put(ctx, "campaign:find:1", []byte("c"), time.Hour))

		n, err := store.ForgetPrefix(ctx, "campaign:findAll:")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, ok, err := store.Get(ctx, "campaign:find:1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("flush", func(t *testing.T) {
		store, _ := newHarness(t)
		require.NoError(t, store.PutTagged(ctx, "a", []byte("a"), time.Hour, []string{"t"}))
		require.NoError(t, store.Put(ctx, "b", []byte("b"), time.Hour))

		require.NoError(t, store.Flush(ctx))

		for _, key := range []string{"a", "b"} {
			_, ok, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok, key)
		}
	})
}
