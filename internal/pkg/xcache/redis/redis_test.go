package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	lib_store "github.com/eko/gocache/lib/v4/store"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStruct struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func newTestStore(t *testing.T) (*RedisStore[testStruct], *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore[testStruct](client), mr
}

func TestRedisStoreSetAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	want := testStruct{Name: "test", Value: 123}
	require.NoError(t, store.Set(ctx, "my-key", want))

	got, err := store.Get(ctx, "my-key")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRedisStoreGetMissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(t.Context(), "absent")
	assert.Error(t, err)

	var notFound *lib_store.NotFound

	assert.ErrorAs(t, err, &notFound)
}

func TestRedisStoreGetWithTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := t.Context()

	want := testStruct{Name: "expiring", Value: 7}
	require.NoError(t, store.Set(ctx, "ttl-key", want, lib_store.WithExpiration(time.Minute)))

	got, ttl, err := store.GetWithTTL(ctx, "ttl-key")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Greater(t, ttl, time.Duration(0))

	mr.FastForward(2 * time.Minute)

	_, _, err = store.GetWithTTL(ctx, "ttl-key")
	assert.Error(t, err)
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.Set(ctx, "doomed", testStruct{Name: "x"}))
	require.NoError(t, store.Delete(ctx, "doomed"))

	_, err := store.Get(ctx, "doomed")
	assert.Error(t, err)
}

func TestRedisStoreSetWithTags(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.Set(ctx, "tagged", testStruct{Name: "t"}, lib_store.WithTags([]string{"tenant"})))

	members, err := mr.SMembers("gocache_tag_tenant")
	require.NoError(t, err)
	assert.Contains(t, members, "tagged")
}

func TestRedisStoreClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.Set(ctx, "a", testStruct{Name: "a"}))
	require.NoError(t, store.Set(ctx, "b", testStruct{Name: "b"}))
	require.NoError(t, store.Clear(ctx))

	_, err := store.Get(ctx, "a")
	assert.Error(t, err)
}
