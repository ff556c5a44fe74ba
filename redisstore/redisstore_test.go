// SPDX-License-Identifier: GPL-3.0-or-later

package redisstore

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bassosimone/ipquery"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, prefix string) (*miniredis.Miniredis, *Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(client, prefix)
}

func TestStoreGetMissing(t *testing.T) {
	_, store := newTestStore(t, "")

	value, found, err := store.Get(context.Background(), "missing")

	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestStoreSetGetDelete(t *testing.T) {
	mr, store := newTestStore(t, "")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists(DefaultPrefix+"k"))

	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, store.Delete(ctx, "k"))
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	// deleting again is fine
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestStoreExpiry(t *testing.T) {
	mr, store := newTestStore(t, "test:")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 10*time.Second))
	assert.Equal(t, 10*time.Second, mr.TTL("test:k"))

	mr.FastForward(11 * time.Second)

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreNoExpiry(t *testing.T) {
	mr, store := newTestStore(t, "test:")

	require.NoError(t, store.Set(context.Background(), "k", []byte("v"), -1))

	assert.Equal(t, time.Duration(0), mr.TTL("test:k"))
}

func TestStoreServerError(t *testing.T) {
	mr, store := newTestStore(t, "")
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	mr.SetError("LOADING server is loading")

	_, _, err := store.Get(ctx, "k")
	assert.ErrorContains(t, err, "redisstore: get")
	assert.ErrorContains(t, store.Set(ctx, "k", nil, time.Second), "redisstore: set")
	assert.ErrorContains(t, store.Delete(ctx, "k"), "redisstore: delete")
}

func TestStoreAsClientCache(t *testing.T) {
	_, store := newTestStore(t, "")
	var calls int
	txp := ipquery.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Header:     http.Header{"Cache-Control": {"max-age=60"}},
			Body:       io.NopCloser(strings.NewReader(`{"ip":"1.1.1.1"}`)),
		}, nil
	})
	client, err := ipquery.NewClientWithTransport(ipquery.NewConfig(), txp, ipquery.DefaultSLogger())
	require.NoError(t, err)
	client.AddCache(store, ipquery.CacheConfig{})

	for range 3 {
		body, err := client.Lookup(context.Background(), []string{"1.1.1.1"}, "json")
		require.NoError(t, err)
		assert.Equal(t, `{"ip":"1.1.1.1"}`, body)
	}
	assert.Equal(t, 1, calls)
}
