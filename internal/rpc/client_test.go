package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/logging"
)

func TestClient_Head(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chains/main/blocks/head", r.URL.Path)
		w.Write([]byte(`{"hash":"BLockHash","header":{"level":99,"predecessor":"BLockPred","timestamp":"2024-01-01T00:00:00Z"},"operations":[[],[],[],[]]}`))
	}))
	defer srv.Close()

	c, err := New(logging.Nop(), Config{NodeURLs: []string{srv.URL}})
	require.NoError(t, err)

	meta, err := c.Head(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(99), meta.Level)
	require.Equal(t, "BLockHash", meta.Hash)
	require.NotNil(t, meta.BakedAt)
}

func TestClient_RetriesOn429ThenFallsOverToSecondNode(t *testing.T) {
	var hits int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer flaky.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"int":"5"}`))
	}))
	defer good.Close()

	c, err := New(logging.Nop(), Config{NodeURLs: []string{flaky.URL, good.URL}, CommRetries: 1})
	require.NoError(t, err)

	body, err := c.load(context.Background(), "blocks/head/context/contracts/KT1x/storage")
	require.NoError(t, err)
	require.JSONEq(t, `{"int":"5"}`, string(body))
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_PermanentErrorDoesNotRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(logging.Nop(), Config{NodeURLs: []string{srv.URL}, CommRetries: 3})
	require.NoError(t, err)

	_, err = c.load(context.Background(), "blocks/head")
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_BigmapValue_MissingReturnsNilNoError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(logging.Nop(), Config{NodeURLs: []string{srv.URL}})
	require.NoError(t, err)

	body, err := c.BigmapValue(context.Background(), 10, 5, "exprHash")
	require.NoError(t, err)
	require.Nil(t, body)
}

func TestNew_NoNodeURLsIsConfigurationError(t *testing.T) {
	_, err := New(logging.Nop(), Config{})
	require.Error(t, err)
}
