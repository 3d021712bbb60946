package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/logging"
	"tzindexer/internal/rpc"
)

func blockJSON(level int32) string {
	return fmt.Sprintf(`{"hash":"BL%d","header":{"level":%d,"predecessor":"BLprev","timestamp":"2024-01-01T00:00:00Z"},"operations":[[],[],[],[]]}`, level, level)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *rpc.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := rpc.New(logging.Nop(), rpc.Config{NodeURLs: []string{srv.URL}})
	require.NoError(t, err)
	return c
}

func TestFetcherPool_EmitsInAscendingOrderPerChunk(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var level int32
		fmt.Sscanf(r.URL.Path, "/chains/main/blocks/%d", &level)
		w.Write([]byte(blockJSON(level)))
	})

	pool := NewFetcherPool(logging.Nop(), client, 3)

	in := make(chan int32, 5)
	out := make(chan fetchedLevel, 5)
	for _, l := range []int32{10, 11, 12, 13} {
		in <- l
	}
	close(in)

	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(context.Background(), in, out) }()

	var got []int32
	for fl := range out {
		got = append(got, fl.Level)
	}
	require.NoError(t, <-errCh)
	require.Equal(t, []int32{10, 11, 12, 13}, got)
}

func TestFetcherPool_EmptyInputClosesOutImmediately(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no RPC call expected")
	})
	pool := NewFetcherPool(logging.Nop(), client, 4)

	in := make(chan int32)
	close(in)
	out := make(chan fetchedLevel)

	err := pool.Run(context.Background(), in, out)
	require.NoError(t, err)
	_, ok := <-out
	require.False(t, ok)
}

func TestFetcherPool_PropagatesFetchError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	pool := NewFetcherPool(logging.Nop(), client, 2)

	in := make(chan int32, 1)
	in <- 5
	close(in)
	out := make(chan fetchedLevel, 1)

	err := pool.Run(context.Background(), in, out)
	require.Error(t, err)
}
