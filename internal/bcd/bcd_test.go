package bcd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/logging"
)

func TestClient_Head(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"network":"mainnet","level":10},{"network":"ghostnet","level":99}]`))
	}))
	defer srv.Close()

	c := New(logging.Nop(), srv.URL, "ghostnet")
	level, err := c.Head(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(99), level)
}

func TestClient_Head_UnknownNetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"network":"mainnet","level":10}]`))
	}))
	defer srv.Close()

	c := New(logging.Nop(), srv.URL, "ghostnet")
	_, err := c.Head(context.Background())
	require.Error(t, err)
}

func TestClient_OperationsPage_DedupsLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "applied", r.URL.Query().Get("status"))
		w.Write([]byte(`{"operations":[{"level":5},{"level":5},{"level":6}],"last_id":"cursor-2"}`))
	}))
	defer srv.Close()

	c := New(logging.Nop(), srv.URL, "ghostnet")
	levels, nextID, err := c.OperationsPage(context.Background(), "KT1x", "")
	require.NoError(t, err)
	require.Equal(t, []int32{5, 6}, levels)
	require.Equal(t, "cursor-2", nextID)
}
