package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/logging"
)

func TestStatus_SetLevelAndSnapshot(t *testing.T) {
	s := NewStatus()
	s.SetLevel("KT1a", 10)
	s.SetLevel("KT1b", 20)
	s.SetLevel("KT1a", 11)

	snap := s.Snapshot()
	require.Equal(t, int32(11), snap["KT1a"])
	require.Equal(t, int32(20), snap["KT1b"])
}

func TestServer_Healthz(t *testing.T) {
	status := NewStatus()
	status.SetLevel("KT1a", 42)

	srv := NewServer(logging.Nop(), "127.0.0.1:0", status)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestServer_RunStopsOnContextCancel(t *testing.T) {
	srv := NewServer(logging.Nop(), "127.0.0.1:0", NewStatus())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
