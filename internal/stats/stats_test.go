package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/logging"
)

func TestLogger_AddAndDrain(t *testing.T) {
	l := New(logging.Nop(), "test", time.Hour)
	l.Add("blocks", 3)
	l.Add("blocks", 2)
	l.Set("last_level", "42")

	counters, values := l.drain()
	require.Equal(t, int64(5), counters["blocks"])
	require.Equal(t, "42", values["last_level"])

	counters, values = l.drain()
	require.Empty(t, counters)
	require.Empty(t, values)
}

func TestLogger_RunStopsOnContextCancel(t *testing.T) {
	l := New(logging.Nop(), "test", time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
