package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/config"
	"tzindexer/internal/logging"
)

func TestLevelSource_ExplicitLevels_DedupsAndSortsAcrossRanges(t *testing.T) {
	cfg := config.Config{
		Levels: []config.LevelRange{
			{Start: 10, End: 12},
			{Start: 11, End: 13},
		},
	}
	src := NewLevelSource(logging.Nop(), nil, nil, nil, cfg)

	out := make(chan int32, 16)
	err := src.Run(context.Background(), nil, out)
	require.NoError(t, err)

	var got []int32
	for l := range out {
		got = append(got, l)
	}
	require.Equal(t, []int32{10, 11, 12, 13}, got)
}

func TestLevelSource_ExplicitLevels_ClosesOutChannel(t *testing.T) {
	cfg := config.Config{Levels: []config.LevelRange{{Start: 1, End: 1}}}
	src := NewLevelSource(logging.Nop(), nil, nil, nil, cfg)

	out := make(chan int32, 1)
	require.NoError(t, src.Run(context.Background(), nil, out))
	level, ok := <-out
	require.True(t, ok)
	require.Equal(t, int32(1), level)
	_, ok = <-out
	require.False(t, ok, "expected out to be drained and closed")
}
