package denylist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/logging"
)

func TestList_IsDenylisted(t *testing.T) {
	l := New(logging.Nop(), []string{"KT1FHAtLjG6S6tfjmrDeEySVLeP8a16T4Ngr", " KT1other "})

	require.True(t, l.IsDenylisted("KT1FHAtLjG6S6tfjmrDeEySVLeP8a16T4Ngr"))
	require.True(t, l.IsDenylisted("KT1other"))
	require.False(t, l.IsDenylisted("KT1notlisted"))
	require.Equal(t, 2, l.Len())
}

func TestLoadFile_MergesFileAndConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "denylist.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\nKT1fromfile\n"), 0o644))

	l, err := LoadFile(logging.Nop(), path, []string{"KT1fromconfig"})
	require.NoError(t, err)

	require.True(t, l.IsDenylisted("KT1fromfile"))
	require.True(t, l.IsDenylisted("KT1fromconfig"))
	require.Equal(t, 2, l.Len())
}

func TestLoadFile_EmptyPathIsNotAnError(t *testing.T) {
	l, err := LoadFile(logging.Nop(), "", []string{"KT1fromconfig"})
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())
}

func TestLoadFile_MissingFileErrors(t *testing.T) {
	_, err := LoadFile(logging.Nop(), "/nonexistent/path/denylist.txt", nil)
	require.Error(t, err)
}
