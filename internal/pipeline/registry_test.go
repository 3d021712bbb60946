package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/logging"
	"tzindexer/internal/storageproc"
)

func TestContractRegistry_GetReturnsOnlyBootstrappedAddresses(t *testing.T) {
	reg := NewContractRegistry(logging.Nop(), nil, nil)
	reg.contracts["KT1known"] = &storageproc.Contract{Address: "KT1known"}

	c, ok := reg.Get("KT1known")
	require.True(t, ok)
	require.Equal(t, "KT1known", c.Address)

	_, ok = reg.Get("KT1unknown")
	require.False(t, ok)
}

func TestContractRegistry_AddressesListsEveryRegistered(t *testing.T) {
	reg := NewContractRegistry(logging.Nop(), nil, nil)
	reg.contracts["KT1a"] = &storageproc.Contract{Address: "KT1a"}
	reg.contracts["KT1b"] = &storageproc.Contract{Address: "KT1b"}

	got := reg.Addresses()
	require.ElementsMatch(t, []string{"KT1a", "KT1b"}, got)
}
