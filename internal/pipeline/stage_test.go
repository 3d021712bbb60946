package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/chain"
	"tzindexer/internal/logging"
	"tzindexer/internal/repository"
)

func TestStage_SkipsMissingBlockBody(t *testing.T) {
	registry := NewContractRegistry(logging.Nop(), nil, nil)
	stage := NewStage(logging.Nop(), registry, nil, nil, nil)

	in := make(chan fetchedLevel, 1)
	in <- fetchedLevel{Level: 5, Block: nil}
	close(in)
	out := make(chan repository.ProcessedContractBlock, 1)

	require.NoError(t, stage.Run(context.Background(), in, out))
	_, ok := <-out
	require.False(t, ok, "no rows expected for a level with no fetched block")
}

func TestStage_SkipsContractsNotInRegistry(t *testing.T) {
	registry := NewContractRegistry(logging.Nop(), nil, nil)
	stage := NewStage(logging.Nop(), registry, nil, nil, nil)

	dest := "KT1Unregistered00000000000000000000"
	block := &chain.Block{
		Header: chain.BlockHeader{Level: 5},
		Operations: [][]chain.Operation{{{Contents: []chain.OperationContent{{
			Destination: &dest,
			Metadata: chain.OperationMetadata{
				OperationResult: &chain.OperationResult{Status: "applied"},
			},
		}}}}},
	}

	in := make(chan fetchedLevel, 1)
	in <- fetchedLevel{Level: 5, Meta: chain.LevelMeta{Level: 5}, Block: block}
	close(in)
	out := make(chan repository.ProcessedContractBlock, 1)

	require.NoError(t, stage.Run(context.Background(), in, out))
	_, ok := <-out
	require.False(t, ok, "a contract absent from the registry must not be processed")
}
