package filters_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-filters/core/filters"
	"github.com/AvaProtocol/ap-filters/core/testutil"
	"github.com/AvaProtocol/ap-filters/pkg/hexnum"
)

func TestRangeFetcherReturnsAscendingBlocks(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.AddBlocks(1, 20, 0)
	fetcher := filters.NewRangeFetcher(chain, 3)

	blocks, err := fetcher.Fetch(context.Background(), "0x03", "0x0c")
	require.NoError(t, err)
	require.Len(t, blocks, 10)
	for i, b := range blocks {
		assert.Equal(t, testutil.BlockHash(uint64(3+i)), b.Hash)
	}
}

func TestRangeFetcherEdges(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.AddBlocks(1, 10, 0)
	fetcher := filters.NewRangeFetcher(chain, 0)

	blocks, err := fetcher.Fetch(context.Background(), "", "0x07")
	require.NoError(t, err)
	require.Len(t, blocks, 1, "an empty start fetches only the end block")
	assert.Equal(t, testutil.BlockHash(7), blocks[0].Hash)

	blocks, err = fetcher.Fetch(context.Background(), "0x08", "0x07")
	require.NoError(t, err)
	assert.Empty(t, blocks)
	assert.NotNil(t, blocks)

	_, err = fetcher.Fetch(context.Background(), "0x01", "latest")
	assert.ErrorIs(t, err, hexnum.ErrInvalidQuantity)
}

func TestRangeFetcherFailsAsAWhole(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.AddBlocks(1, 10, 0)
	boom := errors.New("upstream timeout")
	chain.FailBlock(6, boom)

	_, err := filters.NewRangeFetcher(chain, 2).Fetch(context.Background(), "0x04", "0x08")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "0x06")

	_, err = filters.NewRangeFetcher(chain, 2).Fetch(context.Background(), "0x09", "0x0b")
	assert.ErrorIs(t, err, filters.ErrBlockNotFound)
}

func TestBlockFilterReportsNewBlockHashes(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.AddBlocks(1, 10, 2)
	f := filters.NewBlockFilter(filters.NewRangeFetcher(chain, 0))

	require.NoError(t, f.Initialize(context.Background(), "0x05"))
	assert.Equal(t, []string{}, f.ChangesAndClear())

	require.NoError(t, f.Update(context.Background(), "0x05", "0x07"))
	assert.Equal(t, []string{testutil.BlockHash(6), testutil.BlockHash(7)}, f.ChangesAndClear())
	assert.Equal(t, []string{}, f.ChangesAndClear(), "changes are cleared once read")

	require.NoError(t, f.Update(context.Background(), "0x07", "0x08"))
	assert.Equal(t, []string{testutil.BlockHash(6), testutil.BlockHash(7), testutil.BlockHash(8)}, f.AllResults())
	assert.Equal(t, []string{testutil.BlockHash(8)}, f.ChangesAndClear())
}

func TestBlockFilterFirstEventReadsSingleBlock(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.AddBlocks(1, 10, 0)
	f := filters.NewBlockFilter(filters.NewRangeFetcher(chain, 0))

	require.NoError(t, f.Update(context.Background(), "", "0x09"))
	assert.Equal(t, []string{testutil.BlockHash(9)}, f.ChangesAndClear())
}

func TestBlockFilterFailedUpdateLeavesResultsUntouched(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.AddBlocks(1, 10, 0)
	chain.FailBlock(8, errors.New("bad gateway"))
	f := filters.NewBlockFilter(filters.NewRangeFetcher(chain, 0))

	require.Error(t, f.Update(context.Background(), "0x06", "0x08"))
	assert.Equal(t, []string{}, f.ChangesAndClear())
	assert.Equal(t, []string{}, f.AllResults())
}

func TestPendingTransactionFilterFlattensTransactions(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.AddBlocks(1, 10, 2)
	chain.AddBlock(11)
	f := filters.NewPendingTransactionFilter(filters.NewRangeFetcher(chain, 0))
	require.NoError(t, f.Initialize(context.Background(), "0x08"))

	require.NoError(t, f.Update(context.Background(), "0x08", "0x0b"))
	assert.Equal(t, []string{
		testutil.TxHash(9, 0), testutil.TxHash(9, 1),
		testutil.TxHash(10, 0), testutil.TxHash(10, 1),
	}, f.ChangesAndClear())
	assert.Equal(t, filters.PendingTransactionKind, f.Kind())
}

func TestLogFilterInitializeSeedsHistoryOnly(t *testing.T) {
	chain := testutil.NewFakeChain()
	chain.AddLog(logAt(3, contract, topicA))
	chain.AddLog(logAt(4, contract, topicA))
	chain.AddLog(logAt(9, contract, topicA))

	f := filters.NewLogFilter(chain, filters.LogFilterParams{FromBlock: "0x02", ToBlock: "0x06"})
	require.NoError(t, f.Initialize(context.Background(), "0x05"))

	queries := chain.LogQueries()
	require.Len(t, queries, 1)
	assert.Equal(t, hexnum.BlockRef("0x02"), queries[0].FromBlock)
	assert.Equal(t, hexnum.BlockRef("0x05"), queries[0].ToBlock, "toBlock is capped at the current head")

	assert.Equal(t, []*filters.LogEntry{}, f.ChangesAndClear())
	all := f.AllResults().([]*filters.LogEntry)
	require.Len(t, all, 2)
	assert.Equal(t, hexnum.Quantity("0x03"), all[0].BlockNumber)
}

func TestLogFilterDefaultsToLatest(t *testing.T) {
	chain := testutil.NewFakeChain()
	f := filters.NewLogFilter(chain, filters.LogFilterParams{Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"})

	assert.Equal(t, hexnum.Latest, f.Params().ToBlock)
	assert.Equal(t, contract, f.Params().Address)

	require.NoError(t, f.Initialize(context.Background(), "0x0a"))
	assert.Equal(t, hexnum.BlockRef("0x0a"), f.Params().FromBlock)
	assert.Equal(t, hexnum.Latest, f.Params().ToBlock)
}

func TestLogFilterUpdateMatchesAndNormalizes(t *testing.T) {
	chain := testutil.NewFakeChain()
	f := filters.NewLogFilter(chain, filters.LogFilterParams{
		Address: contract,
		Topics:  []filters.TopicPattern{{Topics: []string{topicA}}},
	})
	require.NoError(t, f.Initialize(context.Background(), "0x05"))

	wanted := logAt(6, contract, topicA)
	wanted.BlockNumber = "6"
	wanted.LogIndex = "0x1"
	chain.AddLog(wanted)
	chain.AddLog(logAt(7, contract, topicB))
	chain.AddLog(logAt(7, "0x0000000000000000000000000000000000000001", topicA))

	require.NoError(t, f.Update(context.Background(), "0x05", "0x07"))

	queries := chain.LogQueries()
	last := queries[len(queries)-1]
	assert.Equal(t, hexnum.BlockRef("0x06"), last.FromBlock)
	assert.Equal(t, hexnum.BlockRef("0x07"), last.ToBlock)

	changes := f.ChangesAndClear().([]*filters.LogEntry)
	require.Len(t, changes, 1)
	assert.Equal(t, hexnum.Quantity("0x06"), changes[0].BlockNumber)
	assert.Equal(t, hexnum.Quantity("0x01"), changes[0].LogIndex)
	assert.Equal(t, hexnum.Quantity("0x00"), changes[0].TransactionIndex)
}

func TestLogFilterUpdateError(t *testing.T) {
	chain := testutil.NewFakeChain()
	f := filters.NewLogFilter(chain, filters.LogFilterParams{})
	require.NoError(t, f.Initialize(context.Background(), "0x05"))

	chain.FailLogs(errors.New("rate limited"))
	err := f.Update(context.Background(), "0x05", "0x06")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
