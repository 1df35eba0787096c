package ethquery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-filters/core/filters"
	"github.com/AvaProtocol/ap-filters/core/testutil"
	"github.com/AvaProtocol/ap-filters/pkg/hexnum"
)

// FilterCriteria decodes eth_getLogs params with the same block number rules a go-ethereum
// node applies, so padded numbers are rejected.
type FilterCriteria struct {
	FromBlock *rpc.BlockNumber `json:"fromBlock"`
	ToBlock   *rpc.BlockNumber `json:"toBlock"`
	Address   *common.Address  `json:"address"`
	Topics    []interface{}    `json:"topics"`
}

// fakeEth serves the eth namespace methods the client calls, with go-ethereum argument types.
type fakeEth struct {
	head       string
	blockCalls atomic.Int32

	mu        sync.Mutex
	blockArgs []rpc.BlockNumber
	lastQuery FilterCriteria
}

func (s *fakeEth) BlockNumber() (string, error) {
	if s.head == "" {
		return "", errors.New("syncing")
	}
	return s.head, nil
}

func (s *fakeEth) GetBlockByNumber(number rpc.BlockNumber, fullTx bool) (map[string]interface{}, error) {
	s.blockCalls.Add(1)
	s.mu.Lock()
	s.blockArgs = append(s.blockArgs, number)
	s.mu.Unlock()

	if number == 0x63 {
		return nil, nil
	}
	n := uint64(5)
	if number >= 0 {
		n = uint64(number.Int64())
	}

	var txs []interface{}
	if fullTx {
		txs = []interface{}{map[string]interface{}{"hash": "0xaa", "nonce": "0x0"}}
	} else {
		txs = []interface{}{"0xaa", "0xbb"}
	}
	return map[string]interface{}{
		"number":       hexutil.EncodeUint64(n),
		"hash":         testutil.BlockHash(n),
		"parentHash":   testutil.BlockHash(n - 1),
		"transactions": txs,
	}, nil
}

func (s *fakeEth) GetLogs(q FilterCriteria) ([]map[string]interface{}, error) {
	s.mu.Lock()
	s.lastQuery = q
	s.mu.Unlock()

	return []map[string]interface{}{{
		"address":          "0x5fbdb2315678afecb367f032d93f642f64180aa3",
		"topics":           []string{testutil.BlockHash(1)},
		"data":             "0x",
		"blockNumber":      "0x6",
		"blockHash":        testutil.BlockHash(6),
		"transactionHash":  testutil.TxHash(6, 0),
		"transactionIndex": "0x0",
		"logIndex":         "0x3",
		"removed":          false,
	}}, nil
}

func (s *fakeEth) query() FilterCriteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

func (s *fakeEth) blockNumbers() []rpc.BlockNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rpc.BlockNumber(nil), s.blockArgs...)
}

func newTestClient(t *testing.T, svc *fakeEth) *Client {
	return newTestClientWithOption(t, svc, &ClientOption{CacheLifeWindow: time.Minute})
}

func newTestClientWithOption(t *testing.T, svc *fakeEth, opts *ClientOption) *Client {
	t.Helper()

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", svc))
	t.Cleanup(server.Stop)

	client, err := NewClient(rpc.DialInProc(server), testutil.GetLogger(), opts)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestUpstreamBlockRef(t *testing.T) {
	tests := []struct {
		in   hexnum.BlockRef
		want string
	}{
		{"", ""},
		{"latest", "latest"},
		{"Pending", "pending"},
		{"earliest", "earliest"},
		{"0x00", "0x0"},
		{"0x06", "0x6"},
		{"0x0a", "0xa"},
		{"0x01406f40", "0x1406f40"},
		{"0x1406f40", "0x1406f40"},
		{"12", "0xc"},
	}

	for _, tt := range tests {
		got, err := upstreamBlockRef(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := upstreamBlockRef("0xzz")
	assert.ErrorIs(t, err, hexnum.ErrInvalidQuantity)
}

func TestBlockNumberIsCanonical(t *testing.T) {
	client := newTestClient(t, &fakeEth{head: "0xa"})

	head, err := client.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x0a", head)
}

func TestBlockNumberError(t *testing.T) {
	client := newTestClient(t, &fakeEth{})

	_, err := client.BlockNumber(context.Background())
	assert.Error(t, err)
}

func TestGetBlockByNumber(t *testing.T) {
	svc := &fakeEth{}
	client := newTestClient(t, svc)

	block, err := client.GetBlockByNumber(context.Background(), "0x05", false)
	require.NoError(t, err)
	assert.Equal(t, hexnum.Quantity("0x05"), block.Number)
	assert.Equal(t, testutil.BlockHash(5), block.Hash)
	assert.Equal(t, []string{"0xaa", "0xbb"}, block.Transactions)

	_, err = client.GetBlockByNumber(context.Background(), "0x5", false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, svc.blockCalls.Load(), "the second read is served from cache")
	assert.Equal(t, []rpc.BlockNumber{5}, svc.blockNumbers())
}

func TestGetBlockByNumberPaddedHeights(t *testing.T) {
	svc := &fakeEth{}
	client := newTestClientWithOption(t, svc, nil)

	for _, number := range []string{"0x06", "0x0a", "0x01406f40"} {
		block, err := client.GetBlockByNumber(context.Background(), number, false)
		require.NoError(t, err, number)
		assert.Equal(t, hexnum.Quantity(number), block.Number)
	}
	assert.Equal(t, []rpc.BlockNumber{6, 10, 0x1406f40}, svc.blockNumbers())
}

func TestRangeFetcherThroughClient(t *testing.T) {
	client := newTestClient(t, &fakeEth{})

	blocks, err := filters.NewRangeFetcher(client, 4).Fetch(context.Background(), "0x05", "0x0b")
	require.NoError(t, err)
	require.Len(t, blocks, 7)
	for i, b := range blocks {
		assert.Equal(t, hexnum.Quantity(hexnum.IntToHex(uint64(5+i))), b.Number)
	}
}

func TestGetBlockByNumberWithoutCache(t *testing.T) {
	svc := &fakeEth{}
	client := newTestClientWithOption(t, svc, nil)

	for i := 0; i < 2; i++ {
		_, err := client.GetBlockByNumber(context.Background(), "0x05", false)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, svc.blockCalls.Load())
}

func TestGetBlockByNumberFullTransactions(t *testing.T) {
	svc := &fakeEth{}
	client := newTestClient(t, svc)

	block, err := client.GetBlockByNumber(context.Background(), "latest", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xaa"}, block.Transactions)
	assert.Equal(t, []rpc.BlockNumber{rpc.LatestBlockNumber}, svc.blockNumbers())
}

func TestGetBlockByNumberMissing(t *testing.T) {
	client := newTestClient(t, &fakeEth{})

	_, err := client.GetBlockByNumber(context.Background(), "0x63", false)
	assert.ErrorIs(t, err, filters.ErrBlockNotFound)
}

func TestGetLogs(t *testing.T) {
	svc := &fakeEth{}
	client := newTestClient(t, svc)

	logs, err := client.GetLogs(context.Background(), filters.LogQuery{
		FromBlock: "0x06",
		ToBlock:   "0x07",
		Topics:    []filters.TopicPattern{{Wildcard: true}},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, hexnum.Quantity("0x6"), logs[0].BlockNumber, "logs are returned as the node sent them")

	q := svc.query()
	require.NotNil(t, q.FromBlock)
	require.NotNil(t, q.ToBlock)
	assert.Equal(t, rpc.BlockNumber(6), *q.FromBlock)
	assert.Equal(t, rpc.BlockNumber(7), *q.ToBlock)
	assert.Nil(t, q.Address)
	assert.Equal(t, []interface{}{nil}, q.Topics)
}

func TestGetLogsTagsAndAddress(t *testing.T) {
	svc := &fakeEth{}
	client := newTestClient(t, svc)

	_, err := client.GetLogs(context.Background(), filters.LogQuery{
		FromBlock: "0x01406f40",
		ToBlock:   "latest",
		Address:   "0x5fbdb2315678afecb367f032d93f642f64180aa3",
	})
	require.NoError(t, err)

	q := svc.query()
	assert.Equal(t, rpc.BlockNumber(0x1406f40), *q.FromBlock)
	assert.Equal(t, rpc.LatestBlockNumber, *q.ToBlock)
	require.NotNil(t, q.Address)
	assert.Equal(t, common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3"), *q.Address)
}

func TestLogFilterInstallsAtPaddedHead(t *testing.T) {
	client := newTestClient(t, &fakeEth{head: "0xa"})
	ctx := context.Background()

	head, err := client.BlockNumber(ctx)
	require.NoError(t, err)

	f := filters.NewLogFilter(client, filters.LogFilterParams{})
	require.NoError(t, f.Initialize(ctx, head))
	require.NoError(t, f.Update(ctx, head, "0x0b"))
}
