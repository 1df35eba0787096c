// Package ethquery reads blocks and logs from an upstream node over JSON-RPC.
package ethquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AvaProtocol/ap-filters/core/filters"
	"github.com/AvaProtocol/ap-filters/pkg/hexnum"
	"github.com/AvaProtocol/ap-filters/pkg/logger"
)

const DefaultRequestTimeout = 30 * time.Second

type ClientOption struct {
	RequestTimeout time.Duration
	// CacheLifeWindow is how long a block body fetched by number is served from memory.
	// Zero disables the cache.
	CacheLifeWindow time.Duration
}

// Client implements filters.ChainQuery on top of a go-ethereum rpc client. Block bodies
// are cached by number so the block and transaction filters of one sweep share requests.
type Client struct {
	rpc     *rpc.Client
	cache   *bigcache.BigCache
	timeout time.Duration
	logger  sdklogging.Logger
}

// Dial connects to url, which may be http(s), ws(s) or an IPC path.
func Dial(ctx context.Context, url string, log sdklogging.Logger, opts *ClientOption) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	client, err := NewClient(c, log, opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	return client, nil
}

func NewClient(c *rpc.Client, log sdklogging.Logger, opts *ClientOption) (*Client, error) {
	if opts == nil {
		opts = &ClientOption{}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	client := &Client{
		rpc:     c,
		timeout: timeout,
		logger:  logger.EnsureLogger(log),
	}
	if opts.CacheLifeWindow <= 0 {
		return client, nil
	}

	cacheConfig := bigcache.DefaultConfig(opts.CacheLifeWindow)
	cacheConfig.Shards = 64
	cacheConfig.CleanWindow = opts.CacheLifeWindow
	// blocks without full transactions stay well under this
	cacheConfig.MaxEntrySize = 4096
	cacheConfig.MaxEntriesInWindow = 1024
	cacheConfig.HardMaxCacheSize = 256
	cacheConfig.Verbose = false

	cache, err := bigcache.New(context.Background(), cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("cannot initialize block cache: %w", err)
	}
	client.cache = cache

	return client, nil
}

// BlockNumber returns the head block number in canonical hex.
func (c *Client) BlockNumber(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var raw hexnum.Quantity
	if err := c.rpc.CallContext(ctx, &raw, "eth_blockNumber"); err != nil {
		return "", fmt.Errorf("eth_blockNumber: %w", err)
	}
	if raw == "" {
		return "", fmt.Errorf("eth_blockNumber: empty result")
	}
	if err := raw.Normalize(); err != nil {
		return "", fmt.Errorf("eth_blockNumber: %w", err)
	}
	return raw.String(), nil
}

// rpcBlock accepts both transaction hashes and full transaction objects.
type rpcBlock struct {
	Number       hexnum.Quantity   `json:"number"`
	Hash         string            `json:"hash"`
	ParentHash   string            `json:"parentHash"`
	Transactions []json.RawMessage `json:"transactions"`
}

func (b *rpcBlock) body() (*filters.BlockBody, error) {
	if err := b.Number.Normalize(); err != nil {
		return nil, err
	}
	out := &filters.BlockBody{
		Number:       b.Number,
		Hash:         b.Hash,
		ParentHash:   b.ParentHash,
		Transactions: make([]string, 0, len(b.Transactions)),
	}
	for i, raw := range b.Transactions {
		var hash string
		if err := json.Unmarshal(raw, &hash); err != nil {
			var tx struct {
				Hash string `json:"hash"`
			}
			if err := json.Unmarshal(raw, &tx); err != nil {
				return nil, fmt.Errorf("transaction %d: %w", i, err)
			}
			hash = tx.Hash
		}
		out.Transactions = append(out.Transactions, hash)
	}
	return out, nil
}

// upstreamBlockRef encodes ref the way go-ethereum nodes decode block numbers: minimal hex
// without leading zeros. Tags pass through.
func upstreamBlockRef(ref hexnum.BlockRef) (string, error) {
	if ref == "" || ref.IsTag() {
		return strings.ToLower(string(ref)), nil
	}
	n, err := hexnum.Quantity(ref).Uint64()
	if err != nil {
		return "", err
	}
	return hexutil.EncodeUint64(n), nil
}

// rpcLogQuery is LogQuery with block bounds in upstream encoding.
type rpcLogQuery struct {
	FromBlock string                 `json:"fromBlock,omitempty"`
	ToBlock   string                 `json:"toBlock,omitempty"`
	Address   string                 `json:"address,omitempty"`
	Topics    []filters.TopicPattern `json:"topics,omitempty"`
}

// GetBlockByNumber fetches a block. A null answer from the node is reported as
// filters.ErrBlockNotFound.
func (c *Client) GetBlockByNumber(ctx context.Context, number string, fullTx bool) (*filters.BlockBody, error) {
	arg, err := upstreamBlockRef(hexnum.BlockRef(number))
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %s: %w", number, err)
	}

	cacheKey := ""
	if canonical, err := hexnum.Canonical(number); err == nil && hexnum.BlockRef(number).IsNumber() {
		number = canonical
		if c.cache != nil && !fullTx {
			cacheKey = fmt.Sprintf("blk:%s", canonical)
		}
	}

	if cacheKey != "" {
		if data, err := c.cache.Get(cacheKey); err == nil {
			var body filters.BlockBody
			if err := json.Unmarshal(data, &body); err == nil {
				return &body, nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var raw json.RawMessage
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", arg, fullTx); err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %s: %w", number, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: %s", filters.ErrBlockNotFound, number)
	}

	var block rpcBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %s: %w", number, err)
	}
	body, err := block.body()
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %s: %w", number, err)
	}

	if cacheKey != "" {
		if data, err := json.Marshal(body); err == nil {
			// caching is best effort
			if err := c.cache.Set(cacheKey, data); err != nil {
				c.logger.Debug("block not cached", "block", number, "error", err)
			}
		}
	}
	return body, nil
}

func (c *Client) GetLogs(ctx context.Context, q filters.LogQuery) ([]*filters.LogEntry, error) {
	fromBlock, err := upstreamBlockRef(q.FromBlock)
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs fromBlock: %w", err)
	}
	toBlock, err := upstreamBlockRef(q.ToBlock)
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs toBlock: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var logs []*filters.LogEntry
	if err := c.rpc.CallContext(ctx, &logs, "eth_getLogs", rpcLogQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Address:   q.Address,
		Topics:    q.Topics,
	}); err != nil {
		return nil, fmt.Errorf("eth_getLogs: %w", err)
	}
	if logs == nil {
		logs = []*filters.LogEntry{}
	}
	return logs, nil
}

func (c *Client) Close() {
	c.rpc.Close()
	if c.cache == nil {
		return
	}
	if err := c.cache.Close(); err != nil {
		c.logger.Warn("failed to close block cache", "error", err)
	}
}
