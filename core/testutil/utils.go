package testutil

import (
	"context"
	"fmt"
	"sync"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/AvaProtocol/ap-filters/core/filters"
	"github.com/AvaProtocol/ap-filters/pkg/hexnum"
)

func GetLogger() sdklogging.Logger {
	logger, err := sdklogging.NewZapLogger("development")
	if err != nil {
		panic(err)
	}
	return logger
}

// BlockHash is the deterministic hash FakeChain gives block n.
func BlockHash(n uint64) string {
	return fmt.Sprintf("0x%064x", n)
}

// TxHash is the deterministic hash of the i-th transaction of block n.
func TxHash(n uint64, i int) string {
	return fmt.Sprintf("0x%056x%08x", n, i)
}

// FakeChain is an in-memory filters.ChainQuery.
type FakeChain struct {
	mu sync.Mutex

	blocks    map[uint64]*filters.BlockBody
	logs      []*filters.LogEntry
	blockErrs map[uint64]error
	logsErr   error

	blockCalls []string
	logQueries []filters.LogQuery
}

func NewFakeChain() *FakeChain {
	return &FakeChain{
		blocks:    make(map[uint64]*filters.BlockBody),
		blockErrs: make(map[uint64]error),
	}
}

// AddBlocks creates blocks from..to, each holding txPerBlock transactions.
func (c *FakeChain) AddBlocks(from, to uint64, txPerBlock int) {
	for n := from; n <= to; n++ {
		txs := make([]string, txPerBlock)
		for i := range txs {
			txs[i] = TxHash(n, i)
		}
		c.AddBlock(n, txs...)
	}
}

func (c *FakeChain) AddBlock(n uint64, txs ...string) *filters.BlockBody {
	c.mu.Lock()
	defer c.mu.Unlock()

	if txs == nil {
		txs = []string{}
	}
	block := &filters.BlockBody{
		Number:       hexnum.Quantity(hexnum.IntToHex(n)),
		Hash:         BlockHash(n),
		ParentHash:   BlockHash(n - 1),
		Transactions: txs,
	}
	c.blocks[n] = block
	return block
}

func (c *FakeChain) AddLog(log *filters.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, log)
}

func (c *FakeChain) FailBlock(n uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockErrs[n] = err
}

func (c *FakeChain) FailLogs(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logsErr = err
}

func (c *FakeChain) BlockCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.blockCalls...)
}

func (c *FakeChain) LogQueries() []filters.LogQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]filters.LogQuery(nil), c.logQueries...)
}

func (c *FakeChain) GetBlockByNumber(ctx context.Context, number string, fullTx bool) (*filters.BlockBody, error) {
	n, err := hexnum.HexToInt(number)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.blockCalls = append(c.blockCalls, number)
	if err := c.blockErrs[n]; err != nil {
		return nil, err
	}
	block, ok := c.blocks[n]
	if !ok {
		return nil, fmt.Errorf("%w: %s", filters.ErrBlockNotFound, number)
	}
	cp := *block
	return &cp, nil
}

// GetLogs returns copies of the stored logs inside the block range of q. Tags are treated
// as unbounded. Address and topics are left to the caller, the way a lenient node would.
func (c *FakeChain) GetLogs(ctx context.Context, q filters.LogQuery) ([]*filters.LogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logQueries = append(c.logQueries, q)
	if c.logsErr != nil {
		return nil, c.logsErr
	}

	from, fromErr := hexnum.HexToInt(string(q.FromBlock))
	to, toErr := hexnum.HexToInt(string(q.ToBlock))

	out := []*filters.LogEntry{}
	for _, log := range c.logs {
		n, err := log.BlockNumber.Uint64()
		if err != nil {
			continue
		}
		if fromErr == nil && n < from {
			continue
		}
		if toErr == nil && n > to {
			continue
		}
		cp := *log
		cp.Topics = append([]string(nil), log.Topics...)
		out = append(out, &cp)
	}
	return out, nil
}

// FakeTracker is a filters.BlockTracker driven by Emit.
type FakeTracker struct {
	mu sync.Mutex

	latest    string
	latestErr error
	listeners []filters.SyncListener

	subscribes   int
	unsubscribes int
}

func NewFakeTracker(latest string) *FakeTracker {
	return &FakeTracker{latest: latest}
}

func (t *FakeTracker) SetLatest(block string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest = block
}

func (t *FakeTracker) FailLatest(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latestErr = err
}

func (t *FakeTracker) LatestBlock(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.latestErr
}

func (t *FakeTracker) OnSync(l filters.SyncListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribes++
	t.listeners = append(t.listeners, l)
}

func (t *FakeTracker) RemoveSyncListener(l filters.SyncListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.listeners {
		if existing == l {
			t.unsubscribes++
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return
		}
	}
}

// Emit delivers a sync event to every listener synchronously and moves latest to newBlock.
func (t *FakeTracker) Emit(oldBlock, newBlock string) {
	t.mu.Lock()
	t.latest = newBlock
	listeners := append([]filters.SyncListener(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l.OnSync(filters.SyncEvent{OldBlock: oldBlock, NewBlock: newBlock})
	}
}

func (t *FakeTracker) Subscribes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribes
}

func (t *FakeTracker) Unsubscribes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unsubscribes
}

func (t *FakeTracker) ListenerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}
