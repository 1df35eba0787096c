package filters

import (
	"context"

	"github.com/samber/lo"

	"github.com/AvaProtocol/ap-filters/pkg/hexnum"
)

// PendingTransactionFilter reports the hash of every transaction included in new blocks.
type PendingTransactionFilter struct {
	results[string]

	fetcher *RangeFetcher
}

func NewPendingTransactionFilter(fetcher *RangeFetcher) *PendingTransactionFilter {
	return &PendingTransactionFilter{fetcher: fetcher}
}

func (f *PendingTransactionFilter) Kind() Kind {
	return PendingTransactionKind
}

func (f *PendingTransactionFilter) Initialize(ctx context.Context, currentBlock string) error {
	return nil
}

// Update reads the same range as BlockFilter, through newBlock, so transaction hashes
// are reported in the same sweep as the block that carries them.
func (f *PendingTransactionFilter) Update(ctx context.Context, oldBlock, newBlock string) error {
	fromBlock, err := hexnum.IncrementHex(oldBlock)
	if err != nil {
		return err
	}

	blocks, err := f.fetcher.Fetch(ctx, fromBlock, newBlock)
	if err != nil {
		return err
	}

	f.addResults(lo.FlatMap(blocks, func(b *BlockBody, _ int) []string {
		return b.Transactions
	}))
	return nil
}
