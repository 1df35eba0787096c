package filters

import (
	"context"

	"github.com/samber/lo"

	"github.com/AvaProtocol/ap-filters/pkg/hexnum"
)

// BlockFilter reports the hash of every new block.
type BlockFilter struct {
	results[string]

	fetcher *RangeFetcher
}

func NewBlockFilter(fetcher *RangeFetcher) *BlockFilter {
	return &BlockFilter{fetcher: fetcher}
}

func (f *BlockFilter) Kind() Kind {
	return BlockKind
}

func (f *BlockFilter) Initialize(ctx context.Context, currentBlock string) error {
	return nil
}

func (f *BlockFilter) Update(ctx context.Context, oldBlock, newBlock string) error {
	fromBlock, err := hexnum.IncrementHex(oldBlock)
	if err != nil {
		return err
	}

	blocks, err := f.fetcher.Fetch(ctx, fromBlock, newBlock)
	if err != nil {
		return err
	}

	f.addResults(lo.Map(blocks, func(b *BlockBody, _ int) string {
		return b.Hash
	}))
	return nil
}
