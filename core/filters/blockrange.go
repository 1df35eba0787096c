package filters

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/AvaProtocol/ap-filters/pkg/hexnum"
)

// DefaultMaxConcurrentFetches bounds how many block requests one range fetch keeps in flight.
const DefaultMaxConcurrentFetches = 16

// RangeFetcher loads every block body of an inclusive range.
type RangeFetcher struct {
	query         ChainQuery
	maxConcurrent int
}

func NewRangeFetcher(query ChainQuery, maxConcurrent int) *RangeFetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentFetches
	}
	return &RangeFetcher{
		query:         query,
		maxConcurrent: maxConcurrent,
	}
}

// Fetch returns the bodies of blocks fromBlock..toBlock in ascending order. An empty
// fromBlock means the single block toBlock. An inverted range yields no blocks. If any
// single request fails the whole fetch fails.
func (f *RangeFetcher) Fetch(ctx context.Context, fromBlock, toBlock string) ([]*BlockBody, error) {
	if fromBlock == "" {
		fromBlock = toBlock
	}
	from, err := hexnum.HexToInt(fromBlock)
	if err != nil {
		return nil, fmt.Errorf("invalid range start: %w", err)
	}
	to, err := hexnum.HexToInt(toBlock)
	if err != nil {
		return nil, fmt.Errorf("invalid range end: %w", err)
	}
	if to < from {
		return []*BlockBody{}, nil
	}

	blocks := make([]*BlockBody, to-from+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrent)

	for i := range blocks {
		number := hexnum.IntToHex(from + uint64(i))
		g.Go(func() error {
			block, err := f.query.GetBlockByNumber(gctx, number, false)
			if err != nil {
				return fmt.Errorf("failed to fetch block %s: %w", number, err)
			}
			if block == nil {
				return fmt.Errorf("%w: %s", ErrBlockNotFound, number)
			}
			blocks[i] = block
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}
