package filters

import (
	"context"
	"fmt"

	"github.com/AvaProtocol/ap-filters/pkg/hexnum"
)

// LogFilter collects logs matching its params from every block the tracker reports.
type LogFilter struct {
	results[*LogEntry]

	query  ChainQuery
	params LogFilterParams
}

func NewLogFilter(query ChainQuery, params LogFilterParams) *LogFilter {
	return &LogFilter{
		query:  query,
		params: params.withDefaults(),
	}
}

func (f *LogFilter) Kind() Kind {
	return LogKind
}

// Params returns the filter parameters, with fromBlock resolved once initialized.
func (f *LogFilter) Params() LogFilterParams {
	return f.params
}

// Initialize pins fromBlock to a concrete number and loads the logs that already exist
// up to currentBlock. Those seed the history but are not reported as changes.
func (f *LogFilter) Initialize(ctx context.Context, currentBlock string) error {
	f.params.FromBlock = f.params.FromBlock.Resolve(currentBlock)

	logs, err := f.fetchLogs(ctx, f.params.FromBlock, hexnum.MinBlockRef(f.params.ToBlock, currentBlock))
	if err != nil {
		return err
	}
	f.addInitialResults(logs)
	return nil
}

func (f *LogFilter) Update(ctx context.Context, oldBlock, newBlock string) error {
	fromBlock := newBlock
	if oldBlock != "" {
		next, err := hexnum.IncrementHex(oldBlock)
		if err != nil {
			return err
		}
		fromBlock = next
	}

	logs, err := f.fetchLogs(ctx, hexnum.BlockRef(fromBlock), hexnum.BlockRef(newBlock))
	if err != nil {
		return err
	}

	matching := make([]*LogEntry, 0, len(logs))
	for _, log := range logs {
		if MatchLog(f.params, log) {
			matching = append(matching, log)
		}
	}
	f.addResults(matching)
	return nil
}

func (f *LogFilter) fetchLogs(ctx context.Context, fromBlock, toBlock hexnum.BlockRef) ([]*LogEntry, error) {
	logs, err := f.query.GetLogs(ctx, LogQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Address:   f.params.Address,
		Topics:    f.params.Topics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs %s..%s: %w", fromBlock, toBlock, err)
	}

	for _, log := range logs {
		if err := log.normalize(); err != nil {
			return nil, fmt.Errorf("malformed log in block %s: %w", log.BlockNumber, err)
		}
	}
	return logs, nil
}
