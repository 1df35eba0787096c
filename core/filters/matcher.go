package filters

import (
	"strings"

	"github.com/AvaProtocol/ap-filters/pkg/hexnum"
)

// MatchLog reports whether log satisfies the block bounds, address and topic patterns of
// params. Both block bounds are exclusive: fromBlock is the last block already processed.
func MatchLog(params LogFilterParams, log *LogEntry) bool {
	blockNumber, err := log.BlockNumber.Uint64()
	if err != nil {
		return false
	}

	if from, err := hexnum.HexToInt(string(params.FromBlock)); err == nil && from >= blockNumber {
		return false
	}
	if to, err := hexnum.HexToInt(string(params.ToBlock)); err == nil && to <= blockNumber {
		return false
	}

	if params.Address != "" && !strings.EqualFold(params.Address, log.Address) {
		return false
	}

	// Topics are positional. A pattern longer than the log's topic list never matches,
	// even when the extra positions are wildcards.
	for i, pattern := range params.Topics {
		if i >= len(log.Topics) || log.Topics[i] == "" {
			return false
		}
		if !pattern.Matches(log.Topics[i]) {
			return false
		}
	}

	return true
}
