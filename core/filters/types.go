package filters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-filters/pkg/hexnum"
)

// Kind names the three filter variants. The set is closed.
type Kind string

const (
	LogKind                Kind = "log"
	BlockKind              Kind = "block"
	PendingTransactionKind Kind = "pendingTransaction"
)

// FilterID is the wire form of a filter identifier: the canonical hex encoding of a
// counter that starts at 1.
type FilterID string

func newFilterID(n uint64) FilterID {
	return FilterID(hexnum.IntToHex(n))
}

func (id FilterID) index() (uint64, bool) {
	n, err := hexnum.HexToInt(string(id))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Filter is a standing query plus its result buffers. Initialize is called once at
// install time, Update once per sweep.
type Filter interface {
	Kind() Kind
	Initialize(ctx context.Context, currentBlock string) error
	Update(ctx context.Context, oldBlock, newBlock string) error

	// ChangesAndClear returns results added since the previous call and forgets them.
	ChangesAndClear() any
	// AllResults returns every result the filter ever produced.
	AllResults() any
}

// SyncEvent is emitted by the block tracker whenever the head moves. OldBlock is empty on
// the first event after a subscription starts.
type SyncEvent struct {
	OldBlock string
	NewBlock string
}

type SyncListener interface {
	OnSync(ev SyncEvent)
}

// BlockTracker is the source of head notifications.
type BlockTracker interface {
	LatestBlock(ctx context.Context) (string, error)
	OnSync(l SyncListener)
	RemoveSyncListener(l SyncListener)
}

// ChainQuery is the subset of the node API the filters read from.
type ChainQuery interface {
	GetBlockByNumber(ctx context.Context, number string, fullTx bool) (*BlockBody, error)
	GetLogs(ctx context.Context, q LogQuery) ([]*LogEntry, error)
}

// BlockBody is a block as returned by eth_getBlockByNumber without full transactions.
type BlockBody struct {
	Number       hexnum.Quantity `json:"number"`
	Hash         string          `json:"hash"`
	ParentHash   string          `json:"parentHash"`
	Transactions []string        `json:"transactions"`
}

// LogEntry is a log as returned by eth_getLogs.
type LogEntry struct {
	Address          string          `json:"address"`
	Topics           []string        `json:"topics"`
	Data             string          `json:"data"`
	BlockNumber      hexnum.Quantity `json:"blockNumber"`
	BlockHash        string          `json:"blockHash"`
	TransactionHash  string          `json:"transactionHash"`
	TransactionIndex hexnum.Quantity `json:"transactionIndex"`
	LogIndex         hexnum.Quantity `json:"logIndex"`
	Removed          bool            `json:"removed"`
}

// normalize rewrites the numeric fields into canonical hex.
func (l *LogEntry) normalize() error {
	for _, q := range []*hexnum.Quantity{&l.BlockNumber, &l.LogIndex, &l.TransactionIndex} {
		if err := q.Normalize(); err != nil {
			return err
		}
	}
	return nil
}

// LogQuery is the parameter object of eth_getLogs.
type LogQuery struct {
	FromBlock hexnum.BlockRef `json:"fromBlock,omitempty"`
	ToBlock   hexnum.BlockRef `json:"toBlock,omitempty"`
	Address   string          `json:"address,omitempty"`
	Topics    []TopicPattern  `json:"topics,omitempty"`
}

// LogFilterParams is the parameter object of eth_newFilter.
type LogFilterParams struct {
	FromBlock hexnum.BlockRef `json:"fromBlock"`
	ToBlock   hexnum.BlockRef `json:"toBlock"`
	Address   string          `json:"address,omitempty"`
	Topics    []TopicPattern  `json:"topics"`
}

// withDefaults fills missing block bounds with latest and normalizes the address.
func (p LogFilterParams) withDefaults() LogFilterParams {
	if p.FromBlock == "" {
		p.FromBlock = hexnum.Latest
	}
	if p.ToBlock == "" {
		p.ToBlock = hexnum.Latest
	}
	p.Address = normalizeAddress(p.Address)
	if p.Topics == nil {
		p.Topics = []TopicPattern{}
	}
	return p
}

func normalizeAddress(addr string) string {
	if addr == "" {
		return ""
	}
	if common.IsHexAddress(addr) {
		return strings.ToLower(common.HexToAddress(addr).Hex())
	}
	return strings.ToLower(addr)
}

func normalizeTopic(topic string) string {
	raw := strings.TrimPrefix(strings.TrimPrefix(topic, "0x"), "0X")
	if len(raw) == 2*common.HashLength {
		return common.HexToHash(topic).Hex()
	}
	return strings.ToLower(topic)
}

// TopicPattern constrains one topic position. It decodes from null (wildcard), a single
// topic, or an array of topics where any member may be null.
type TopicPattern struct {
	Topics   []string
	Wildcard bool
}

func (p *TopicPattern) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = TopicPattern{}
	switch v := raw.(type) {
	case nil:
		p.Wildcard = true
	case string:
		p.Topics = []string{normalizeTopic(v)}
	case []interface{}:
		p.Topics = []string{}
		for i, item := range v {
			switch t := item.(type) {
			case nil:
				p.Wildcard = true
			case string:
				p.Topics = append(p.Topics, normalizeTopic(t))
			default:
				return fmt.Errorf("invalid topic at index %d", i)
			}
		}
	default:
		return fmt.Errorf("invalid topic pattern %s", string(data))
	}
	return nil
}

func (p TopicPattern) MarshalJSON() ([]byte, error) {
	switch {
	case p.Wildcard:
		return []byte("null"), nil
	case len(p.Topics) == 1:
		return json.Marshal(p.Topics[0])
	case p.Topics == nil:
		return []byte("[]"), nil
	}
	return json.Marshal(p.Topics)
}

// Matches reports whether topic satisfies the pattern.
func (p TopicPattern) Matches(topic string) bool {
	if p.Wildcard {
		return true
	}
	for _, t := range p.Topics {
		if strings.EqualFold(t, topic) {
			return true
		}
	}
	return false
}
