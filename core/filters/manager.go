package filters

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/AvaProtocol/ap-filters/metrics"
	"github.com/AvaProtocol/ap-filters/pkg/logger"
)

type ManagerOption struct {
	// MaxConcurrentFetches bounds the block requests of a single range fetch
	MaxConcurrentFetches int
	Metrics              metrics.MetricsGenerator
}

// Manager owns the installed filters and keeps them up to date with the chain head.
//
// Every head change runs one sweep that updates all filters while holding sweepMu.
// Request handlers pass through sweepMu as a barrier (lock, then unlock immediately) so
// they never read a filter halfway through a sweep, yet do not serialize each other.
type Manager struct {
	tracker BlockTracker
	query   ChainQuery
	fetcher *RangeFetcher

	logger  sdklogging.Logger
	metrics metrics.MetricsGenerator

	// sweeps run with this context, it is only cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	sweepMu sync.Mutex

	mu      sync.RWMutex
	filters map[uint64]Filter
	lastID  uint64
}

func NewManager(tracker BlockTracker, query ChainQuery, log sdklogging.Logger, opts *ManagerOption) *Manager {
	if opts == nil {
		opts = &ManagerOption{}
	}

	m := &Manager{
		tracker: tracker,
		query:   query,
		fetcher: NewRangeFetcher(query, opts.MaxConcurrentFetches),
		logger:  logger.EnsureLogger(log),
		metrics: opts.Metrics,
		filters: make(map[uint64]Filter),
	}
	if m.metrics == nil {
		m.metrics = metrics.NoopMetrics{}
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	return m
}

func (m *Manager) NewLogFilter(ctx context.Context, params LogFilterParams) (FilterID, error) {
	return m.Install(ctx, NewLogFilter(m.query, params))
}

func (m *Manager) NewBlockFilter(ctx context.Context) (FilterID, error) {
	return m.Install(ctx, NewBlockFilter(m.fetcher))
}

func (m *Manager) NewPendingTransactionFilter(ctx context.Context) (FilterID, error) {
	return m.Install(ctx, NewPendingTransactionFilter(m.fetcher))
}

// Install initializes f against the current head and registers it. The first filter
// subscribes the manager to the tracker.
func (m *Manager) Install(ctx context.Context, f Filter) (FilterID, error) {
	m.waitForSweep()

	currentBlock, err := m.tracker.LatestBlock(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get latest block: %w", err)
	}
	if err := f.Initialize(ctx, currentBlock); err != nil {
		return "", fmt.Errorf("failed to initialize %s filter: %w", f.Kind(), err)
	}

	m.mu.Lock()
	prevCount := len(m.filters)
	m.lastID++
	index := m.lastID
	m.filters[index] = f
	newCount := len(m.filters)
	m.updateTrackerSubs(prevCount, newCount)
	m.mu.Unlock()

	id := newFilterID(index)
	m.metrics.IncFilterInstalled(string(f.Kind()))
	m.metrics.SetFiltersActive(newCount)
	m.logger.Info("📥 Filter installed", "filter_id", id, "kind", f.Kind(), "current_block", currentBlock, "active_filters", newCount)

	return id, nil
}

// Uninstall removes the filter. A missing id is not an error, it reports false.
func (m *Manager) Uninstall(ctx context.Context, id FilterID) (bool, error) {
	m.waitForSweep()

	index, ok := id.index()
	if !ok {
		return false, nil
	}

	m.mu.Lock()
	if _, exists := m.filters[index]; !exists {
		m.mu.Unlock()
		m.logger.Debug("🤷 Filter not found for removal", "filter_id", id)
		return false, nil
	}
	prevCount := len(m.filters)
	delete(m.filters, index)
	newCount := len(m.filters)
	m.updateTrackerSubs(prevCount, newCount)
	m.mu.Unlock()

	m.metrics.SetFiltersActive(newCount)
	m.logger.Info("🗑️ Filter uninstalled", "filter_id", id, "active_filters", newCount)

	return true, nil
}

// UninstallAll drops every filter and the tracker subscription with them.
func (m *Manager) UninstallAll() {
	m.mu.Lock()
	prevCount := len(m.filters)
	m.filters = make(map[uint64]Filter)
	m.updateTrackerSubs(prevCount, 0)
	m.mu.Unlock()

	m.metrics.SetFiltersActive(0)
	if prevCount > 0 {
		m.logger.Info("🧹 All filters uninstalled", "count", prevCount)
	}
}

// FilterChanges returns the results produced since the previous call for id.
func (m *Manager) FilterChanges(ctx context.Context, id FilterID) (any, error) {
	m.waitForSweep()

	f, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return f.ChangesAndClear(), nil
}

// FilterLogs returns every result produced for id.
func (m *Manager) FilterLogs(ctx context.Context, id FilterID) (any, error) {
	m.waitForSweep()

	f, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return f.AllResults(), nil
}

// Count returns the number of installed filters.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.filters)
}

// Close uninstalls every filter and cancels any sweep still waiting on the chain.
func (m *Manager) Close() {
	m.UninstallAll()
	m.cancel()
}

// OnSync runs one sweep: every filter installed at this point gets Update called
// concurrently. A failing filter is logged and skipped for this tick, the others are
// unaffected, and nothing propagates out of the sweep.
func (m *Manager) OnSync(ev SyncEvent) {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("❌ Filter sweep aborted", "old_block", ev.OldBlock, "new_block", ev.NewBlock, "panic", r)
		}
	}()

	snapshot := m.snapshot()
	if len(snapshot) == 0 {
		return
	}

	start := time.Now()
	var wg sync.WaitGroup
	for index, f := range snapshot {
		wg.Add(1)
		go func(id FilterID, f Filter) {
			defer wg.Done()
			if err := m.updateFilter(f, ev); err != nil {
				m.metrics.IncUpdateFailure(string(f.Kind()))
				m.logger.Error("🔥 Filter update failed",
					"filter_id", id,
					"kind", f.Kind(),
					"old_block", ev.OldBlock,
					"new_block", ev.NewBlock,
					"error", err)
			}
		}(newFilterID(index), f)
	}
	wg.Wait()

	elapsed := time.Since(start)
	m.metrics.IncSweep()
	m.metrics.ObserveSweepDuration(elapsed)
	m.logger.Debug("✅ Filter sweep complete",
		"old_block", ev.OldBlock,
		"new_block", ev.NewBlock,
		"filters", len(snapshot),
		"elapsed", elapsed)
}

func (m *Manager) updateFilter(f Filter, ev SyncEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during update: %v", r)
		}
	}()
	return f.Update(m.ctx, ev.OldBlock, ev.NewBlock)
}

func (m *Manager) waitForSweep() {
	m.sweepMu.Lock()
	//nolint:staticcheck // empty critical section, this is a barrier
	m.sweepMu.Unlock()
}

func (m *Manager) get(id FilterID) (Filter, error) {
	index, ok := id.index()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	f, exists := m.filters[index]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}
	return f, nil
}

func (m *Manager) snapshot() map[uint64]Filter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[uint64]Filter, len(m.filters))
	for index, f := range m.filters {
		out[index] = f
	}
	return out
}

// updateTrackerSubs subscribes on the empty to non-empty transition and unsubscribes on
// the way back. Caller holds m.mu.
func (m *Manager) updateTrackerSubs(prevCount, newCount int) {
	if prevCount == 0 && newCount > 0 {
		m.tracker.OnSync(m)
		m.logger.Info("🔄 Subscribed to block tracker")
		return
	}
	if prevCount > 0 && newCount == 0 {
		m.tracker.RemoveSyncListener(m)
		m.logger.Info("⏹️ Unsubscribed from block tracker")
	}
}
