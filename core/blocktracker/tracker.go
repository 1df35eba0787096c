// Package blocktracker polls the upstream node for its head block and notifies sync
// listeners whenever it moves. Polling only runs while at least one listener is attached.
package blocktracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/event"
	gocron "github.com/go-co-op/gocron/v2"

	"github.com/AvaProtocol/ap-filters/core/filters"
	"github.com/AvaProtocol/ap-filters/pkg/logger"
)

const DefaultPollInterval = 4 * time.Second

// HeadSource returns the current head block number in canonical hex.
type HeadSource interface {
	BlockNumber(ctx context.Context) (string, error)
}

type TrackerOption struct {
	PollInterval time.Duration
}

type listener struct {
	ch  chan filters.SyncEvent
	sub event.Subscription
}

// Tracker implements filters.BlockTracker. Each listener gets its own goroutine, so a
// slow listener delays the next poll but never another listener's current event.
type Tracker struct {
	source   HeadSource
	logger   sdklogging.Logger
	interval time.Duration

	scheduler gocron.Scheduler
	feed      event.Feed

	mu        sync.Mutex
	latest    string
	lastSync  string
	listeners map[filters.SyncListener]*listener
	job       gocron.Job
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewTracker(source HeadSource, log sdklogging.Logger, opts *TrackerOption) (*Tracker, error) {
	if opts == nil {
		opts = &TrackerOption{}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	scheduler.Start()

	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		source:    source,
		logger:    logger.EnsureLogger(log),
		interval:  interval,
		scheduler: scheduler,
		listeners: make(map[filters.SyncListener]*listener),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// LatestBlock returns the last polled head while polling runs, otherwise it asks the
// node directly.
func (t *Tracker) LatestBlock(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.job != nil && t.latest != "" {
		latest := t.latest
		t.mu.Unlock()
		return latest, nil
	}
	t.mu.Unlock()

	head, err := t.source.BlockNumber(ctx)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	t.latest = head
	t.mu.Unlock()
	return head, nil
}

// OnSync attaches l. Attaching the first listener starts polling.
func (t *Tracker) OnSync(l filters.SyncListener) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.listeners[l]; exists {
		return
	}

	ch := make(chan filters.SyncEvent, 1)
	sub := t.feed.Subscribe(ch)
	t.listeners[l] = &listener{ch: ch, sub: sub}
	go t.deliver(l, ch, sub)

	if len(t.listeners) == 1 {
		t.startPolling()
	}
}

// RemoveSyncListener detaches l without waiting for an event it may be handling.
// Removing the last listener stops polling.
func (t *Tracker) RemoveSyncListener(l filters.SyncListener) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.listeners[l]
	if !exists {
		return
	}
	entry.sub.Unsubscribe()
	delete(t.listeners, l)

	if len(t.listeners) == 0 {
		t.stopPolling()
	}
}

// ListenerCount returns the number of attached listeners.
func (t *Tracker) ListenerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// IsRunning reports whether the poll job is scheduled.
func (t *Tracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job != nil
}

func (t *Tracker) Stop() error {
	t.mu.Lock()
	for l, entry := range t.listeners {
		entry.sub.Unsubscribe()
		delete(t.listeners, l)
	}
	t.stopPolling()
	t.mu.Unlock()

	t.cancel()
	return t.scheduler.Shutdown()
}

func (t *Tracker) deliver(l filters.SyncListener, ch <-chan filters.SyncEvent, sub event.Subscription) {
	for {
		select {
		case ev := <-ch:
			l.OnSync(ev)
		case <-sub.Err():
			return
		}
	}
}

// startPolling schedules the poll job. Caller holds t.mu.
func (t *Tracker) startPolling() {
	// the first event after a (re)start carries no previous block
	t.lastSync = ""

	job, err := t.scheduler.NewJob(
		gocron.DurationJob(t.interval),
		gocron.NewTask(func() {
			if err := t.Poll(t.ctx); err != nil {
				t.logger.Warn("⚠️ Failed to poll head block", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		t.logger.Error("❌ Failed to schedule head polling", "error", err)
		return
	}
	t.job = job
	t.logger.Info("▶️ Block tracker started", "interval", t.interval)
}

// stopPolling removes the poll job. Caller holds t.mu.
func (t *Tracker) stopPolling() {
	if t.job == nil {
		return
	}
	if err := t.scheduler.RemoveJob(t.job.ID()); err != nil {
		t.logger.Error("failed to remove poll job", "error", err)
	}
	t.job = nil
	t.logger.Info("⏸️ Block tracker stopped")
}

// Poll fetches the head once and notifies listeners when it differs from the last
// notified block.
func (t *Tracker) Poll(ctx context.Context) error {
	head, err := t.source.BlockNumber(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.latest = head
	if head == t.lastSync {
		t.mu.Unlock()
		return nil
	}
	ev := filters.SyncEvent{OldBlock: t.lastSync, NewBlock: head}
	t.lastSync = head
	t.mu.Unlock()

	sent := t.feed.Send(ev)
	t.logger.Debug("🧱 New head block", "old_block", ev.OldBlock, "new_block", ev.NewBlock, "listeners", sent)
	return nil
}
