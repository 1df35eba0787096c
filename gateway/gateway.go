package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/rpc"
	gocron "github.com/go-co-op/gocron/v2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AvaProtocol/ap-filters/core/blocktracker"
	"github.com/AvaProtocol/ap-filters/core/chainio/ethquery"
	"github.com/AvaProtocol/ap-filters/core/config"
	"github.com/AvaProtocol/ap-filters/core/filters"
	"github.com/AvaProtocol/ap-filters/metrics"
	"github.com/AvaProtocol/ap-filters/version"
)

type gatewayStatus string

const (
	initStatus     gatewayStatus = "init"
	runningStatus  gatewayStatus = "running"
	shutdownStatus gatewayStatus = "shutdown"

	uptimeInterval = 10 * time.Second
)

// Gateway serves the filter JSON-RPC API over HTTP on top of one upstream node.
type Gateway struct {
	config *config.Config
	logger sdklogging.Logger

	manager   *filters.Manager
	rpcServer *rpc.Server
	echo      *echo.Echo

	registry  *prometheus.Registry
	metrics   metrics.MetricsGenerator
	scheduler gocron.Scheduler

	sentryEnabled bool

	// closers release the upstream connection and tracker, in order
	closers   []func() error
	closeOnce sync.Once
	closeErr  error

	statusMu sync.RWMutex
	status   gatewayStatus
}

// New dials the upstream node and wires the tracker, manager and servers around it.
func New(ctx context.Context, c *config.Config) (*Gateway, error) {
	client, err := ethquery.Dial(ctx, c.EthRpcUrl, c.Logger, &ethquery.ClientOption{
		RequestTimeout:  c.RequestTimeout,
		CacheLifeWindow: c.CacheLifeWindow,
	})
	if err != nil {
		return nil, err
	}

	tracker, err := blocktracker.NewTracker(client, c.Logger, &blocktracker.TrackerOption{
		PollInterval: c.PollInterval,
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	g, err := newGateway(c, client, tracker)
	if err != nil {
		_ = tracker.Stop()
		client.Close()
		return nil, err
	}
	g.closers = append(g.closers, tracker.Stop, func() error {
		client.Close()
		return nil
	})
	return g, nil
}

func newGateway(c *config.Config, query filters.ChainQuery, tracker filters.BlockTracker) (*Gateway, error) {
	g := &Gateway{
		config:   c,
		logger:   c.Logger,
		registry: prometheus.NewRegistry(),
		metrics:  metrics.NoopMetrics{},
		status:   initStatus,
	}

	if c.EnableMetrics {
		g.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		g.metrics = metrics.NewFilterMetrics(g.registry)
	}

	g.manager = filters.NewManager(tracker, query, c.Logger, &filters.ManagerOption{
		MaxConcurrentFetches: c.MaxConcurrentFetches,
		Metrics:              g.metrics,
	})

	g.rpcServer = rpc.NewServer()
	if err := g.rpcServer.RegisterName(c.RpcNamespace, NewFilterAPI(g.manager)); err != nil {
		return nil, fmt.Errorf("failed to register filter api: %w", err)
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	g.scheduler = scheduler
	g.scheduler.Start()

	g.sentryEnabled = g.initSentry()
	g.echo = g.newHttpServer()

	return g, nil
}

func (g *Gateway) setStatus(s gatewayStatus) {
	g.statusMu.Lock()
	defer g.statusMu.Unlock()
	g.status = s
}

func (g *Gateway) getStatus() gatewayStatus {
	g.statusMu.RLock()
	defer g.statusMu.RUnlock()
	return g.status
}

func (g *Gateway) IsShutdown() bool {
	return g.getStatus() == shutdownStatus
}

// Start begins serving on the configured bind address. It returns once the listener
// goroutine is running.
func (g *Gateway) Start(ctx context.Context) error {
	g.logger.Infof("Starting filter gateway %s", version.Get())

	if _, err := g.scheduler.NewJob(
		gocron.DurationJob(uptimeInterval),
		gocron.NewTask(func() {
			g.metrics.AddUptime(float64(uptimeInterval.Milliseconds()))
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("failed to schedule uptime job: %w", err)
	}

	addr := g.config.HttpBindAddress
	g.logger.Info("🚀 HTTP server listening", "address", addr, "rpc_namespace", g.config.RpcNamespace)
	goSafe(func() {
		if err := g.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("HTTP server stopped", "address", addr, "error", err)
		}
	})

	g.setStatus(runningStatus)
	return nil
}

// Close stops serving, uninstalls every filter and releases the upstream connection.
// Only the first call does any work.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		g.closeErr = g.shutdown()
	})
	return g.closeErr
}

func (g *Gateway) shutdown() error {
	g.setStatus(shutdownStatus)
	g.logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := g.echo.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	g.manager.Close()
	if err := g.scheduler.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	for _, closer := range g.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	g.rpcServer.Stop()

	if g.sentryEnabled {
		sentryFlushSafely()
	}
	return errors.Join(errs...)
}

// RunWithConfig starts a gateway and blocks until SIGINT or SIGTERM.
func RunWithConfig(c *config.Config) error {
	g, err := New(context.Background(), c)
	if err != nil {
		return err
	}
	if err := g.Start(context.Background()); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	return g.Close()
}
