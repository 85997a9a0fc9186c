package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"conn_server/acceptor"
	"conn_server/config"
	"conn_server/http_server"
	"conn_server/logger"
	"conn_server/metrics"
	"conn_server/processor"
	"conn_server/server_error"
	"conn_server/worker_pool"
)

// admin server가 진행 중인 요청을 마무리하도록 기다리는 최대 시간
const ADMIN_SHUTDOWN_TIMEOUT = 3 * time.Second

type Option func(*Controller)

// processor를 지정하지 않으면 handler 위에서 동작하는 HTTP/1.1 processor를 쓴다.
func WithProcessor(p worker_pool.Processor) Option {
	return func(c *Controller) {
		c.processor = p
	}
}

func WithHandler(handler http.Handler) Option {
	return func(c *Controller) {
		c.handler = handler
	}
}

// Controller는 logger, worker pool, acceptor를 순서대로 띄우고 역순으로 내린다.
// 상태는 전역이 아니라 controller마다 따로 가진다.
// logger sink가 열리기 전의 기록은 버린다.
type Controller struct {
	mtx       sync.Mutex
	config    config.ServerConfig
	processor worker_pool.Processor
	handler   http.Handler
	metrics   *metrics.Prometheus

	state   atomic.Int32
	history []State

	sink     *logger.Sink
	logger   *slog.Logger
	pool     *worker_pool.WorkerPool
	acceptor *acceptor.Acceptor
	admin    *http_server.AdminServer

	ready          chan worker_pool.EmptySignal
	shutdownSignal chan worker_pool.EmptySignal
	shutdownOnce   sync.Once
	startedAt      time.Time
	drainReport    worker_pool.DrainReport
}

func NewController(cfg config.ServerConfig, options ...Option) *Controller {
	c := &Controller{
		config:         cfg,
		metrics:        metrics.NewPrometheus(STATE_NAMES...),
		history:        []State{CREATED},
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		ready:          make(chan worker_pool.EmptySignal),
		shutdownSignal: make(chan worker_pool.EmptySignal),
	}

	for _, option := range options {
		option(c)
	}

	c.metrics.SetState(CREATED.String())

	return c
}

// Run은 server를 띄우고 ctx가 취소되거나 Shutdown이 호출되거나 accept loop가 죽을 때까지 막혀 있다.
// 반환될 때 state는 항상 Stopped다. 단, 설정이 잘못된 경우에는 아무것도 열지 않고 Created로 남는다.
func (c *Controller) Run(ctx context.Context) error {
	c.mtx.Lock()

	if state := c.State(); state != CREATED {
		c.mtx.Unlock()
		return server_error.InvalidStatef("controller cannot run from state %s", state)
	}

	if err := c.config.Validate(); err != nil {
		c.mtx.Unlock()
		return err
	}

	c.transitionLocked(STARTING)
	c.mtx.Unlock()

	if err := c.start(); err != nil {
		c.teardown(err)
		return err
	}

	c.mtx.Lock()
	c.startedAt = time.Now()
	c.transitionLocked(RUNNING)
	c.mtx.Unlock()

	close(c.ready)

	healthCtx, stopHealthCheck := context.WithCancel(context.Background())
	var healthCheck sync.WaitGroup

	healthCheck.Add(1)
	go func() {
		defer healthCheck.Done()
		c.pool.HealthCheck(healthCtx, c.config.HealthCheckInterval, c.config.StallThreshold)
	}()

	runErr := c.startAdminServer()

	if runErr == nil {
		runErr = c.wait(ctx)
	}

	stopHealthCheck()
	healthCheck.Wait()

	c.drain()

	return runErr
}

func (c *Controller) start() error {
	sink, err := logger.Init(c.config.LogDestination, c.config.LogLevel, c.config.LogFormat)
	if err != nil {
		return err
	}

	c.mtx.Lock()
	c.sink = sink
	c.logger = sink.Logger()
	c.mtx.Unlock()

	c.logger.Info("server starting",
		"listenAddress", c.config.ListenAddress(),
		"workerCount", c.config.WorkerCount,
		"logDestination", sink.Path(),
	)

	if c.processor == nil {
		handler := c.handler
		if handler == nil {
			handler = processor.NewDefaultHandler()
		}

		c.processor = processor.NewHTTPProcessor(handler, c.config.ReadTimeout, c.config.IdleTimeout, c.logger)
	}

	pool := worker_pool.New(worker_pool.Options{
		QueueCapacity: c.config.QueueCapacity,
		Processor:     c.processor,
		Logger:        c.logger,
		Metrics:       c.metrics,
	})

	c.mtx.Lock()
	c.pool = pool
	c.mtx.Unlock()

	if err := pool.Start(c.config.WorkerCount); err != nil {
		return err
	}

	if pool.GetAvailableWorkerCount() != c.config.WorkerCount {
		return server_error.InvalidStatef("worker pool initialization failed. initialized count: %d, expected count: %d", pool.Size(), c.config.WorkerCount)
	}

	connectionAcceptor := acceptor.New(acceptor.Config{
		BindAddress:       c.config.BindAddress,
		Port:              c.config.Port,
		OverflowPolicy:    c.config.OverflowPolicy,
		OverflowWait:      c.config.OverflowWait,
		AcceptErrorPolicy: c.config.AcceptErrorPolicy,
		Logger:            c.logger,
		Metrics:           c.metrics,
	}, pool)

	if err := connectionAcceptor.Start(); err != nil {
		return err
	}

	c.mtx.Lock()
	c.acceptor = connectionAcceptor
	c.mtx.Unlock()

	return nil
}

// 시작 도중 실패하면 이미 띄운 것만 역순으로 내린다.
func (c *Controller) teardown(cause error) {
	c.mtx.Lock()
	sink, pool, connectionAcceptor := c.sink, c.pool, c.acceptor
	c.mtx.Unlock()

	c.logger.Log(context.Background(), logger.LevelFatal, "server failed to start", "error", cause)

	if connectionAcceptor != nil {
		connectionAcceptor.Stop()
	}

	if pool != nil {
		pool.Drain(c.config.DrainTimeout)
	}

	if sink != nil {
		sink.Shutdown()
	}

	c.mtx.Lock()
	c.transitionLocked(STOPPED)
	c.mtx.Unlock()
}

func (c *Controller) startAdminServer() error {
	if c.config.AdminAddress == "" {
		return nil
	}

	admin := http_server.NewAdminServer(c.config.AdminAddress, http_server.NewServer(c, c.metrics.Handler(), c.logger), c.logger)

	if err := admin.Start(); err != nil {
		c.logger.Error("admin server failed to start", "error", err)
		return err
	}

	c.mtx.Lock()
	c.admin = admin
	c.mtx.Unlock()

	return nil
}

func (c *Controller) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		c.logger.Info("shutdown signal received", "cause", context.Cause(ctx))
		return nil

	case <-c.shutdownSignal:
		c.logger.Info("shutdown requested")
		return nil

	case <-c.acceptor.Done():
		err := c.acceptor.Err()
		if err == nil {
			err = server_error.InvalidStatef("accept loop exited unexpectedly")
		}

		c.logger.Log(context.Background(), logger.LevelFatal, "accept loop died", "error", err)

		return fmt.Errorf("accept loop: %w", err)
	}
}

// acceptor를 먼저 멈춰 새 connection을 막고, pool을 비운 다음, logger는 맨 마지막에 닫는다.
func (c *Controller) drain() {
	c.mtx.Lock()
	c.transitionLocked(DRAINING)
	admin := c.admin
	c.mtx.Unlock()

	c.acceptor.Stop()

	report := c.pool.Drain(c.config.DrainTimeout)

	if admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ADMIN_SHUTDOWN_TIMEOUT)
		admin.Stop(ctx)
		cancel()
	}

	stats := c.acceptor.Stats()

	c.logger.Info("server stopped",
		"accepted", stats.Accepted,
		"dropped", stats.Dropped,
		"processed", report.Processed,
		"cancelled", report.Cancelled,
		"drainTimedOut", report.TimedOut,
	)

	if err := c.sink.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "log shutdown failed: %s\n", err)
	}

	c.mtx.Lock()
	c.drainReport = report
	c.transitionLocked(STOPPED)
	c.mtx.Unlock()
}

func (c *Controller) transitionLocked(next State) {
	previous := State(c.state.Swap(int32(next)))
	c.history = append(c.history, next)
	c.metrics.SetState(next.String())

	c.logger.Info("lifecycle state changed", "from", previous.String(), "to", next.String())
}

// Shutdown은 종료를 요청만 하고 바로 반환한다. 완료는 Run의 반환으로 알 수 있다.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownSignal)
	})
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) Running() bool {
	return c.State() == RUNNING
}

func (c *Controller) History() []State {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return append([]State(nil), c.history...)
}

func (c *Controller) Ready() <-chan worker_pool.EmptySignal {
	return c.ready
}

func (c *Controller) Addr() net.Addr {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.acceptor == nil {
		return nil
	}

	return c.acceptor.Addr()
}

func (c *Controller) AdminAddr() net.Addr {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.admin == nil {
		return nil
	}

	return c.admin.Addr()
}

func (c *Controller) DrainReport() worker_pool.DrainReport {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.drainReport
}

func (c *Controller) Metrics() *metrics.Prometheus {
	return c.metrics
}
