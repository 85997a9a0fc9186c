package acceptor

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"conn_server/config"
	"conn_server/metrics"
	"conn_server/server_error"
	"conn_server/worker_pool"
)

const (
	DEFAULT_KEEP_ALIVE   = 3 * time.Minute
	MIN_ACCEPT_BACKOFF   = 5 * time.Millisecond
	MAX_ACCEPT_BACKOFF   = time.Second
	MIN_OVERFLOW_BACKOFF = time.Millisecond
	MAX_OVERFLOW_BACKOFF = 50 * time.Millisecond
)

type Submitter interface {
	Submit(conn *worker_pool.Connection) error
}

type Config struct {
	BindAddress       string
	Port              int
	OverflowPolicy    string
	OverflowWait      time.Duration
	AcceptErrorPolicy string
	Logger            *slog.Logger
	Metrics           metrics.Recorder
}

type Stats struct {
	Accepted     uint64
	Dropped      uint64
	AcceptErrors uint64
}

type Acceptor struct {
	mtx          sync.Mutex
	config       Config
	logger       *slog.Logger
	metrics      metrics.Recorder
	submitter    Submitter
	listener     net.Listener
	started      bool
	stopped      atomic.Bool
	stopOnce     sync.Once
	stopSignal   chan worker_pool.EmptySignal
	done         chan worker_pool.EmptySignal
	err          error
	sequence     atomic.Uint64
	accepted     atomic.Uint64
	dropped      atomic.Uint64
	acceptErrors atomic.Uint64
}

func New(cfg Config, submitter Submitter) *Acceptor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}

	if cfg.OverflowPolicy == "" {
		cfg.OverflowPolicy = config.OVERFLOW_DROP
	}

	if cfg.AcceptErrorPolicy == "" {
		cfg.AcceptErrorPolicy = config.ACCEPT_ERROR_EXIT
	}

	return &Acceptor{
		config:     cfg,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		submitter:  submitter,
		stopSignal: make(chan worker_pool.EmptySignal),
		done:       make(chan worker_pool.EmptySignal),
	}
}

// Start는 listener를 동기적으로 bind하고, accept loop는 별도 goroutine에서 돈다.
func (a *Acceptor) Start() error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.started || a.stopped.Load() {
		return server_error.InvalidStatef("acceptor already started or stopped")
	}

	listener, err := MakeTCPListener(a.config.BindAddress, a.config.Port)
	if err != nil {
		return err
	}

	a.serve(listener)

	return nil
}

func (a *Acceptor) serve(listener net.Listener) {
	a.listener = listener
	a.started = true

	a.logger.Info("listening", "address", listener.Addr().String())

	go a.acceptLoop()
}

// Stop은 listener를 닫고 accept loop가 끝날 때까지 기다린다. 이미 submit된 connection은 건드리지 않는다.
// 두 번째 호출부터는 아무것도 하지 않는다.
func (a *Acceptor) Stop() error {
	a.stopOnce.Do(func() {
		a.mtx.Lock()
		a.stopped.Store(true)
		close(a.stopSignal)

		if !a.started {
			close(a.done)
			a.mtx.Unlock()

			return
		}

		if err := a.listener.Close(); err != nil {
			a.logger.Debug("listener close returned error", "error", err)
		}
		a.mtx.Unlock()

		<-a.done

		stats := a.Stats()
		a.logger.Info("acceptor stopped", "accepted", stats.Accepted, "dropped", stats.Dropped)
	})

	return nil
}

func (a *Acceptor) Addr() net.Addr {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.listener == nil {
		return nil
	}

	return a.listener.Addr()
}

// accept loop가 끝나면 닫힌다. Stop에 의한 종료가 아니면 Err()에 원인이 남는다.
func (a *Acceptor) Done() <-chan worker_pool.EmptySignal {
	return a.done
}

func (a *Acceptor) Err() error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.err
}

func (a *Acceptor) Stats() Stats {
	return Stats{
		Accepted:     a.accepted.Load(),
		Dropped:      a.dropped.Load(),
		AcceptErrors: a.acceptErrors.Load(),
	}
}

func (a *Acceptor) setErr(err error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.err = err
}
