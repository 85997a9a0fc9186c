package worker_pool

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"conn_server/metrics"
)

type WorkerStatus int32

const (
	IDLE WorkerStatus = iota + 1
	WORKING
)

type poolState int32

const (
	POOL_CREATED poolState = iota
	POOL_RUNNING
	POOL_DRAINING
	POOL_STOPPED
)

// boolean보다 효율적. 데이터 크기가 0임
type EmptySignal struct{}

var Signal = EmptySignal{}

type Processor interface {
	Process(ctx context.Context, conn *Connection) error
}

type ProcessorFunc func(ctx context.Context, conn *Connection) error

func (f ProcessorFunc) Process(ctx context.Context, conn *Connection) error {
	return f(ctx, conn)
}

// Connection은 acceptor에서 정확히 하나의 worker로 소유권이 넘어간다.
type Connection struct {
	Id         string
	Sequence   uint64
	Conn       net.Conn
	RemoteAddr string
	AcceptedAt time.Time

	workerId  string
	startedAt time.Time
	cancel    context.CancelFunc
	draining  context.Context
	forced    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type Worker struct {
	Id        string
	status    atomic.Int32
	processed atomic.Int64
}

type Options struct {
	// 0이면 queue에 제한이 없다.
	QueueCapacity int
	Processor     Processor
	Logger        *slog.Logger
	Metrics       metrics.Recorder
}

type DrainReport struct {
	Processed int64
	Cancelled int
	TimedOut  bool
	Elapsed   time.Duration
}

type InFlightConnection struct {
	Id         string
	Sequence   uint64
	RemoteAddr string
	WorkerId   string
	StartedAt  time.Time
}

type WorkerPool struct {
	mtx       sync.Mutex
	options   Options
	logger    *slog.Logger
	metrics   metrics.Recorder
	state     atomic.Int32
	workers   map[string]*Worker
	queue     *connectionQueue
	inFlight  sync.Map
	busy      atomic.Int32
	peakBusy  atomic.Int32
	processed atomic.Int64

	// drain 강제 취소 직후 worker가 스스로 취소한 connection 수
	lateCancelled atomic.Int32

	baseCtx    context.Context
	cancelAll  context.CancelFunc
	drainCtx   context.Context
	beginDrain context.CancelFunc
	wg         sync.WaitGroup
	drainOnce  sync.Once
	drained    chan EmptySignal
	report     DrainReport
}
