package worker_pool

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"time"

	"conn_server/metrics"
	"conn_server/server_error"

	"github.com/google/uuid"
)

func NewConnection(conn net.Conn, sequence uint64) *Connection {
	remoteAddr := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remoteAddr = addr.String()
	}

	return &Connection{
		Id:         uuid.New().String(),
		Sequence:   sequence,
		Conn:       conn,
		RemoteAddr: remoteAddr,
		AcceptedAt: time.Now(),
	}
}

// 여러 곳(worker, drain, acceptor의 drop)에서 호출되어도 socket은 한 번만 닫힌다.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})

	return c.closeErr
}

func (c *Connection) WorkerId() string {
	return c.workerId
}

// Draining은 pool이 drain을 시작하면 취소되는 context를 돌려준다.
// 요청 사이에서 쉬고 있는 keep-alive connection은 이 신호를 보고 먼저 정리할 수 있다.
// pool을 거치지 않은 connection은 취소되지 않는 context를 받는다.
func (c *Connection) Draining() context.Context {
	if c.draining == nil {
		return context.Background()
	}

	return c.draining
}

func New(options Options) *WorkerPool {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	if options.Metrics == nil {
		options.Metrics = metrics.Noop{}
	}

	if options.Processor == nil {
		options.Processor = ProcessorFunc(func(ctx context.Context, conn *Connection) error {
			return nil
		})
	}

	baseCtx, cancelAll := context.WithCancel(context.Background())
	drainCtx, beginDrain := context.WithCancel(context.Background())

	return &WorkerPool{
		options:    options,
		logger:     options.Logger,
		metrics:    options.Metrics,
		workers:    make(map[string]*Worker),
		queue:      newConnectionQueue(options.QueueCapacity),
		baseCtx:    baseCtx,
		cancelAll:  cancelAll,
		drainCtx:   drainCtx,
		beginDrain: beginDrain,
		drained:    make(chan EmptySignal),
	}
}

// Submit은 queue에 넣고 바로 반환한다. 처리 완료를 기다리지 않는다.
func (wp *WorkerPool) Submit(conn *Connection) error {
	switch poolState(wp.state.Load()) {
	case POOL_CREATED:
		return server_error.InvalidStatef("worker pool not started")
	case POOL_DRAINING, POOL_STOPPED:
		return server_error.Wrap(server_error.ErrDraining, "worker pool no longer accepts connections", nil)
	}

	if err := wp.queue.push(conn); err != nil {
		return err
	}

	wp.metrics.SetQueueDepth(wp.queue.len())

	return nil
}

func (wp *WorkerPool) Size() int {
	wp.mtx.Lock()
	defer wp.mtx.Unlock()

	return len(wp.workers)
}

func (wp *WorkerPool) GetAvailableWorkerCount() int {
	wp.mtx.Lock()
	defer wp.mtx.Unlock()

	count := 0

	for _, worker := range wp.workers {
		if worker.GetStatus() == IDLE {
			count++
		}
	}

	return count
}

func (wp *WorkerPool) BusyCount() int {
	return int(wp.busy.Load())
}

func (wp *WorkerPool) PeakBusy() int {
	return int(wp.peakBusy.Load())
}

func (wp *WorkerPool) QueueDepth() int {
	return wp.queue.len()
}

func (wp *WorkerPool) Processed() int64 {
	return wp.processed.Load()
}

func (wp *WorkerPool) Capacity() int {
	return wp.options.QueueCapacity
}

func (wp *WorkerPool) InFlight() []InFlightConnection {
	inFlight := make([]InFlightConnection, 0)

	wp.inFlight.Range(func(key, value any) bool {
		conn := value.(*Connection)
		inFlight = append(inFlight, InFlightConnection{
			Id:         conn.Id,
			Sequence:   conn.Sequence,
			RemoteAddr: conn.RemoteAddr,
			WorkerId:   conn.workerId,
			StartedAt:  conn.startedAt,
		})

		return true
	})

	sort.Slice(inFlight, func(i, j int) bool {
		return inFlight[i].Sequence < inFlight[j].Sequence
	})

	return inFlight
}

func (wp *WorkerPool) markBusy() {
	busy := wp.busy.Add(1)

	for {
		peak := wp.peakBusy.Load()
		if busy <= peak || wp.peakBusy.CompareAndSwap(peak, busy) {
			break
		}
	}

	wp.metrics.SetBusyWorkers(int(busy))
}

func (wp *WorkerPool) markIdle() {
	wp.metrics.SetBusyWorkers(int(wp.busy.Add(-1)))
}
