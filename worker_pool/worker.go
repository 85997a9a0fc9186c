package worker_pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"conn_server/metrics"
)

func (w *Worker) GetStatus() WorkerStatus {
	return WorkerStatus(w.status.Load())
}

func (w *Worker) Processed() int64 {
	return w.processed.Load()
}

// queue가 닫히고 비워질 때까지 connection을 하나씩 꺼내 처리한다.
func (w *Worker) Work(wp *WorkerPool, initWorker *sync.WaitGroup) {
	defer wp.wg.Done()

	initWorker.Done()
	wp.logger.Debug("worker initialized", "workerId", w.Id)

	for {
		conn, ok := wp.queue.pop()
		if !ok {
			wp.logger.Debug("worker exited", "workerId", w.Id, "processed", w.Processed())
			return
		}

		wp.metrics.SetQueueDepth(wp.queue.len())
		w.handle(wp, conn)
	}
}

func (w *Worker) handle(wp *WorkerPool, conn *Connection) {
	w.status.Store(int32(WORKING))
	wp.markBusy()

	ctx, cancel := context.WithCancel(wp.baseCtx)
	conn.workerId = w.Id
	conn.startedAt = time.Now()
	conn.cancel = cancel
	conn.draining = wp.drainCtx

	wp.inFlight.Store(conn.Id, conn)

	// drain이 강제 취소를 끝낸 직후에 꺼낸 connection은 purge에도 inFlight 순회에도 잡히지 않으므로 여기서 센다.
	if wp.baseCtx.Err() != nil && conn.terminate() {
		wp.lateCancelled.Add(1)
	}

	result := w.process(ctx, wp, conn)

	wp.inFlight.Delete(conn.Id)
	cancel()

	if err := conn.Close(); err != nil && !conn.forced.Load() {
		wp.logger.Debug("connection close failed", "connectionId", conn.Id, "error", err)
	}

	elapsed := time.Since(conn.startedAt)
	wp.metrics.ConnectionProcessed(result, elapsed)

	if result != metrics.RESULT_CANCELLED {
		wp.processed.Add(1)
	}

	w.processed.Add(1)
	wp.markIdle()
	w.status.Store(int32(IDLE))

	wp.logger.Debug("connection processed", "connectionId", conn.Id, "workerId", w.Id, "result", result, "elapsed", elapsed)
}

// processor가 에러를 반환하거나 panic이 나도 worker는 죽지 않고 다음 connection으로 넘어간다.
func (w *Worker) process(ctx context.Context, wp *WorkerPool, conn *Connection) (result string) {
	defer CollectConnectionPanic(wp, w, conn, &result)()

	err := wp.options.Processor.Process(ctx, conn)

	switch {
	case conn.forced.Load():
		return metrics.RESULT_CANCELLED
	case err == nil:
		return metrics.RESULT_OK
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return metrics.RESULT_CANCELLED
	}

	wp.logger.Error("connection processing failed", "connectionId", conn.Id, "workerId", w.Id, "remoteAddr", conn.RemoteAddr, "error", err)

	return metrics.RESULT_ERROR
}
