package worker_pool

import (
	"time"

	"conn_server/metrics"
)

// 강제 취소 후 worker들이 빠져나오기를 기다리는 최대 시간
const FORCE_EXIT_GRACE = time.Second

// Drain은 새 connection을 더 받지 않고, timeout까지 queue와 처리 중인 connection이 끝나기를 기다린다.
// timeout이 지나면 남은 것을 모두 강제로 취소하고 그 수를 보고한다. 두 번째 호출은 첫 결과를 그대로 반환한다.
func (wp *WorkerPool) Drain(timeout time.Duration) DrainReport {
	wp.drainOnce.Do(func() {
		defer close(wp.drained)

		started := time.Now()

		wp.mtx.Lock()
		wasRunning := wp.state.CompareAndSwap(int32(POOL_RUNNING), int32(POOL_DRAINING))
		if !wasRunning {
			wp.state.Store(int32(POOL_STOPPED))
		}
		wp.mtx.Unlock()

		wp.queue.close()
		wp.beginDrain()

		if !wasRunning {
			wp.cancelAll()
			return
		}

		wp.logger.Info("worker pool draining", "queued", wp.queue.len(), "busy", wp.BusyCount(), "timeout", timeout)

		workersExited := make(chan EmptySignal)

		go func() {
			wp.wg.Wait()
			close(workersExited)
		}()

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-workersExited:

		case <-timer.C:
			wp.report.TimedOut = true
			wp.report.Cancelled = wp.cancelRemaining()

			select {
			case <-workersExited:
			case <-time.After(FORCE_EXIT_GRACE):
				wp.logger.Error("workers did not exit after forced cancellation", "busy", wp.BusyCount())
			}
		}

		wp.cancelAll()
		wp.state.Store(int32(POOL_STOPPED))

		wp.report.Cancelled += int(wp.lateCancelled.Load())
		wp.report.Processed = wp.processed.Load()
		wp.report.Elapsed = time.Since(started)

		wp.logger.Info("worker pool drained",
			"processed", wp.report.Processed,
			"cancelled", wp.report.Cancelled,
			"timedOut", wp.report.TimedOut,
			"elapsed", wp.report.Elapsed,
		)
	})

	<-wp.drained

	return wp.report
}

func (wp *WorkerPool) cancelRemaining() int {
	purged := wp.queue.purge()

	for _, conn := range purged {
		conn.forced.Store(true)
		conn.Close()
		wp.metrics.ConnectionProcessed(metrics.RESULT_CANCELLED, 0)
	}

	wp.metrics.SetQueueDepth(0)

	// 이후에 worker가 막 꺼낸 connection도 이미 취소된 context를 받는다.
	wp.cancelAll()
	terminated := wp.terminateInFlight()

	wp.logger.Warn("drain timeout exceeded, cancelling remaining connections", "queued", len(purged), "inFlight", terminated)

	return len(purged) + terminated
}

func (wp *WorkerPool) Drained() <-chan EmptySignal {
	return wp.drained
}
