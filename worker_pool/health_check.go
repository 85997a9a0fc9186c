package worker_pool

import (
	"context"
	"time"
)

// 일정 주기로 처리 중인 connection을 검사해 stallThreshold보다 오래 걸리는 것을 경고한다.
// ctx가 취소되면 종료된다.
func (wp *WorkerPool) HealthCheck(ctx context.Context, interval, stallThreshold time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.CheckHealth(stallThreshold)
		}
	}
}

func (wp *WorkerPool) CheckHealth(stallThreshold time.Duration) int {
	stalled := 0
	now := time.Now()

	for _, conn := range wp.InFlight() {
		if elapsed := now.Sub(conn.StartedAt); elapsed > stallThreshold {
			stalled++

			wp.logger.Warn("stalled connection discovered",
				"connectionId", conn.Id,
				"workerId", conn.WorkerId,
				"remoteAddr", conn.RemoteAddr,
				"elapsed", elapsed,
			)
		}
	}

	wp.metrics.SetStalledConnections(stalled)
	wp.metrics.SetBusyWorkers(wp.BusyCount())
	wp.metrics.SetQueueDepth(wp.QueueDepth())

	return stalled
}
