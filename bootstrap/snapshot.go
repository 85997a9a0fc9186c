package bootstrap

import (
	"time"

	"conn_server/logger"
)

// Snapshot은 admin server가 JSON 또는 protobuf Struct로 내보내는 server 상태다.
// structpb가 받아들일 수 있도록 slice는 []any, 시간은 RFC3339 문자열로 담는다.
func (c *Controller) Snapshot() map[string]any {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	history := make([]any, 0, len(c.history))
	for _, state := range c.history {
		history = append(history, state.String())
	}

	snapshot := map[string]any{
		"state":   c.State().String(),
		"history": history,
		"config": map[string]any{
			"listenAddress":     c.config.ListenAddress(),
			"workerCount":       c.config.WorkerCount,
			"queueCapacity":     c.config.QueueCapacity,
			"overflowPolicy":    c.config.OverflowPolicy,
			"acceptErrorPolicy": c.config.AcceptErrorPolicy,
			"logLevel":          logger.LevelName(c.config.LogLevel),
			"drainTimeoutMs":    c.config.DrainTimeout.Milliseconds(),
		},
	}

	if !c.startedAt.IsZero() {
		snapshot["startedAt"] = c.startedAt.Format(time.RFC3339)
		snapshot["uptimeSeconds"] = time.Since(c.startedAt).Seconds()
	}

	if c.pool != nil {
		inFlight := make([]any, 0)

		for _, conn := range c.pool.InFlight() {
			inFlight = append(inFlight, map[string]any{
				"id":         conn.Id,
				"sequence":   conn.Sequence,
				"remoteAddr": conn.RemoteAddr,
				"workerId":   conn.WorkerId,
				"startedAt":  conn.StartedAt.Format(time.RFC3339Nano),
			})
		}

		// queueCapacity가 0이면 제한 없음
		snapshot["workers"] = map[string]any{
			"size":          c.pool.Size(),
			"idle":          c.pool.GetAvailableWorkerCount(),
			"busy":          c.pool.BusyCount(),
			"peakBusy":      c.pool.PeakBusy(),
			"processed":     c.pool.Processed(),
			"queueDepth":    c.pool.QueueDepth(),
			"queueCapacity": c.pool.Capacity(),
		}
		snapshot["inFlight"] = inFlight
	}

	if c.acceptor != nil {
		stats := c.acceptor.Stats()
		address := ""

		if addr := c.acceptor.Addr(); addr != nil {
			address = addr.String()
		}

		snapshot["acceptor"] = map[string]any{
			"address":      address,
			"accepted":     stats.Accepted,
			"dropped":      stats.Dropped,
			"acceptErrors": stats.AcceptErrors,
		}
	}

	if c.State() == STOPPED && c.pool != nil {
		snapshot["drain"] = map[string]any{
			"processed": c.drainReport.Processed,
			"cancelled": c.drainReport.Cancelled,
			"timedOut":  c.drainReport.TimedOut,
			"elapsedMs": c.drainReport.Elapsed.Milliseconds(),
		}
	}

	return snapshot
}
