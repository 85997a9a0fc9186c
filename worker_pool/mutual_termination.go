package worker_pool

import (
	"fmt"
	"runtime/debug"

	"conn_server/metrics"
)

// processor에서 난 panic을 회수한다. 반드시 defer CollectConnectionPanic(...)() 형태로 호출해야
// 반환된 함수 안의 recover가 동작한다.
func CollectConnectionPanic(wp *WorkerPool, worker *Worker, conn *Connection, result *string) func() {
	return func() {
		if r := recover(); r != nil {
			wp.logger.Error("connection processing panicked",
				"connectionId", conn.Id,
				"workerId", worker.Id,
				"remoteAddr", conn.RemoteAddr,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)

			*result = metrics.RESULT_PANIC
		}
	}
}

// context 취소와 socket close를 함께 해야 context를 보지 않고 Read에서 막혀 있는 processor도 풀려난다.
func (c *Connection) terminate() bool {
	if !c.forced.CompareAndSwap(false, true) {
		return false
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.Close()

	return true
}

func (wp *WorkerPool) terminateInFlight() int {
	terminated := 0

	wp.inFlight.Range(func(key, value any) bool {
		if value.(*Connection).terminate() {
			terminated++
		}

		return true
	})

	return terminated
}
