package worker_pool

import (
	"sync"

	"conn_server/server_error"
)

// 먼저 accept된 connection이 먼저 worker에게 배정된다(FIFO).
// lock은 slice 조작에만 걸고, connection 처리 중에는 잡지 않는다.
type connectionQueue struct {
	mtx      sync.Mutex
	cond     *sync.Cond
	items    []*Connection
	capacity int
	closed   bool
}

func newConnectionQueue(capacity int) *connectionQueue {
	q := &connectionQueue{
		items:    make([]*Connection, 0),
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mtx)

	return q
}

func (q *connectionQueue) push(conn *Connection) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return server_error.Wrap(server_error.ErrDraining, "worker pool no longer accepts connections", nil)
	}

	if q.capacity > 0 && len(q.items) >= q.capacity {
		return server_error.Wrap(server_error.ErrOverloaded, "work queue full", nil)
	}

	q.items = append(q.items, conn)
	q.cond.Signal()

	return nil
}

// queue가 닫히고 비어있으면 false를 반환한다. 닫힌 뒤에도 남은 항목은 계속 꺼낼 수 있다.
func (q *connectionQueue) pop() (*Connection, bool) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.items) == 0 {
		return nil, false
	}

	conn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	return conn, true
}

func (q *connectionQueue) close() {
	q.mtx.Lock()
	q.closed = true
	q.mtx.Unlock()

	q.cond.Broadcast()
}

func (q *connectionQueue) purge() []*Connection {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	purged := q.items
	q.items = make([]*Connection, 0)

	return purged
}

func (q *connectionQueue) len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return len(q.items)
}
