package acceptor

import (
	"errors"
	"net"
	"time"

	"conn_server/config"
	"conn_server/metrics"
	"conn_server/server_error"
	"conn_server/worker_pool"
)

func (a *Acceptor) acceptLoop() {
	defer close(a.done)

	var backoff time.Duration

	for {
		conn, err := a.listener.Accept()

		if err != nil {
			if a.stopped.Load() {
				return
			}

			if errors.Is(err, net.ErrClosed) {
				a.logger.Error("listener closed unexpectedly", "error", err)
				a.setErr(err)

				return
			}

			a.acceptErrors.Add(1)

			transient := IsTransientAcceptError(err)
			a.metrics.AcceptError(transient)

			if !transient && a.config.AcceptErrorPolicy != config.ACCEPT_ERROR_RETRY {
				a.logger.Error("accept failed, acceptor exiting", "error", err)
				a.setErr(err)

				return
			}

			backoff = nextBackoff(backoff, MIN_ACCEPT_BACKOFF, MAX_ACCEPT_BACKOFF)
			a.logger.Warn("temporary accept error", "error", err, "retryIn", backoff)

			select {
			case <-time.After(backoff):
			case <-a.stopSignal:
				return
			}

			continue
		}

		backoff = 0
		a.dispatch(conn)
	}
}

func nextBackoff(current, floor, ceiling time.Duration) time.Duration {
	if current == 0 {
		return floor
	}

	if current*2 > ceiling {
		return ceiling
	}

	return current * 2
}

// accept 순서대로 sequence를 붙여 submit한다. accept loop는 하나뿐이므로 submit 순서 = accept 순서.
func (a *Acceptor) dispatch(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(DEFAULT_KEEP_ALIVE)
	}

	connection := worker_pool.NewConnection(conn, a.sequence.Add(1))

	a.accepted.Add(1)
	a.metrics.ConnectionAccepted()

	err := a.submitter.Submit(connection)

	if errors.Is(err, server_error.ErrOverloaded) && a.config.OverflowPolicy == config.OVERFLOW_BLOCK {
		err = a.submitWithWait(connection)
	}

	if err != nil {
		a.drop(connection, err)
	}
}

func (a *Acceptor) submitWithWait(connection *worker_pool.Connection) error {
	deadline := time.Now().Add(a.config.OverflowWait)
	backoff := time.Duration(0)

	for {
		backoff = nextBackoff(backoff, MIN_OVERFLOW_BACKOFF, MAX_OVERFLOW_BACKOFF)

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return server_error.Wrap(server_error.ErrOverloaded, "queue still full after "+a.config.OverflowWait.String(), nil)
		}

		if backoff > remaining {
			backoff = remaining
		}

		select {
		case <-time.After(backoff):
		case <-a.stopSignal:
			return server_error.Wrap(server_error.ErrDraining, "acceptor stopped while waiting for queue space", nil)
		}

		err := a.submitter.Submit(connection)
		if !errors.Is(err, server_error.ErrOverloaded) {
			return err
		}
	}
}

// 버려지는 connection도 반드시 기록을 남긴다.
func (a *Acceptor) drop(connection *worker_pool.Connection, cause error) {
	reason := metrics.DROP_REJECTED

	switch {
	case errors.Is(cause, server_error.ErrOverloaded):
		reason = metrics.DROP_OVERLOADED
	case errors.Is(cause, server_error.ErrDraining):
		reason = metrics.DROP_DRAINING
	}

	a.dropped.Add(1)
	a.metrics.ConnectionDropped(reason)

	a.logger.Warn("connection dropped",
		"connectionId", connection.Id,
		"sequence", connection.Sequence,
		"remoteAddr", connection.RemoteAddr,
		"reason", reason,
		"error", cause,
	)

	connection.Close()
}
