package processor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"conn_server/logger"
	"conn_server/worker_pool"
)

const READ_BUFFER_SIZE = 4096
const WRITE_BUFFER_SIZE = 4096

// request line과 header를 합친 최대 크기
const MAX_HEADER_BYTES = http.DefaultMaxHeaderBytes

// HTTPProcessor는 하나의 connection 위에서 HTTP/1.1 request를 순서대로 읽고 handler에 넘긴다.
// keep-alive가 유지되는 동안 같은 worker가 connection을 계속 점유한다.
type HTTPProcessor struct {
	handler        http.Handler
	readTimeout    time.Duration
	idleTimeout    time.Duration
	maxHeaderBytes int64
	logger         *slog.Logger
}

func NewHTTPProcessor(handler http.Handler, readTimeout, idleTimeout time.Duration, log *slog.Logger) *HTTPProcessor {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	if log == nil {
		log = slog.Default()
	}

	return &HTTPProcessor{
		handler:        handler,
		readTimeout:    readTimeout,
		idleTimeout:    idleTimeout,
		maxHeaderBytes: MAX_HEADER_BYTES,
		logger:         log,
	}
}

func (p *HTTPProcessor) Process(ctx context.Context, conn *worker_pool.Connection) error {
	// ctx가 취소되면 막혀있는 Read/Write를 즉시 깨운다.
	stop := context.AfterFunc(ctx, func() {
		conn.Conn.SetDeadline(time.Now())
	})
	defer stop()

	// header를 읽는 동안만 읽을 수 있는 양을 제한하고, body는 제한 없이 읽는다.
	limited := &io.LimitedReader{R: conn.Conn}
	reader := bufio.NewReaderSize(limited, READ_BUFFER_SIZE)
	writer := bufio.NewWriterSize(conn.Conn, WRITE_BUFFER_SIZE)

	for served := 0; ; served++ {
		// bufio가 미리 읽어두는 만큼 여유를 둔다.
		limited.N = p.maxHeaderBytes + READ_BUFFER_SIZE

		if served > 0 {
			idle, err := p.waitNextRequest(ctx, conn, reader)
			if err != nil {
				return p.finish(ctx, err)
			}

			// drain이 시작되었는데 다음 request가 없으면 처리할 일이 없는 connection이다.
			if idle {
				return nil
			}
		}

		if err := setReadDeadline(conn.Conn, p.readTimeout); err != nil {
			return p.finish(ctx, err)
		}

		// deadline을 다시 설정한 뒤에 확인해야 취소 신호를 덮어쓰지 않는다.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		request, err := http.ReadRequest(reader)
		if err != nil {
			if limited.N <= 0 {
				writeErrorResponse(writer, http.StatusRequestHeaderFieldsTooLarge)
				return fmt.Errorf("read request from %s: header exceeds %d bytes", conn.RemoteAddr, p.maxHeaderBytes)
			}

			if isConnectionGone(err) || ctx.Err() != nil {
				return p.finish(ctx, err)
			}

			writeErrorResponse(writer, http.StatusBadRequest)
			return fmt.Errorf("read request from %s: %w", conn.RemoteAddr, err)
		}

		limited.N = math.MaxInt64

		keepAlive, err := p.serve(ctx, conn, request, writer)
		if err != nil {
			return p.finish(ctx, err)
		}

		if !keepAlive {
			return nil
		}
	}
}

// 다음 request의 첫 byte는 idle timeout까지 기다린다. 기다리는 도중 pool이 drain을 시작하면
// 읽기를 깨우고 true를 돌려준다. 이미 도착한 request는 그대로 처리한다.
func (p *HTTPProcessor) waitNextRequest(ctx context.Context, conn *worker_pool.Connection, reader *bufio.Reader) (bool, error) {
	if err := setReadDeadline(conn.Conn, p.idleTimeout); err != nil {
		return false, err
	}

	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	draining := conn.Draining()
	interrupted := make(chan worker_pool.EmptySignal)

	stop := context.AfterFunc(draining, func() {
		conn.Conn.SetReadDeadline(time.Now())
		close(interrupted)
	})

	_, err := reader.Peek(1)

	// 깨우는 함수가 이미 돌기 시작했다면 끝날 때까지 기다려야 뒤에서 설정할 deadline을 덮어쓰지 않는다.
	if !stop() {
		<-interrupted
	}

	if err != nil && draining.Err() != nil && ctx.Err() == nil && reader.Buffered() == 0 {
		return true, nil
	}

	return false, err
}

func (p *HTTPProcessor) serve(ctx context.Context, conn *worker_pool.Connection, request *http.Request, writer *bufio.Writer) (bool, error) {
	request.RemoteAddr = conn.RemoteAddr
	request = request.WithContext(ctx)

	response := newResponseWriter(request)
	p.handler.ServeHTTP(response, request)

	// 읽지 않은 body가 남아있으면 다음 request를 파싱할 수 없다.
	if _, err := io.Copy(io.Discard, request.Body); err != nil {
		return false, err
	}
	request.Body.Close()

	// drain 중에는 응답을 끝으로 connection을 닫는다.
	keepAlive := !request.Close && response.header.Get("Connection") != "close" && conn.Draining().Err() == nil

	if err := response.writeTo(writer, keepAlive); err != nil {
		return false, err
	}

	if err := writer.Flush(); err != nil {
		return false, err
	}

	p.logger.Log(ctx, logger.LevelTrace, "request served",
		"connectionId", conn.Id,
		"workerId", conn.WorkerId(),
		"method", request.Method,
		"path", request.URL.Path,
		"status", response.statusCode(),
	)

	return keepAlive, nil
}

// 상대가 연결을 끊었거나 idle timeout에 도달한 것은 정상 종료다.
// worker가 취소했다면 ctx의 error를 돌려줘야 취소로 집계된다.
func (p *HTTPProcessor) finish(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if isConnectionGone(err) {
		return nil
	}

	return err
}

func setReadDeadline(conn net.Conn, timeout time.Duration) error {
	if timeout <= 0 {
		return conn.SetReadDeadline(time.Time{})
	}

	return conn.SetReadDeadline(time.Now().Add(timeout))
}

func isConnectionGone(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

func writeErrorResponse(writer *bufio.Writer, status int) {
	text := http.StatusText(status)

	fmt.Fprintf(writer, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nConnection: close\r\nContent-Length: %d\r\n\r\n%s", status, text, len(text), text)
	writer.Flush()
}
