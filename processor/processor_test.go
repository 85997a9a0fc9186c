package processor

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"conn_server/worker_pool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mtx         sync.Mutex
	paths       []string
	remoteAddrs []string
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mtx.Lock()
	h.paths = append(h.paths, r.URL.Path)
	h.remoteAddrs = append(h.remoteAddrs, r.RemoteAddr)
	h.mtx.Unlock()

	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "hello "+r.URL.Path)
}

func (h *recordingHandler) served() []string {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	return append([]string(nil), h.paths...)
}

type session struct {
	client net.Conn
	reader *bufio.Reader
	result chan error
}

func startSession(t *testing.T, ctx context.Context, p *HTTPProcessor) *session {
	t.Helper()

	server, client := net.Pipe()
	conn := worker_pool.NewConnection(server, 1)
	result := make(chan error, 1)

	go func() {
		result <- p.Process(ctx, conn)
		conn.Close()
	}()

	t.Cleanup(func() { client.Close() })

	return &session{
		client: client,
		reader: bufio.NewReader(client),
		result: result,
	}
}

func (s *session) roundTrip(t *testing.T, raw string) *http.Response {
	t.Helper()

	_, err := io.WriteString(s.client, raw)
	require.NoError(t, err)

	response, err := http.ReadResponse(s.reader, nil)
	require.NoError(t, err)

	return response
}

func (s *session) wait(t *testing.T) error {
	t.Helper()

	select {
	case err := <-s.result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("processing did not finish")
		return nil
	}
}

func readBody(t *testing.T, response *http.Response) string {
	t.Helper()

	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	response.Body.Close()

	return string(body)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKeepAliveServesSequentialRequests(t *testing.T) {
	handler := &recordingHandler{}
	s := startSession(t, context.Background(), NewHTTPProcessor(handler, time.Second, time.Second, quietLogger()))

	first := s.roundTrip(t, "GET /first HTTP/1.1\r\nHost: test\r\n\r\n")
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, "hello /first", readBody(t, first))
	assert.False(t, first.Close)

	// handler가 읽지 않은 body는 버려지고 다음 request가 정상적으로 파싱되어야 한다.
	second := s.roundTrip(t, "POST /second HTTP/1.1\r\nHost: test\r\nContent-Length: 5\r\n\r\nabcde")
	assert.Equal(t, "hello /second", readBody(t, second))

	third := s.roundTrip(t, "GET /third HTTP/1.1\r\nHost: test\r\n\r\n")
	assert.Equal(t, "hello /third", readBody(t, third))

	s.client.Close()

	assert.NoError(t, s.wait(t))
	assert.Equal(t, []string{"/first", "/second", "/third"}, handler.served())
	assert.Equal(t, "pipe", handler.remoteAddrs[0])
}

func TestConnectionCloseEndsProcessing(t *testing.T) {
	handler := &recordingHandler{}
	s := startSession(t, context.Background(), NewHTTPProcessor(handler, time.Second, time.Second, quietLogger()))

	response := s.roundTrip(t, "GET /bye HTTP/1.1\r\nHost: test\r\nConnection: close\r\n\r\n")

	assert.True(t, response.Close)
	assert.Equal(t, "hello /bye", readBody(t, response))
	assert.NoError(t, s.wait(t))
}

func TestHTTP10WithoutKeepAliveServesOnce(t *testing.T) {
	handler := &recordingHandler{}
	s := startSession(t, context.Background(), NewHTTPProcessor(handler, time.Second, time.Second, quietLogger()))

	response := s.roundTrip(t, "GET /old HTTP/1.0\r\n\r\n")

	assert.True(t, response.Close)
	assert.NoError(t, s.wait(t))
	assert.Equal(t, []string{"/old"}, handler.served())
}

func TestMalformedRequestGetsBadRequest(t *testing.T) {
	handler := &recordingHandler{}
	s := startSession(t, context.Background(), NewHTTPProcessor(handler, time.Second, time.Second, quietLogger()))

	response := s.roundTrip(t, "NOT A REQUEST\r\n\r\n")

	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.True(t, response.Close)
	assert.Error(t, s.wait(t))
	assert.Empty(t, handler.served())
}

func TestIdleTimeoutEndsProcessing(t *testing.T) {
	s := startSession(t, context.Background(), NewHTTPProcessor(&recordingHandler{}, time.Second, 20*time.Millisecond, quietLogger()))

	response := s.roundTrip(t, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")
	readBody(t, response)

	assert.NoError(t, s.wait(t))
}

func TestCancelledContextInterruptsRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := startSession(t, ctx, NewHTTPProcessor(&recordingHandler{}, 0, 0, quietLogger()))

	time.Sleep(10 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, s.wait(t), context.Canceled)
}

func TestOversizedHeaderIsRejected(t *testing.T) {
	p := NewHTTPProcessor(&recordingHandler{}, time.Second, time.Second, quietLogger())
	p.maxHeaderBytes = 1024

	s := startSession(t, context.Background(), p)

	go io.WriteString(s.client, "GET / HTTP/1.1\r\nHost: test\r\nX-Padding: "+strings.Repeat("a", 16<<10)+"\r\n\r\n")

	response, err := http.ReadResponse(s.reader, nil)
	require.NoError(t, err)
	response.Body.Close()

	assert.Equal(t, http.StatusRequestHeaderFieldsTooLarge, response.StatusCode)
	assert.True(t, response.Close)
	assert.Error(t, s.wait(t))
}

func TestLargeBodyIsNotLimitedByHeaderSize(t *testing.T) {
	handler := &recordingHandler{}
	p := NewHTTPProcessor(handler, time.Second, time.Second, quietLogger())
	p.maxHeaderBytes = 1024

	s := startSession(t, context.Background(), p)

	body := strings.Repeat("b", 16<<10)
	raw := "POST /upload HTTP/1.1\r\nHost: test\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body

	go io.WriteString(s.client, raw)

	response, err := http.ReadResponse(s.reader, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "hello /upload", readBody(t, response))

	s.client.Close()
	assert.NoError(t, s.wait(t))
}

func TestDrainReleasesIdleKeepAliveConnection(t *testing.T) {
	handler := &recordingHandler{}

	wp := worker_pool.New(worker_pool.Options{
		Processor: NewHTTPProcessor(handler, time.Second, time.Minute, quietLogger()),
		Logger:    quietLogger(),
	})
	require.NoError(t, wp.Start(1))

	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	require.NoError(t, wp.Submit(worker_pool.NewConnection(server, 1)))

	reader := bufio.NewReader(client)

	_, err := io.WriteString(client, "GET /first HTTP/1.1\r\nHost: test\r\n\r\n")
	require.NoError(t, err)

	response, err := http.ReadResponse(reader, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello /first", readBody(t, response))
	assert.False(t, response.Close)

	require.Eventually(t, func() bool { return len(wp.InFlight()) == 1 }, time.Second, time.Millisecond)

	started := time.Now()
	report := wp.Drain(3 * time.Second)

	assert.Less(t, time.Since(started), time.Second)
	assert.False(t, report.TimedOut)
	assert.Zero(t, report.Cancelled)
	assert.Equal(t, int64(1), report.Processed)
	assert.Equal(t, []string{"/first"}, handler.served())
}

func TestDefaultHandler(t *testing.T) {
	handler := NewDefaultHandler()

	t.Run("root", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "ok\n", recorder.Body.String())
	})

	t.Run("everything else is not found", func(t *testing.T) {
		for _, path := range []string{"/missing", "/api/v1/users", "/static/app.js"} {
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusNotFound, recorder.Code, path)
			assert.True(t, strings.HasPrefix(recorder.Body.String(), "404"), path)
		}
	})
}
