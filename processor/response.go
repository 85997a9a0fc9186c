package processor

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// responseWriter는 handler의 응답을 모아두었다가 Content-Length와 함께 한 번에 쓴다.
type responseWriter struct {
	request     *http.Request
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newResponseWriter(request *http.Request) *responseWriter {
	return &responseWriter{
		request: request,
		header:  make(http.Header),
	}
}

func (rw *responseWriter) Header() http.Header {
	return rw.header
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}

	rw.wroteHeader = true
	rw.status = statusCode
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	return rw.body.Write(b)
}

func (rw *responseWriter) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}

	return rw.status
}

func (rw *responseWriter) writeTo(w io.Writer, keepAlive bool) error {
	if rw.header.Get("Date") == "" {
		rw.header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}

	if rw.body.Len() > 0 && rw.header.Get("Content-Type") == "" {
		rw.header.Set("Content-Type", http.DetectContentType(rw.body.Bytes()))
	}

	rw.header.Del("Connection")

	response := &http.Response{
		StatusCode:    rw.statusCode(),
		ProtoMajor:    1,
		ProtoMinor:    1,
		Request:       rw.request,
		Header:        rw.header,
		Body:          io.NopCloser(&rw.body),
		ContentLength: int64(rw.body.Len()),
		Close:         !keepAlive,
	}

	return response.Write(w)
}
