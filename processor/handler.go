package processor

import (
	"io"
	"net/http"
)

// 업무용 route는 이 서버의 관심사가 아니다. 살아있다는 것만 알 수 있게 "/"만 응답하고 나머지는 모두 404.
func NewDefaultHandler() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok\n")
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return mux
}
