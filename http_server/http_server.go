package http_server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang/snappy"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const CONTENT_TYPE_JSON = "application/json"
const CONTENT_TYPE_PROTOBUF = "application/x-protobuf"
const CONTENT_ENCODING_SNAPPY = "snappy"

// Lifecycle은 admin server가 들여다보고 조작할 수 있는 server의 범위다.
// Snapshot의 값은 structpb로 변환 가능한 타입(string, 숫자, bool, []any, map[string]any)만 담아야 한다.
type Lifecycle interface {
	Snapshot() map[string]any
	Running() bool
	Shutdown()
}

func NewServer(lifecycle Lifecycle, metricsHandler http.Handler, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}

	server := http.NewServeMux()

	// 서버 상태를 조회하기 위한 간단한 핸들러
	// protobuf를 요청하면 structpb로 직렬화한 뒤 snappy로 압축해 보낸다.
	server.HandleFunc("GET /server-state", func(w http.ResponseWriter, r *http.Request) {
		snapshot := lifecycle.Snapshot()

		if strings.Contains(r.Header.Get("Accept"), CONTENT_TYPE_PROTOBUF) {
			writeProtobufSnapshot(w, snapshot, logger)
			return
		}

		body, err := json.Marshal(snapshot)
		if err != nil {
			logger.Error("server state encoding failed", "format", "json", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, "server state encoding failed")

			return
		}

		w.Header().Set("Content-Type", CONTENT_TYPE_JSON)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})

	server.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")

		if !lifecycle.Running() {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, "not running")

			return
		}

		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})

	if metricsHandler != nil {
		server.Handle("GET /metrics", metricsHandler)
	}

	// 실제 종료는 controller가 비동기로 진행한다. 응답은 요청이 접수되었다는 의미뿐이다.
	server.HandleFunc("POST /shutdown", func(w http.ResponseWriter, r *http.Request) {
		logger.Warn("shutdown requested through admin server", "remoteAddr", r.RemoteAddr)

		lifecycle.Shutdown()

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, "shutdown requested")
	})

	return server
}

func writeProtobufSnapshot(w http.ResponseWriter, snapshot map[string]any, logger *slog.Logger) {
	message, err := structpb.NewStruct(snapshot)
	if err != nil {
		logger.Error("server state encoding failed", "format", "protobuf", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "server state encoding failed")

		return
	}

	encoded, err := proto.Marshal(message)
	if err != nil {
		logger.Error("server state encoding failed", "format", "protobuf", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "server state encoding failed")

		return
	}

	w.Header().Set("Content-Type", CONTENT_TYPE_PROTOBUF)
	w.Header().Set("Content-Encoding", CONTENT_ENCODING_SNAPPY)
	w.WriteHeader(http.StatusOK)
	w.Write(snappy.Encode(nil, encoded))
}

// DecodeSnapshot은 protobuf로 받은 server state를 다시 map으로 되돌린다.
func DecodeSnapshot(body []byte) (map[string]any, error) {
	decoded, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, err
	}

	message := new(structpb.Struct)

	if err := proto.Unmarshal(decoded, message); err != nil {
		return nil, err
	}

	return message.AsMap(), nil
}
