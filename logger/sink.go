package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"conn_server/server_error"
)

// 디렉토리가 destination으로 주어지면 그 안에 이 이름으로 파일을 만든다.
const DEFAULT_FILE_NAME = "server.log"

const (
	FORMAT_TEXT = "text"
	FORMAT_JSON = "json"
)

type Sink struct {
	path     string
	minLevel Level
	file     *os.File
	writer   *guardedWriter
	logger   *slog.Logger
	once     sync.Once
	closeErr error
}

// Shutdown 이후에 들어오는 기록은 닫힌 파일에 쓰지 않고 버린다.
type guardedWriter struct {
	mtx    sync.Mutex
	out    io.Writer
	closed bool
}

func (w *guardedWriter) Write(p []byte) (int, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.closed {
		return len(p), nil
	}

	return w.out.Write(p)
}

func (w *guardedWriter) close() {
	w.mtx.Lock()
	w.closed = true
	w.mtx.Unlock()
}

func Init(destination string, minLevel Level, format string) (*Sink, error) {
	out, file, path, err := openDestination(destination)
	if err != nil {
		return nil, err
	}

	writer := &guardedWriter{out: out}
	options := &slog.HandlerOptions{
		Level:       minLevel,
		ReplaceAttr: replaceLevelAttr,
	}

	var handler slog.Handler

	switch strings.ToLower(format) {
	case "", FORMAT_TEXT:
		handler = slog.NewTextHandler(writer, options)
	case FORMAT_JSON:
		handler = slog.NewJSONHandler(writer, options)
	default:
		if file != nil {
			file.Close()
		}

		return nil, server_error.Configf("unknown log format %q", format)
	}

	return &Sink{
		path:     path,
		minLevel: minLevel,
		file:     file,
		writer:   writer,
		logger:   slog.New(handler),
	}, nil
}

func openDestination(destination string) (io.Writer, *os.File, string, error) {
	switch destination {
	case "", "-", "stdout":
		return os.Stdout, nil, "stdout", nil
	case "stderr":
		return os.Stderr, nil, "stderr", nil
	}

	path := destination

	if info, err := os.Stat(destination); err == nil && info.IsDir() {
		path = filepath.Join(destination, DEFAULT_FILE_NAME)
	} else if strings.HasSuffix(destination, string(filepath.Separator)) {
		return nil, nil, "", server_error.Wrap(server_error.ErrIO, "log directory "+destination, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, "", server_error.Wrap(server_error.ErrIO, "open log destination "+path, err)
	}

	return file, file, path, nil
}

func (s *Sink) Log(level Level, message string, args ...any) {
	s.logger.Log(context.Background(), level, message, args...)
}

func (s *Sink) Enabled(level Level) bool {
	return level >= s.minLevel
}

func (s *Sink) Logger() *slog.Logger {
	return s.logger
}

func (s *Sink) Path() string {
	return s.path
}

func (s *Sink) Shutdown() error {
	s.once.Do(func() {
		s.writer.close()

		if s.file == nil {
			return
		}

		if err := s.file.Sync(); err != nil {
			s.closeErr = server_error.Wrap(server_error.ErrIO, "sync log destination", err)
		}

		if err := s.file.Close(); err != nil && s.closeErr == nil {
			s.closeErr = server_error.Wrap(server_error.ErrIO, "close log destination", err)
		}
	})

	return s.closeErr
}
