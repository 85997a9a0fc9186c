package http_server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"conn_server/server_error"
)

const ADMIN_READ_HEADER_TIMEOUT = 5 * time.Second

type AdminServer struct {
	address  string
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewAdminServer(address string, handler http.Handler, logger *slog.Logger) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}

	return &AdminServer{
		address: address,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: ADMIN_READ_HEADER_TIMEOUT,
		},
		logger: logger,
	}
}

// bind 실패를 호출자가 바로 알 수 있도록 listen은 동기로, serve만 goroutine에서 한다.
func (s *AdminServer) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return server_error.Wrap(server_error.ErrBind, "admin server listen on "+s.address, err)
	}

	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Info("admin server listening", "addr", listener.Addr().String())

		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server error", "error", err)
		}
	}()

	return nil
}

func (s *AdminServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

func (s *AdminServer) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	err := s.server.Shutdown(ctx)
	if err != nil {
		s.logger.Error("admin server shutdown error", "error", err)
		s.server.Close()
	}

	s.wg.Wait()
	s.logger.Info("admin server stopped")

	return err
}
