package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"conn_server/bootstrap"
	"conn_server/config"
	"conn_server/server_error"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

// Initialize는 설정을 읽고 controller를 돌린 뒤 종료 코드를 돌려준다.
// SIGINT, SIGTERM, SIGHUP 모두 graceful shutdown으로 처리한다.
func Initialize(args []string) int {
	cfg, err := config.Load(args[0], args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return EXIT_OK
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", err)
		return EXIT_CONFIG
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
	defer stop()

	controller := bootstrap.NewController(cfg)

	if err := controller.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", failureMessage(err), err)
		return exitCode(err)
	}

	return EXIT_OK
}

func failureMessage(err error) string {
	if server_error.IsFatalStartup(err) {
		return "server failed to start"
	}

	return "server stopped with error"
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return EXIT_OK
	case errors.Is(err, server_error.ErrConfig):
		return EXIT_CONFIG
	default:
		return EXIT_FAILURE
	}
}
