package main

import (
	"errors"
	"net"
	"strconv"
	"testing"

	"conn_server/server_error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeExitCodes(t *testing.T) {
	t.Run("help", func(t *testing.T) {
		assert.Equal(t, EXIT_OK, Initialize([]string{"conn_server", "--help"}))
	})

	t.Run("unparsable flag", func(t *testing.T) {
		assert.Equal(t, EXIT_CONFIG, Initialize([]string{"conn_server", "--port", "eighty"}))
	})

	t.Run("zero workers", func(t *testing.T) {
		assert.Equal(t, EXIT_CONFIG, Initialize([]string{"conn_server", "--worker-count", "0", "--log-path", t.TempDir()}))
	})

	t.Run("port already in use", func(t *testing.T) {
		occupied, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer occupied.Close()

		port := strconv.Itoa(occupied.Addr().(*net.TCPAddr).Port)

		assert.Equal(t, EXIT_FAILURE, Initialize([]string{
			"conn_server",
			"--bind-address", "127.0.0.1",
			"--port", port,
			"--log-path", t.TempDir(),
		}))
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, EXIT_OK, exitCode(nil))
	assert.Equal(t, EXIT_CONFIG, exitCode(server_error.Configf("bad port")))
	assert.Equal(t, EXIT_FAILURE, exitCode(server_error.Wrap(server_error.ErrBind, "listen", nil)))
	assert.Equal(t, EXIT_FAILURE, exitCode(errors.New("accept loop died")))
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "server failed to start", failureMessage(server_error.Wrap(server_error.ErrBind, "listen", nil)))
	assert.Equal(t, "server failed to start", failureMessage(server_error.Wrap(server_error.ErrIO, "open log", nil)))
	assert.Equal(t, "server stopped with error", failureMessage(errors.New("accept loop died")))
}
