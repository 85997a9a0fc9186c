package acceptor

import (
	"errors"
	"net"
	"strconv"

	"conn_server/server_error"

	"golang.org/x/sys/unix"
)

// 같은 (address, port)에 두 번째 listener를 만들면 EADDRINUSE로 실패한다.
// SO_REUSEPORT는 일부러 켜지 않는다.
func MakeTCPListener(bindAddress string, port int) (net.Listener, error) {
	address := net.JoinHostPort(bindAddress, strconv.Itoa(port))

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, classifyListenError(address, err)
	}

	return listener, nil
}

func classifyListenError(address string, err error) error {
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
		return server_error.Wrap(server_error.ErrPermission, "listen on "+address, err)
	}

	// EADDRINUSE, EADDRNOTAVAIL, 잘못된 주소, 이름 해석 실패 모두 bind 에러로 본다.
	return server_error.Wrap(server_error.ErrBind, "listen on "+address, err)
}

var TRANSIENT_ACCEPT_ERRNOS = []unix.Errno{
	unix.EAGAIN,
	unix.EINTR,
	unix.ECONNABORTED,
	unix.ECONNRESET,
	unix.EMFILE,
	unix.ENFILE,
	unix.ENOBUFS,
	unix.ENOMEM,
	unix.EPROTO,
}

func IsTransientAcceptError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range TRANSIENT_ACCEPT_ERRNOS {
		if errors.Is(err, errno) {
			return true
		}
	}

	return false
}
