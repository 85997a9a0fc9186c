package server_error

import (
	"errors"
	"fmt"
)

// 모든 에러는 아래 종류 중 하나로 감싸서 반환한다.
// 호출자는 errors.Is로 종류와 원인(OS errno 등)을 모두 확인할 수 있다.
var (
	ErrConfig       = errors.New("config error")
	ErrBind         = errors.New("bind error")
	ErrPermission   = errors.New("permission error")
	ErrIO           = errors.New("io error")
	ErrOverloaded   = errors.New("overloaded")
	ErrDraining     = errors.New("draining")
	ErrInvalidState = errors.New("invalid state")
)

func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", kind, op)
	}

	return fmt.Errorf("%w: %s: %w", kind, op, cause)
}

func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// 시작 단계에서 발생하면 프로세스를 종료해야 하는 에러인지 판별한다.
func IsFatalStartup(err error) bool {
	return errors.Is(err, ErrConfig) ||
		errors.Is(err, ErrBind) ||
		errors.Is(err, ErrPermission) ||
		errors.Is(err, ErrIO)
}
