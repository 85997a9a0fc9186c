package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"conn_server/logger"
	"conn_server/server_error"
)

const (
	OVERFLOW_DROP  = "drop"
	OVERFLOW_BLOCK = "block"

	ACCEPT_ERROR_RETRY = "retry"
	ACCEPT_ERROR_EXIT  = "exit"
)

// 별도 설정이 없으면 현재 디렉토리에 warn 이상만 기록하고, 0.0.0.0:80에서 16개의 worker로 뜬다.
const (
	DEFAULT_LOG_PATH              = "./"
	DEFAULT_LOG_LEVEL             = "warn"
	DEFAULT_LOG_FORMAT            = logger.FORMAT_TEXT
	DEFAULT_BIND_ADDRESS          = "0.0.0.0"
	DEFAULT_PORT                  = 80
	DEFAULT_WORKER_COUNT          = 16
	DEFAULT_QUEUE_CAPACITY        = 0
	DEFAULT_OVERFLOW_POLICY       = OVERFLOW_DROP
	DEFAULT_OVERFLOW_WAIT         = 100 * time.Millisecond
	DEFAULT_ACCEPT_ERROR_POLICY   = ACCEPT_ERROR_EXIT
	DEFAULT_DRAIN_TIMEOUT         = 10 * time.Second
	DEFAULT_HEALTH_CHECK_INTERVAL = 10 * time.Second
	DEFAULT_STALL_THRESHOLD       = 30 * time.Second
	DEFAULT_READ_TIMEOUT          = 15 * time.Second
	DEFAULT_IDLE_TIMEOUT          = 60 * time.Second
)

// ServerConfig는 시작 시 한 번 만들어지고 값으로만 전달된다.
type ServerConfig struct {
	BindAddress         string
	Port                int
	WorkerCount         int
	LogLevel            logger.Level
	LogDestination      string
	LogFormat           string
	QueueCapacity       int
	OverflowPolicy      string
	OverflowWait        time.Duration
	AcceptErrorPolicy   string
	DrainTimeout        time.Duration
	AdminAddress        string
	HealthCheckInterval time.Duration
	StallThreshold      time.Duration
	ReadTimeout         time.Duration
	IdleTimeout         time.Duration
}

func Default() ServerConfig {
	level, _ := logger.ParseLevel(DEFAULT_LOG_LEVEL)

	return ServerConfig{
		BindAddress:         DEFAULT_BIND_ADDRESS,
		Port:                DEFAULT_PORT,
		WorkerCount:         DEFAULT_WORKER_COUNT,
		LogLevel:            level,
		LogDestination:      DEFAULT_LOG_PATH,
		LogFormat:           DEFAULT_LOG_FORMAT,
		QueueCapacity:       DEFAULT_QUEUE_CAPACITY,
		OverflowPolicy:      DEFAULT_OVERFLOW_POLICY,
		OverflowWait:        DEFAULT_OVERFLOW_WAIT,
		AcceptErrorPolicy:   DEFAULT_ACCEPT_ERROR_POLICY,
		DrainTimeout:        DEFAULT_DRAIN_TIMEOUT,
		HealthCheckInterval: DEFAULT_HEALTH_CHECK_INTERVAL,
		StallThreshold:      DEFAULT_STALL_THRESHOLD,
		ReadTimeout:         DEFAULT_READ_TIMEOUT,
		IdleTimeout:         DEFAULT_IDLE_TIMEOUT,
	}
}

func (c ServerConfig) ListenAddress() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// Validate는 어떤 자원도 열기 전에 호출되어야 한다.
func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.BindAddress) == "" {
		return server_error.Configf("bind address must not be empty")
	}

	if c.Port < 1 || c.Port > 65535 {
		return server_error.Configf("port %d out of range 1-65535", c.Port)
	}

	if c.WorkerCount < 1 {
		return server_error.Configf("worker count must be at least 1, got %d", c.WorkerCount)
	}

	if _, ok := knownLevels[c.LogLevel]; !ok {
		return server_error.Configf("unknown log level %s", c.LogLevel)
	}

	switch strings.ToLower(c.LogFormat) {
	case logger.FORMAT_TEXT, logger.FORMAT_JSON:
	default:
		return server_error.Configf("unknown log format %q", c.LogFormat)
	}

	if c.QueueCapacity < 0 {
		return server_error.Configf("queue capacity must not be negative, got %d", c.QueueCapacity)
	}

	if c.OverflowPolicy != OVERFLOW_DROP && c.OverflowPolicy != OVERFLOW_BLOCK {
		return server_error.Configf("unknown overflow policy %q", c.OverflowPolicy)
	}

	if c.OverflowWait < 0 {
		return server_error.Configf("overflow wait must not be negative")
	}

	if c.AcceptErrorPolicy != ACCEPT_ERROR_RETRY && c.AcceptErrorPolicy != ACCEPT_ERROR_EXIT {
		return server_error.Configf("unknown accept error policy %q", c.AcceptErrorPolicy)
	}

	if c.DrainTimeout <= 0 {
		return server_error.Configf("drain timeout must be positive")
	}

	if c.HealthCheckInterval <= 0 || c.StallThreshold <= 0 {
		return server_error.Configf("health check interval and stall threshold must be positive")
	}

	if c.ReadTimeout < 0 || c.IdleTimeout < 0 {
		return server_error.Configf("read and idle timeouts must not be negative")
	}

	if c.AdminAddress != "" {
		if _, _, err := net.SplitHostPort(c.AdminAddress); err != nil {
			return server_error.Configf("admin address %q: %v", c.AdminAddress, err)
		}
	}

	return nil
}

var knownLevels = map[logger.Level]struct{}{
	logger.LevelTrace: {},
	logger.LevelDebug: {},
	logger.LevelInfo:  {},
	logger.LevelWarn:  {},
	logger.LevelError: {},
	logger.LevelFatal: {},
}
