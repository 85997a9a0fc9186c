package config

import (
	"errors"
	"strings"

	"conn_server/logger"
	"conn_server/server_error"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "SERVER"

const (
	KEY_CONFIG_FILE           = "config"
	KEY_LOG_PATH              = "log-path"
	KEY_LOG_LEVEL             = "log-level"
	KEY_LOG_FORMAT            = "log-format"
	KEY_BIND_ADDRESS          = "bind-address"
	KEY_PORT                  = "port"
	KEY_WORKER_COUNT          = "worker-count"
	KEY_QUEUE_CAPACITY        = "queue-capacity"
	KEY_OVERFLOW_POLICY       = "overflow-policy"
	KEY_OVERFLOW_WAIT         = "overflow-wait"
	KEY_ACCEPT_ERROR_POLICY   = "accept-error-policy"
	KEY_DRAIN_TIMEOUT         = "drain-timeout"
	KEY_ADMIN_ADDRESS         = "admin-address"
	KEY_HEALTH_CHECK_INTERVAL = "health-check-interval"
	KEY_STALL_THRESHOLD       = "stall-threshold"
	KEY_READ_TIMEOUT          = "read-timeout"
	KEY_IDLE_TIMEOUT          = "idle-timeout"
)

func newFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)

	flags.String(KEY_CONFIG_FILE, "", "path to a yaml/json/toml config file")
	flags.String(KEY_LOG_PATH, DEFAULT_LOG_PATH, "log file, directory, or stdout/stderr")
	flags.String(KEY_LOG_LEVEL, DEFAULT_LOG_LEVEL, "minimum log level (trace|debug|info|warn|error|fatal)")
	flags.String(KEY_LOG_FORMAT, DEFAULT_LOG_FORMAT, "log line format (text|json)")
	flags.String(KEY_BIND_ADDRESS, DEFAULT_BIND_ADDRESS, "interface the listener binds")
	flags.Int(KEY_PORT, DEFAULT_PORT, "TCP port the listener binds")
	flags.Int(KEY_WORKER_COUNT, DEFAULT_WORKER_COUNT, "number of connection workers")
	flags.Int(KEY_QUEUE_CAPACITY, DEFAULT_QUEUE_CAPACITY, "work queue capacity, 0 for unbounded")
	flags.String(KEY_OVERFLOW_POLICY, DEFAULT_OVERFLOW_POLICY, "what to do when the queue is full (drop|block)")
	flags.Duration(KEY_OVERFLOW_WAIT, DEFAULT_OVERFLOW_WAIT, "how long the block policy waits for queue space")
	flags.String(KEY_ACCEPT_ERROR_POLICY, DEFAULT_ACCEPT_ERROR_POLICY, "unclassified accept errors (retry|exit)")
	flags.Duration(KEY_DRAIN_TIMEOUT, DEFAULT_DRAIN_TIMEOUT, "how long shutdown waits for in-flight connections")
	flags.String(KEY_ADMIN_ADDRESS, "", "admin http address (state, health, metrics); empty disables it")
	flags.Duration(KEY_HEALTH_CHECK_INTERVAL, DEFAULT_HEALTH_CHECK_INTERVAL, "interval of the stalled connection check")
	flags.Duration(KEY_STALL_THRESHOLD, DEFAULT_STALL_THRESHOLD, "processing time after which a connection is reported as stalled")
	flags.Duration(KEY_READ_TIMEOUT, DEFAULT_READ_TIMEOUT, "per request read timeout of the default processor")
	flags.Duration(KEY_IDLE_TIMEOUT, DEFAULT_IDLE_TIMEOUT, "keep-alive idle timeout of the default processor")

	return flags
}

// Load는 flag > 환경변수(SERVER_*) > 설정 파일 > 기본값 순서로 값을 결정한다.
func Load(name string, args []string) (ServerConfig, error) {
	flags := newFlagSet(name)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ServerConfig{}, err
		}

		return ServerConfig{}, server_error.Configf("parse flags: %v", err)
	}

	v := viper.New()
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return ServerConfig{}, server_error.Configf("bind flags: %v", err)
	}

	if file := v.GetString(KEY_CONFIG_FILE); file != "" {
		v.SetConfigFile(file)

		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, server_error.Configf("read config file %s: %v", file, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (ServerConfig, error) {
	level, err := logger.ParseLevel(v.GetString(KEY_LOG_LEVEL))
	if err != nil {
		return ServerConfig{}, err
	}

	cfg := ServerConfig{
		BindAddress:         v.GetString(KEY_BIND_ADDRESS),
		Port:                v.GetInt(KEY_PORT),
		WorkerCount:         v.GetInt(KEY_WORKER_COUNT),
		LogLevel:            level,
		LogDestination:      v.GetString(KEY_LOG_PATH),
		LogFormat:           strings.ToLower(v.GetString(KEY_LOG_FORMAT)),
		QueueCapacity:       v.GetInt(KEY_QUEUE_CAPACITY),
		OverflowPolicy:      strings.ToLower(v.GetString(KEY_OVERFLOW_POLICY)),
		OverflowWait:        v.GetDuration(KEY_OVERFLOW_WAIT),
		AcceptErrorPolicy:   strings.ToLower(v.GetString(KEY_ACCEPT_ERROR_POLICY)),
		DrainTimeout:        v.GetDuration(KEY_DRAIN_TIMEOUT),
		AdminAddress:        v.GetString(KEY_ADMIN_ADDRESS),
		HealthCheckInterval: v.GetDuration(KEY_HEALTH_CHECK_INTERVAL),
		StallThreshold:      v.GetDuration(KEY_STALL_THRESHOLD),
		ReadTimeout:         v.GetDuration(KEY_READ_TIMEOUT),
		IdleTimeout:         v.GetDuration(KEY_IDLE_TIMEOUT),
	}

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}

	return cfg, nil
}
