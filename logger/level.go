package logger

import (
	"log/slog"
	"strings"

	"conn_server/server_error"
)

type Level = slog.Level

// slog의 기본 레벨 사이 간격(4)을 그대로 유지한다.
const (
	LevelTrace Level = slog.LevelDebug - 4
	LevelDebug Level = slog.LevelDebug
	LevelInfo  Level = slog.LevelInfo
	LevelWarn  Level = slog.LevelWarn
	LevelError Level = slog.LevelError
	LevelFatal Level = slog.LevelError + 4
)

var levelNames = map[Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}

	return LevelInfo, server_error.Configf("unknown log level %q", name)
}

func LevelName(level Level) string {
	if name, ok := levelNames[level]; ok {
		return name
	}

	return level.String()
}

// slog는 기본적으로 "DEBUG-4", "ERROR+4"처럼 출력하므로 커스텀 레벨의 이름을 바꿔준다.
func replaceLevelAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 || attr.Key != slog.LevelKey {
		return attr
	}

	level, ok := attr.Value.Any().(slog.Level)
	if !ok {
		return attr
	}

	return slog.String(slog.LevelKey, LevelName(level))
}
