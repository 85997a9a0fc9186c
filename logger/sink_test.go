package logger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"conn_server/server_error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	lines := make([]string, 0)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	require.NoError(t, scanner.Err())

	return lines
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warning", LevelWarn},
		{" warn ", LevelWarn},
		{"error", LevelError},
		{"Fatal", LevelFatal},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}

	_, err := ParseLevel("verbose")
	assert.ErrorIs(t, err, server_error.ErrConfig)
}

func TestSinkThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	sink, err := Init(path, LevelWarn, FORMAT_TEXT)
	require.NoError(t, err)

	sink.Log(LevelTrace, "trace message")
	sink.Log(LevelInfo, "info message")
	sink.Log(LevelWarn, "warn message", "port", 8080)
	sink.Log(LevelFatal, "fatal message")

	require.NoError(t, sink.Shutdown())

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	assert.Contains(t, lines[0], "level=WARN")
	assert.Contains(t, lines[0], `msg="warn message"`)
	assert.Contains(t, lines[0], "port=8080")
	assert.Contains(t, lines[0], "time=")
	assert.Contains(t, lines[1], "level=FATAL")

	assert.False(t, sink.Enabled(LevelInfo))
	assert.True(t, sink.Enabled(LevelError))
}

func TestSinkDirectoryDestination(t *testing.T) {
	dir := t.TempDir()

	sink, err := Init(dir, LevelTrace, FORMAT_JSON)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DEFAULT_FILE_NAME), sink.Path())

	sink.Log(LevelTrace, "hello")
	require.NoError(t, sink.Shutdown())

	lines := readLines(t, sink.Path())
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"level":"TRACE"`)
}

func TestSinkUnwritableDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "nested", "app.log")

	_, err := Init(path, LevelInfo, FORMAT_TEXT)
	assert.ErrorIs(t, err, server_error.ErrIO)

	_, err = Init(filepath.Join(t.TempDir(), "absent")+string(filepath.Separator), LevelInfo, FORMAT_TEXT)
	assert.ErrorIs(t, err, server_error.ErrIO)
}

func TestSinkUnknownFormat(t *testing.T) {
	_, err := Init(filepath.Join(t.TempDir(), "app.log"), LevelInfo, "xml")
	assert.ErrorIs(t, err, server_error.ErrConfig)
}

// 여러 goroutine이 동시에 기록해도 한 줄이 다른 줄과 섞이지 않아야 한다.
func TestSinkConcurrentLinesAreAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	sink, err := Init(path, LevelInfo, FORMAT_TEXT)
	require.NoError(t, err)

	const writers, perWriter = 8, 200
	payload := strings.Repeat("x", 512)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			for i := 0; i < perWriter; i++ {
				sink.Log(LevelInfo, "line", "writer", id, "seq", i, "payload", payload)
			}
		}(w)
	}

	wg.Wait()
	require.NoError(t, sink.Shutdown())

	lines := readLines(t, path)
	require.Len(t, lines, writers*perWriter)

	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "time="), line)
		assert.True(t, strings.HasSuffix(line, "payload="+payload), line)
	}
}

func TestSinkShutdownIsIdempotentAndDropsLateRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	sink, err := Init(path, LevelInfo, FORMAT_TEXT)
	require.NoError(t, err)

	sink.Log(LevelInfo, "before")
	require.NoError(t, sink.Shutdown())
	require.NoError(t, sink.Shutdown())

	sink.Log(LevelError, "after")
	sink.Logger().Error(fmt.Sprintf("after %d", 2))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "before")
}
