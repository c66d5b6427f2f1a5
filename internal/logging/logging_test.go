package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithUser(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	WithUser(base, "user123").Info("test message")

	output := buf.String()
	assert.Contains(t, output, "user_id=user123")
	assert.Contains(t, output, "test message")
}

func TestWithUser_NilLogger(t *testing.T) {
	assert.Nil(t, WithUser(nil, "user123"))
}

func TestWithConversation(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	WithConversation(base, "karti_database", "conv-1").Info("reply")
	assert.Contains(t, buf.String(), "agent_id=karti_database")
	assert.Contains(t, buf.String(), "conversation_id=conv-1")

	buf.Reset()
	WithConversation(base, "karti_database", "").Info("reply")
	assert.NotContains(t, buf.String(), "conversation_id")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestInitialize_ComponentFilter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Initialize(Config{Level: "debug", Console: &buf, Components: []string{"session"}}))
	t.Cleanup(func() { _ = Initialize(Config{Console: os.Stderr}) })

	Client().Info("from client")
	Session().Info("from session")

	output := buf.String()
	assert.NotContains(t, output, "from client")
	assert.Contains(t, output, "from session")
	assert.Contains(t, output, "component=session")
}

func TestInitialize_LoggerCreatedBeforeInitialize(t *testing.T) {
	logger := CLI().With("k", "v")

	var buf bytes.Buffer
	require.NoError(t, Initialize(Config{Level: "info", Console: &buf}))
	t.Cleanup(func() { _ = Initialize(Config{Console: os.Stderr}) })

	logger.Info("late")
	assert.Contains(t, buf.String(), "component=cli")
	assert.Contains(t, buf.String(), "k=v")
}

func TestInitialize_FileLevels(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "twin.log")

	require.NoError(t, Initialize(Config{
		Level:   "warn",
		Console: &console,
		File:    &FileConfig{Path: path, Level: "debug"},
	}))
	t.Cleanup(func() {
		_ = Close()
		_ = Initialize(Config{Console: os.Stderr})
	})

	Get().Debug("debug only in file")
	Get().Warn("warn everywhere")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(data), "debug only in file")
	assert.Contains(t, string(data), "warn everywhere")
	assert.False(t, strings.Contains(console.String(), "debug only in file"))
	assert.Contains(t, console.String(), "warn everywhere")
}

func TestInitialize_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Initialize(Config{Console: &buf, JSON: true}))
	t.Cleanup(func() { _ = Initialize(Config{Console: os.Stderr}) })

	Get().Info("json record")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
}
