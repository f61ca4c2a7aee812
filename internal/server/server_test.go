package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/audit"
	"github.com/tareqmamari/logs-ratio-server/internal/config"
	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
)

func testConfig(t *testing.T, transport string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LogDir:          filepath.Join(dir, "uploads"),
		LogLevels:       []string{"DEBUG", "INFO", "WARN", "ERROR", "TRACE"},
		ScanConcurrency: 2,
		ModelPath:       filepath.Join(dir, "model.json"),
		RidgeLambda:     4,
		CheckInterval:   time.Hour,
		AlertFactor:     1.2,
		Timeout:         time.Second,
		MaxRetries:      0,
		RateLimit:       10,
		RateLimitBurst:  5,
		Transport:       transport,
		ShutdownTimeout: time.Second,
		EnableAuditLog:  true,
		LogLevel:        "info",
	}
}

func newTestServer(t *testing.T, transport string) *Server {
	t.Helper()
	s, err := New(testConfig(t, transport), zap.NewNop(), "test")
	require.NoError(t, err)
	return s
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	cfg := testConfig(t, TransportNone)
	cfg.LogLevels = []string{"INFO", "LOUD"}

	_, err := New(cfg, zap.NewNop(), "test")
	assert.Error(t, err)
}

func TestNew_StdioRegistersAllTools(t *testing.T) {
	s := newTestServer(t, TransportStdio)

	require.NotNil(t, s.mcpServer)
	assert.Len(t, s.Tools(), 13)
	assert.Equal(t, "log", s.sender.Name())
}

func TestNew_NoneSkipsMCP(t *testing.T) {
	s := newTestServer(t, TransportNone)

	assert.Nil(t, s.mcpServer)
	assert.Len(t, s.Tools(), 13)
	assert.Nil(t, s.healthServer)
}

func TestExecuteTool_Success(t *testing.T) {
	s := newTestServer(t, TransportNone)
	require.NoError(t, os.MkdirAll(s.config.LogDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(s.config.LogDir, "app.log"),
		[]byte("INFO started\nERROR failed\n"), 0o600))

	result, err := s.ExecuteTool(context.Background(), "count_log_types", map[string]interface{}{
		"file_path": "app.log",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	stats := s.GetMetrics().GetStats()
	assert.Equal(t, uint64(1), stats.ToolUsage["count_log_types"])
	assert.Zero(t, stats.ToolErrors["count_log_types"])

	entries := s.Audit().GetEntriesByKind(audit.KindTool, 0)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "app.log", entries[0].FileName)
}

func TestExecuteTool_MissingFileIsAudited(t *testing.T) {
	s := newTestServer(t, TransportNone)

	result, err := s.ExecuteTool(context.Background(), "count_log_types", map[string]interface{}{
		"file_path": "missing.log",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, string(apperrors.CodeResourceNotFound))

	stats := s.GetMetrics().GetStats()
	assert.Equal(t, uint64(1), stats.ToolErrors["count_log_types"])

	entries := s.Audit().GetEntriesByName("count_log_types", 0)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "missing.log", entries[0].FileName)
	assert.Contains(t, entries[0].ErrorMsg, "missing.log")
}

func TestExecuteTool_UnknownTool(t *testing.T) {
	s := newTestServer(t, TransportNone)

	_, err := s.ExecuteTool(context.Background(), "no_such_tool", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestExecuteTool_TriggerAlertCheck(t *testing.T) {
	s := newTestServer(t, TransportNone)

	result, err := s.ExecuteTool(context.Background(), "trigger_alert_check", nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	last := s.Scheduler().LastResult()
	require.NotNil(t, last)
	assert.True(t, last.Skipped)
	assert.DirExists(t, s.config.LogDir)
}

func TestStart_NoneTransportStopsOnCancel(t *testing.T) {
	s := newTestServer(t, TransportNone)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return s.Scheduler().LastResult() != nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
