package analytics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/cache"
	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	lineCache := cache.New(cache.Config{MaxEntries: 8, TTL: time.Minute, Enabled: true})
	return NewService(dir, NewEngine(nil), lineCache, zap.NewNop()), dir
}

func writeLog(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")), 0o600))
}

func TestServiceReadLinesTrimsAndSkipsBlank(t *testing.T) {
	svc, dir := newTestService(t)
	writeLog(t, dir, "app.log", "  first  ", "", "   ", "\tsecond")

	lines, err := svc.ReadLines("app.log")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, lines)
}

func TestServiceReadLinesOversizedLine(t *testing.T) {
	svc, dir := newTestService(t)
	long := strings.Repeat("y", 2<<20)
	writeLog(t, dir, "big.log", "first", long, "last")

	lines, err := svc.ReadLines("big.log")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Len(t, lines[1], len(long))
	assert.Equal(t, "last", lines[2])
}

func TestServiceMissingFile(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CountLevels("nope.log")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestServiceDirectoryIsNotAFile(t *testing.T) {
	svc, dir := newTestService(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	_, err := svc.ReadLines("sub")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestServiceRejectsTraversal(t *testing.T) {
	svc, _ := newTestService(t)

	for _, name := range []string{"../etc/passwd", "/etc/passwd", "a/../../b.log"} {
		_, err := svc.ReadLines(name)
		require.Error(t, err, name)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput), name)
	}

	_, err := svc.ReadLines("  ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeMissingParameter))
}

func TestServiceServesRewrittenFile(t *testing.T) {
	svc, dir := newTestService(t)
	writeLog(t, dir, "app.log", "INFO one")

	counts, err := svc.CountLevels("app.log")
	require.NoError(t, err)
	assert.Equal(t, 1, counts["INFO"])

	// Different size yields a different cache key.
	writeLog(t, dir, "app.log", "INFO one", "ERROR two")
	counts, err = svc.CountLevels("app.log")
	require.NoError(t, err)
	assert.Equal(t, 1, counts["ERROR"])
}

func TestServiceListFiles(t *testing.T) {
	svc, dir := newTestService(t)
	writeLog(t, dir, "b.log", "x")
	writeLog(t, dir, "a.log", "x")
	writeLog(t, dir, "notes.txt", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o750))

	files, err := svc.ListFiles()
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.log", "b.log", "notes.txt"}, names)
}

func TestServiceListFilesCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	svc := NewService(dir, NewEngine(nil), nil, zap.NewNop())

	files, err := svc.ListFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.DirExists(t, dir)
}

func TestServiceAnalyze(t *testing.T) {
	svc, dir := newTestService(t)
	writeLog(t, dir, "app.log", sampleLines...)

	report, err := svc.Analyze(context.Background(), "app.log")
	require.NoError(t, err)

	assert.Equal(t, "app.log", report.FileName)
	assert.Equal(t, 0.1667, report.ErrorRatios.Average)
	assert.Equal(t, map[string]float64{"ab12": 2}, report.MeanIntervals)
}

func TestServicePerAnalysisAccessors(t *testing.T) {
	svc, dir := newTestService(t)
	writeLog(t, dir, "app.log", sampleLines...)

	perID, err := svc.CountLevelsPerID("app.log")
	require.NoError(t, err)
	assert.Len(t, perID, 2)

	intervals, err := svc.MeanIntervalPerID("app.log")
	require.NoError(t, err)
	assert.Len(t, intervals, 1)

	topics, err := svc.TopicsPerID("app.log")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cache"}, topics["ffff"])

	topicTimes, err := svc.TopicIntervals("app.log")
	require.NoError(t, err)
	assert.Contains(t, topicTimes, "Login")

	ratios, err := svc.ErrorRatios("app.log")
	require.NoError(t, err)
	assert.Equal(t, 0.3333, ratios.Ratios["1a2b"])
}
