package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tareqmamari/logs-ratio-server/internal/logrecord"
)

var sampleLines = []string{
	"1a2b ab12 x 2024-01-01T10:00:00,000 INFO: Login started(user)",
	"1A2B ab12 x 2024-01-01T10:00:02,000 ERROR: Login ended",
	"1a2b AB12 x 2024-01-01T10:00:05,000 DEBUG: Query (select)",
	"0000 ab12 x 2024-01-01T10:00:06,000 INFO: ignored",
	"ffff cd34 x 2024-01-01T10:00:01,000 WARN: Cache miss",
	"short line",
}

func TestCountLevels(t *testing.T) {
	e := NewEngine(nil)

	got := e.CountLevels(sampleLines)

	assert.Equal(t, map[string]int{
		"DEBUG": 1, "INFO": 2, "WARN": 1, "ERROR": 1, "TRACE": 0,
	}, got)
}

func TestCountLevelsConfiguredSubset(t *testing.T) {
	e := NewEngine([]logrecord.Level{logrecord.LevelError, logrecord.LevelInfo})

	got := e.CountLevels([]string{"INFO then ERROR", "just info", "debug only"})

	assert.Equal(t, map[string]int{"ERROR": 1, "INFO": 1}, got)
}

func TestCountLevelsEmpty(t *testing.T) {
	got := NewEngine(nil).CountLevels(nil)
	assert.Len(t, got, 5)
	for _, v := range got {
		assert.Zero(t, v)
	}
}

func TestCountLevelsPerID(t *testing.T) {
	e := NewEngine(nil)

	got := e.CountLevelsPerID(append(sampleLines,
		"ffff cd34 x 2024-01-01T10:00:01,000 FATAL: not a configured level",
	))

	require.Len(t, got, 2)
	assert.Equal(t, map[string]int{"DEBUG": 1, "INFO": 1, "WARN": 0, "ERROR": 1, "TRACE": 0}, got["1a2b"])
	assert.Equal(t, map[string]int{"DEBUG": 0, "INFO": 0, "WARN": 1, "ERROR": 0, "TRACE": 0}, got["ffff"])
}

func TestCountLevelsPerIDRequiresExactPrefix(t *testing.T) {
	e := NewEngine(nil)

	got := e.CountLevelsPerID([]string{
		"1a2b ab12 x 2024-01-01T10:00:00,000 INFO :spaced prefix",
		"1a2b ab12 x 2024-01-01T10:00:01,000 info: lower case",
	})

	require.Len(t, got, 1)
	assert.Equal(t, 1, got["1a2b"]["INFO"])
}

func TestMeanIntervalPerIDUsesSecondToken(t *testing.T) {
	e := NewEngine(nil)

	got := e.MeanIntervalPerID(sampleLines)

	// ab12 at 0s, 2s, 5s, 6s; cd34 has a single timestamp.
	assert.Equal(t, map[string]float64{"ab12": 2}, got)
}

func TestMeanIntervalOrderInvariant(t *testing.T) {
	e := NewEngine(nil)
	ordered := []string{
		"x 1f x 2024-01-01T10:00:00,000 INFO: a",
		"x 1f x 2024-01-01T10:00:01,500 INFO: b",
		"x 1f x 2024-01-01T10:00:04,000 INFO: c",
	}
	shuffled := []string{ordered[2], ordered[0], ordered[1]}

	assert.Equal(t, e.MeanIntervalPerID(ordered), e.MeanIntervalPerID(shuffled))
	assert.InDelta(t, 2.0, e.MeanIntervalPerID(shuffled)["1f"], 1e-9)
}

func TestMeanIntervalSkipsBadTimestamps(t *testing.T) {
	e := NewEngine(nil)

	got := e.MeanIntervalPerID([]string{
		"x 1f x 2024-01-01T10:00:00,000 INFO: a",
		"x 1f x 2024-01-01 10:00:01 INFO: b",
		"x 1f x 2024-1-01T10:00:02,000 INFO: c",
	})

	assert.Empty(t, got)
}

func TestTopicsPerID(t *testing.T) {
	e := NewEngine(nil)

	got := e.TopicsPerID(sampleLines)

	assert.Equal(t, map[string][]string{
		"1a2b": {"Login", "Query"},
		"ffff": {"Cache"},
	}, got)
}

func TestTopicsPerIDEdgeCases(t *testing.T) {
	e := NewEngine(nil)

	got := e.TopicsPerID([]string{
		"ab x x 2024-01-01T10:00:00,000 INFO:(paren first)",
		"cd x x 2024-01-01T10:00:00,000 INFO:",
		"ef x x 2024-01-01T10:00:00,000 no-colon-here",
		"12 x x 2024-01-01T10:00:00,000 INFO: db query",
		"12 x x 2024-01-01T10:00:00,000 INFO: DB reconnect",
	})

	assert.Equal(t, map[string][]string{
		"ab": {},
		"12": {"db"},
	}, got)
}

func TestTopicIntervals(t *testing.T) {
	e := NewEngine(nil)

	got := e.TopicIntervals(sampleLines)

	assert.Equal(t, map[string]map[string]float64{
		"Login": {"1a2b": 2, AverageKey: 2},
		"Query": {AverageKey: 0},
		"Cache": {AverageKey: 0},
	}, got)
}

func TestTopicIntervalsAverageAcrossIDs(t *testing.T) {
	e := NewEngine(nil)

	got := e.TopicIntervals([]string{
		"a1 x x 2024-01-01T10:00:00,000 INFO: Job started",
		"a1 x x 2024-01-01T10:00:01,000 INFO: Job ended",
		"b2 x x 2024-01-01T10:00:00,000 INFO: job STARTED",
		"b2 x x 2024-01-01T10:00:02,000 INFO: job",
		"b2 x x 2024-01-01T10:00:06,000 INFO: JOB Ended",
		"c3 x x 2024-01-01T10:00:00,000 INFO: started ended",
		"c3 x x 2024-01-01T10:00:00,000 INFO: Sync(1)",
		"c3 x x 2024-01-01T10:00:00,333 INFO: Sync(2)",
	})

	require.Contains(t, got, "Job")
	assert.Equal(t, map[string]float64{"a1": 1, "b2": 3, AverageKey: 2}, got["Job"])
	assert.Equal(t, map[string]float64{"c3": 0.333, AverageKey: 0.333}, got["Sync"])
	assert.Len(t, got, 2)
}

func TestErrorRatios(t *testing.T) {
	e := NewEngine(nil)

	got := e.ErrorRatios(sampleLines)

	assert.Equal(t, map[string]float64{"1a2b": 0.3333, "ffff": 0}, got.Ratios)
	assert.Equal(t, 0.1667, got.Average)
}

func TestErrorRatiosEmpty(t *testing.T) {
	got := NewEngine(nil).ErrorRatios([]string{"no ids here"})

	assert.Empty(t, got.Ratios)
	assert.Zero(t, got.Average)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.3333, Round(1.0/3, 4))
	assert.Equal(t, 3.0, Round(2.5, 0))
	assert.Equal(t, -3.0, Round(-2.5, 0))
	assert.Equal(t, 0.667, Round(2.0/3, 3))
}

func TestAnalyze(t *testing.T) {
	e := NewEngine(nil)

	report, err := e.Analyze(context.Background(), sampleLines)
	require.NoError(t, err)

	assert.Equal(t, len(sampleLines), report.LineCount)
	assert.Equal(t, e.CountLevels(sampleLines), report.LevelCounts)
	assert.Equal(t, e.CountLevelsPerID(sampleLines), report.LevelCountsPerID)
	assert.Equal(t, e.MeanIntervalPerID(sampleLines), report.MeanIntervals)
	assert.Equal(t, e.TopicsPerID(sampleLines), report.Topics)
	assert.Equal(t, e.TopicIntervals(sampleLines), report.TopicIntervals)
	assert.Equal(t, e.ErrorRatios(sampleLines), report.ErrorRatios)
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(nil).Analyze(ctx, sampleLines)
	assert.ErrorIs(t, err, context.Canceled)
}
