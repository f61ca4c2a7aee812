// Package summarizer scans a log directory and reduces each file to its
// session count, error count and error ratio.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tareqmamari/logs-ratio-server/internal/logrecord"
)

var sessionPattern = regexp.MustCompile(`sessionId=([a-zA-Z0-9\-]+)`)

// FileSummary is the per-file reduction used for training and evaluation.
// ErrorRatio is errors per session and is not capped: a file with more error
// lines than sessions has a ratio above 1. It is 0 when no session was seen.
type FileSummary struct {
	FileName     string  `json:"file_name"`
	SessionCount int     `json:"session_count"`
	ErrorCount   int     `json:"error_count"`
	ErrorRatio   float64 `json:"error_ratio"`
}

// TrainingExample is one (sessions, errors) → ratio observation.
type TrainingExample struct {
	SessionCount int     `json:"session_count"`
	ErrorCount   int     `json:"error_count"`
	ErrorRatio   float64 `json:"error_ratio"`
}

// Summarizer reduces log files to FileSummary values.
type Summarizer struct {
	concurrency int
	logger      *zap.Logger
}

// New creates a summarizer scanning at most concurrency files at once.
func New(concurrency int, logger *zap.Logger) *Summarizer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Summarizer{
		concurrency: concurrency,
		logger:      logger.Named("summarizer"),
	}
}

// Summarize returns one summary per *.log file directly under dir, sorted by
// file name. A missing directory yields no summaries.
func (s *Summarizer) Summarize(ctx context.Context, dir string) ([]FileSummary, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []FileSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list log directory %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			files = append(files, path)
		}
	}
	sort.Strings(files)

	summaries := make([]FileSummary, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := SummarizeFile(path)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("Summarized log directory",
		zap.String("dir", dir),
		zap.Int("files", len(summaries)),
	)
	return summaries, nil
}

// SummarizeFile counts distinct sessionId values and lines mentioning
// "error" in one file.
func SummarizeFile(path string) (FileSummary, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from a directory listing
	if err != nil {
		return FileSummary{}, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	sessions := make(map[string]struct{})
	errorCount := 0

	err = logrecord.EachLine(f, func(line string) {
		if strings.Contains(strings.ToUpper(line), "ERROR") {
			errorCount++
		}
		if m := sessionPattern.FindStringSubmatch(line); m != nil {
			sessions[m[1]] = struct{}{}
		}
	})
	if err != nil {
		return FileSummary{}, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	summary := FileSummary{
		FileName:     filepath.Base(path),
		SessionCount: len(sessions),
		ErrorCount:   errorCount,
	}
	if summary.SessionCount > 0 {
		summary.ErrorRatio = roundRatio(float64(errorCount) / float64(summary.SessionCount))
	}
	return summary, nil
}

// TrainingExamples keeps the summaries that observed at least one session.
func TrainingExamples(summaries []FileSummary) []TrainingExample {
	examples := make([]TrainingExample, 0, len(summaries))
	for _, s := range summaries {
		if s.SessionCount <= 0 {
			continue
		}
		examples = append(examples, TrainingExample{
			SessionCount: s.SessionCount,
			ErrorCount:   s.ErrorCount,
			ErrorRatio:   s.ErrorRatio,
		})
	}
	return examples
}

func roundRatio(v float64) float64 {
	return math.Round(v*10000) / 10000
}
