package analytics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/cache"
	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
	"github.com/tareqmamari/logs-ratio-server/internal/logrecord"
)

// FileInfo describes a file in the log directory.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Service exposes the engine's analyses by file name within a log directory.
type Service struct {
	dir    string
	engine *Engine
	lines  *cache.LineCache
	logger *zap.Logger
}

// NewService creates a service rooted at dir. lineCache may be nil.
func NewService(dir string, engine *Engine, lineCache *cache.LineCache, logger *zap.Logger) *Service {
	if lineCache == nil {
		lineCache = cache.New(cache.Config{})
	}
	return &Service{
		dir:    dir,
		engine: engine,
		lines:  lineCache,
		logger: logger.Named("analytics"),
	}
}

// Dir returns the log directory.
func (s *Service) Dir() string {
	return s.dir
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// ListFiles returns the regular files in the log directory sorted by name,
// creating the directory when it does not exist.
func (s *Service) ListFiles() ([]FileInfo, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Resolve maps a file name to its path inside the log directory.
func (s *Service) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.NewMissingParameter("file_path")
	}
	if !filepath.IsLocal(name) {
		return "", apperrors.NewInvalidInput(fmt.Sprintf("file path %q escapes the log directory", name))
	}
	return filepath.Join(s.dir, name), nil
}

// ReadLines returns the trimmed, non-empty lines of a log file.
func (s *Service) ReadLines(name string) ([]string, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewResourceNotFound("Log file", name).
				WithSuggestion("Use list_log_files to see available files")
		}
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if info.IsDir() {
		return nil, apperrors.NewResourceNotFound("Log file", name).
			WithSuggestion("Use list_log_files to see available files")
	}

	key := cache.FileKey(path, info.ModTime(), info.Size())
	if lines, ok := s.lines.Get(key); ok {
		return lines, nil
	}

	lines, err := readTrimmedLines(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	s.lines.Set(key, lines)

	s.logger.Debug("Read log file",
		zap.String("file", name),
		zap.Int("lines", len(lines)),
	)
	return lines, nil
}

// CountLevels counts whole-line levels in a file.
func (s *Service) CountLevels(name string) (map[string]int, error) {
	lines, err := s.ReadLines(name)
	if err != nil {
		return nil, err
	}
	return s.engine.CountLevels(lines), nil
}

// CountLevelsPerID counts levels per correlation id in a file.
func (s *Service) CountLevelsPerID(name string) (map[string]map[string]int, error) {
	lines, err := s.ReadLines(name)
	if err != nil {
		return nil, err
	}
	return s.engine.CountLevelsPerID(lines), nil
}

// MeanIntervalPerID computes mean inter-event intervals in a file.
func (s *Service) MeanIntervalPerID(name string) (map[string]float64, error) {
	lines, err := s.ReadLines(name)
	if err != nil {
		return nil, err
	}
	return s.engine.MeanIntervalPerID(lines), nil
}

// TopicsPerID extracts topics per id in a file.
func (s *Service) TopicsPerID(name string) (map[string][]string, error) {
	lines, err := s.ReadLines(name)
	if err != nil {
		return nil, err
	}
	return s.engine.TopicsPerID(lines), nil
}

// TopicIntervals computes per-topic timing in a file.
func (s *Service) TopicIntervals(name string) (map[string]map[string]float64, error) {
	lines, err := s.ReadLines(name)
	if err != nil {
		return nil, err
	}
	return s.engine.TopicIntervals(lines), nil
}

// ErrorRatios computes per-id error ratios in a file.
func (s *Service) ErrorRatios(name string) (ErrorRatioReport, error) {
	lines, err := s.ReadLines(name)
	if err != nil {
		return ErrorRatioReport{}, err
	}
	return s.engine.ErrorRatios(lines), nil
}

// Analyze runs every analysis over a file.
func (s *Service) Analyze(ctx context.Context, name string) (*Report, error) {
	lines, err := s.ReadLines(name)
	if err != nil {
		return nil, err
	}
	report, err := s.engine.Analyze(ctx, lines)
	if err != nil {
		return nil, err
	}
	report.FileName = name
	return report, nil
}

func readTrimmedLines(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is confined to the log directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	err = logrecord.EachLine(f, func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	})
	return lines, err
}
