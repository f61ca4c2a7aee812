package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/analytics"
)

// FileAnalysisTool runs one analysis over a single log file. The seven
// per-file tools differ only in name, description and the analysis run.
type FileAnalysisTool struct {
	*BaseTool
	name        string
	title       string
	description string
	run         func(ctx context.Context, file string) (interface{}, error)
}

// Name returns the tool name
func (t *FileAnalysisTool) Name() string { return t.name }

// Description returns the tool description
func (t *FileAnalysisTool) Description() string { return t.description }

// Annotations returns tool hints for LLMs
func (t *FileAnalysisTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations(t.title)
}

// InputSchema returns the input schema
func (t *FileAnalysisTool) InputSchema() interface{} {
	return filePathSchema()
}

// Execute executes the tool
func (t *FileAnalysisTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	file, err := GetStringParam(arguments, "file_path", true)
	if err != nil {
		return HandleError(err), nil
	}

	result, err := t.run(ctx, file)
	if err != nil {
		t.logger.Debug("Analysis failed", zap.String("tool", t.name), zap.String("file", file), zap.Error(err))
		return HandleError(err), nil
	}
	return t.FormatResponse(result)
}

// NewCountLogTypesTool counts each level across a file.
func NewCountLogTypesTool(svc *analytics.Service, logger *zap.Logger) *FileAnalysisTool {
	return &FileAnalysisTool{
		BaseTool: NewBaseTool(logger),
		name:     "count_log_types",
		title:    "Count Log Levels",
		description: `Count log lines per level (DEBUG, INFO, WARN, ERROR, TRACE) in a log file.

Each line is assigned the first configured level keyword it contains; lines
without a level keyword are not counted. Every level is always present in the
result, with 0 when absent.

**Related tools:** list_log_files, count_log_types_per_id, analyze_log_file`,
		run: func(_ context.Context, file string) (interface{}, error) {
			return svc.CountLevels(file)
		},
	}
}

// NewCountLogTypesPerIDTool counts levels per correlation id.
func NewCountLogTypesPerIDTool(svc *analytics.Service, logger *zap.Logger) *FileAnalysisTool {
	return &FileAnalysisTool{
		BaseTool: NewBaseTool(logger),
		name:     "count_log_types_per_id",
		title:    "Count Log Levels per ID",
		description: `Count log levels per correlation id in a log file.

Only lines whose first token is a valid non-zero hexadecimal id and whose body
starts with "<LEVEL>:" are counted. Ids are compared case-insensitively.

**Related tools:** count_log_types, error_to_id_ratio`,
		run: func(_ context.Context, file string) (interface{}, error) {
			return svc.CountLevelsPerID(file)
		},
	}
}

// NewCalculateTimeDifferencesTool reports the mean gap between entries per id.
func NewCalculateTimeDifferencesTool(svc *analytics.Service, logger *zap.Logger) *FileAnalysisTool {
	return &FileAnalysisTool{
		BaseTool: NewBaseTool(logger),
		name:     "calculate_time_differences",
		title:    "Mean Interval per ID",
		description: `Compute the mean time in seconds between consecutive entries of each
correlation id, keyed by the second id column. Ids with a single entry are
omitted.

**Related tools:** topic_wise_time_diff`,
		run: func(_ context.Context, file string) (interface{}, error) {
			return svc.MeanIntervalPerID(file)
		},
	}
}

// NewExtractTopicsTool lists the distinct topics of each id.
func NewExtractTopicsTool(svc *analytics.Service, logger *zap.Logger) *FileAnalysisTool {
	return &FileAnalysisTool{
		BaseTool: NewBaseTool(logger),
		name:     "extract_topics",
		title:    "Extract Topics per ID",
		description: `List the distinct topics per correlation id, sorted. The topic of a line is
the first token of its message after the "<LEVEL>:" prefix.

**Related tools:** topic_wise_time_diff`,
		run: func(_ context.Context, file string) (interface{}, error) {
			return svc.TopicsPerID(file)
		},
	}
}

// NewTopicWiseTimeDiffTool reports mean intervals per topic and id.
func NewTopicWiseTimeDiffTool(svc *analytics.Service, logger *zap.Logger) *FileAnalysisTool {
	return &FileAnalysisTool{
		BaseTool: NewBaseTool(logger),
		name:     "topic_wise_time_diff",
		title:    "Mean Interval per Topic",
		description: `Compute, per topic, the mean seconds between consecutive entries of each id,
plus an "Average" entry across ids. Values are rounded to 3 decimals.

**Related tools:** extract_topics, calculate_time_differences`,
		run: func(_ context.Context, file string) (interface{}, error) {
			return svc.TopicIntervals(file)
		},
	}
}

// NewErrorToIDRatioTool reports the share of ERROR entries per id.
func NewErrorToIDRatioTool(svc *analytics.Service, logger *zap.Logger) *FileAnalysisTool {
	return &FileAnalysisTool{
		BaseTool: NewBaseTool(logger),
		name:     "error_to_id_ratio",
		title:    "Error Ratio per ID",
		description: `Compute the ratio of ERROR entries to all leveled entries per correlation id
and the average ratio across ids, rounded to 4 decimals.

**Related tools:** count_log_types_per_id, predict_error_ratio`,
		run: func(_ context.Context, file string) (interface{}, error) {
			return svc.ErrorRatios(file)
		},
	}
}

// NewAnalyzeLogFileTool runs every analysis over one file.
func NewAnalyzeLogFileTool(svc *analytics.Service, logger *zap.Logger) *FileAnalysisTool {
	return &FileAnalysisTool{
		BaseTool: NewBaseTool(logger),
		name:     "analyze_log_file",
		title:    "Analyze Log File",
		description: `Run all per-file analyses (level counts, per-id counts, mean intervals,
topics, topic intervals and error ratios) in one call.

**When to use:** for a complete picture of one file. Prefer the individual
tools when only one metric is needed.`,
		run: func(ctx context.Context, file string) (interface{}, error) {
			return svc.Analyze(ctx, file)
		},
	}
}
