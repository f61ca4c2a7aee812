package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/analytics"
	"github.com/tareqmamari/logs-ratio-server/internal/summarizer"
)

// ListLogFilesTool lists the files available for analysis
type ListLogFilesTool struct {
	*BaseTool
	svc *analytics.Service
}

// NewListLogFilesTool creates a new tool instance
func NewListLogFilesTool(svc *analytics.Service, logger *zap.Logger) *ListLogFilesTool {
	return &ListLogFilesTool{BaseTool: NewBaseTool(logger), svc: svc}
}

// Name returns the tool name
func (t *ListLogFilesTool) Name() string { return "list_log_files" }

// Annotations returns tool hints for LLMs
func (t *ListLogFilesTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations("List Log Files")
}

// Description returns the tool description
func (t *ListLogFilesTool) Description() string {
	return `List the log files in the log directory with their size and modification time.

**When to use:** before any per-file analysis, to find valid file_path values.`
}

// InputSchema returns the input schema
func (t *ListLogFilesTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *ListLogFilesTool) Execute(_ context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	files, err := t.svc.ListFiles()
	if err != nil {
		return HandleError(err), nil
	}
	return t.FormatResponse(map[string]interface{}{
		"directory": t.svc.Dir(),
		"files":     files,
		"count":     len(files),
	})
}

// DirSummarizer produces one summary per *.log file of a directory.
type DirSummarizer interface {
	Summarize(ctx context.Context, dir string) ([]summarizer.FileSummary, error)
}

// SummarizeLogFilesTool reports the session and error counts of every file,
// the same view the alert scheduler trains on.
type SummarizeLogFilesTool struct {
	*BaseTool
	summarizer DirSummarizer
	dir        string
}

// NewSummarizeLogFilesTool creates a new tool instance
func NewSummarizeLogFilesTool(sum DirSummarizer, dir string, logger *zap.Logger) *SummarizeLogFilesTool {
	return &SummarizeLogFilesTool{BaseTool: NewBaseTool(logger), summarizer: sum, dir: dir}
}

// Name returns the tool name
func (t *SummarizeLogFilesTool) Name() string { return "summarize_log_files" }

// Annotations returns tool hints for LLMs
func (t *SummarizeLogFilesTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations("Summarize Log Files")
}

// Description returns the tool description
func (t *SummarizeLogFilesTool) Description() string {
	return `Summarize every *.log file: distinct sessionId values, lines mentioning
"error" and their ratio (4 decimals). These summaries are the predictor's
training data.

**Related tools:** predict_error_ratio, trigger_alert_check`
}

// InputSchema returns the input schema
func (t *SummarizeLogFilesTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *SummarizeLogFilesTool) Execute(ctx context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	summaries, err := t.summarizer.Summarize(ctx, t.dir)
	if err != nil {
		return HandleError(err), nil
	}
	return t.FormatResponse(map[string]interface{}{
		"files":             summaries,
		"training_examples": len(summarizer.TrainingExamples(summaries)),
	})
}
