package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
	"github.com/tareqmamari/logs-ratio-server/internal/predictor"
)

// RatioPredictor is the predictor surface used by predict_error_ratio.
type RatioPredictor interface {
	Predict(ctx context.Context, sessions, errorCount int) (float64, error)
	Status() predictor.Status
}

// PredictErrorRatioTool predicts the expected error ratio for given counts
type PredictErrorRatioTool struct {
	*BaseTool
	predictor RatioPredictor
}

// NewPredictErrorRatioTool creates a new tool instance
func NewPredictErrorRatioTool(p RatioPredictor, logger *zap.Logger) *PredictErrorRatioTool {
	return &PredictErrorRatioTool{BaseTool: NewBaseTool(logger), predictor: p}
}

// Name returns the tool name
func (t *PredictErrorRatioTool) Name() string { return "predict_error_ratio" }

// Annotations returns tool hints for LLMs
func (t *PredictErrorRatioTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations("Predict Error Ratio")
}

// Description returns the tool description
func (t *PredictErrorRatioTool) Description() string {
	return `Predict the expected error ratio of a log file from its session and error
counts using the model trained by the last alert check. Without a trained
model the prediction is 0 and a warning is returned.

**Related tools:** summarize_log_files, trigger_alert_check`
}

// InputSchema returns the input schema
func (t *PredictErrorRatioTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_count": map[string]interface{}{
				"type":        "integer",
				"minimum":     0,
				"description": "Number of distinct sessions in the file",
			},
			"error_count": map[string]interface{}{
				"type":        "integer",
				"minimum":     0,
				"description": "Number of lines mentioning an error",
			},
		},
		"required": []string{"session_count", "error_count"},
	}
}

// Execute executes the tool
func (t *PredictErrorRatioTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	sessions, err := GetNonNegativeIntParam(arguments, "session_count", true)
	if err != nil {
		return HandleError(err), nil
	}
	errorCount, err := GetNonNegativeIntParam(arguments, "error_count", true)
	if err != nil {
		return HandleError(err), nil
	}

	result := map[string]interface{}{
		"session_count": sessions,
		"error_count":   errorCount,
	}

	predicted, err := t.predictor.Predict(ctx, sessions, errorCount)
	switch {
	case err == nil:
	case apperrors.HasCode(err, apperrors.CodeModelUnavailable):
		result["warning"] = err.Error()
	default:
		return HandleError(err), nil
	}

	result["predicted_ratio"] = predicted
	result["model"] = t.predictor.Status()
	return t.FormatResponse(result)
}
