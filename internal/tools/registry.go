package tools

import (
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/analytics"
	"github.com/tareqmamari/logs-ratio-server/internal/notify"
)

// Dependencies are the components the tools operate on.
type Dependencies struct {
	Service    *analytics.Service
	Summarizer DirSummarizer
	Predictor  RatioPredictor
	Scheduler  CycleRunner
	Sender     notify.Sender
}

// All returns every tool in registration order.
func All(deps Dependencies, logger *zap.Logger) []Tool {
	return []Tool{
		// Files
		NewListLogFilesTool(deps.Service, logger),
		NewSummarizeLogFilesTool(deps.Summarizer, deps.Service.Dir(), logger),

		// Per-file analytics
		NewCountLogTypesTool(deps.Service, logger),
		NewCountLogTypesPerIDTool(deps.Service, logger),
		NewCalculateTimeDifferencesTool(deps.Service, logger),
		NewExtractTopicsTool(deps.Service, logger),
		NewTopicWiseTimeDiffTool(deps.Service, logger),
		NewErrorToIDRatioTool(deps.Service, logger),
		NewAnalyzeLogFileTool(deps.Service, logger),

		// Prediction and alerting
		NewPredictErrorRatioTool(deps.Predictor, logger),
		NewTriggerAlertCheckTool(deps.Scheduler, logger),
		NewGetAlertHistoryTool(deps.Scheduler, logger),
		NewSendNotificationTool(deps.Sender, logger),
	}
}
