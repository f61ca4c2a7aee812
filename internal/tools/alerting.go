package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/notify"
	"github.com/tareqmamari/logs-ratio-server/internal/scheduler"
)

// CycleRunner runs an alert check on demand and reports past ones.
type CycleRunner interface {
	TriggerNow(ctx context.Context) (*scheduler.CycleResult, error)
	History(limit int) []scheduler.AlertEvent
	LastResult() *scheduler.CycleResult
	State() scheduler.State
}

// TriggerAlertCheckTool runs one alert cycle immediately
type TriggerAlertCheckTool struct {
	*BaseTool
	runner CycleRunner
}

// NewTriggerAlertCheckTool creates a new tool instance
func NewTriggerAlertCheckTool(runner CycleRunner, logger *zap.Logger) *TriggerAlertCheckTool {
	return &TriggerAlertCheckTool{BaseTool: NewBaseTool(logger), runner: runner}
}

// Name returns the tool name
func (t *TriggerAlertCheckTool) Name() string { return "trigger_alert_check" }

// Annotations returns tool hints for LLMs
func (t *TriggerAlertCheckTool) Annotations() *mcp.ToolAnnotations {
	return ActionAnnotations("Run Alert Check", true)
}

// DefaultTimeout overrides BaseTool; a cycle retrains the model.
func (t *TriggerAlertCheckTool) DefaultTimeout() time.Duration {
	return DefaultCycleTimeout
}

// Description returns the tool description
func (t *TriggerAlertCheckTool) Description() string {
	return `Run one alert check now: summarize all log files, retrain the predictor,
compare each file's error ratio with its prediction and send an alert for
files exceeding 1.2x the prediction. Waits for a running check to finish.
The periodic schedule is unaffected.

**Related tools:** get_alert_history, summarize_log_files`
}

// InputSchema returns the input schema
func (t *TriggerAlertCheckTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *TriggerAlertCheckTool) Execute(ctx context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	result, err := t.runner.TriggerNow(ctx)
	if err != nil {
		return HandleError(err), nil
	}
	return t.FormatResponse(result)
}

// GetAlertHistoryTool returns recent alerts and the scheduler state
type GetAlertHistoryTool struct {
	*BaseTool
	runner CycleRunner
}

// NewGetAlertHistoryTool creates a new tool instance
func NewGetAlertHistoryTool(runner CycleRunner, logger *zap.Logger) *GetAlertHistoryTool {
	return &GetAlertHistoryTool{BaseTool: NewBaseTool(logger), runner: runner}
}

// Name returns the tool name
func (t *GetAlertHistoryTool) Name() string { return "get_alert_history" }

// Annotations returns tool hints for LLMs
func (t *GetAlertHistoryTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations("Get Alert History")
}

// Description returns the tool description
func (t *GetAlertHistoryTool) Description() string {
	return `Show recent alerts (newest first), the last alert check and the scheduler's
current state.`
}

// InputSchema returns the input schema
func (t *GetAlertHistoryTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"limit": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"default":     20,
				"description": "Maximum number of alerts to return",
			},
		},
	}
}

// Execute executes the tool
func (t *GetAlertHistoryTool) Execute(_ context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	limit, err := GetNonNegativeIntParam(arguments, "limit", false)
	if err != nil {
		return HandleError(err), nil
	}
	if limit == 0 {
		limit = 20
	}

	return t.FormatResponse(map[string]interface{}{
		"state":       t.runner.State(),
		"alerts":      t.runner.History(limit),
		"last_result": t.runner.LastResult(),
	})
}

// SendNotificationTool sends an ad hoc message through the configured channels
type SendNotificationTool struct {
	*BaseTool
	sender notify.Sender
}

// NewSendNotificationTool creates a new tool instance
func NewSendNotificationTool(sender notify.Sender, logger *zap.Logger) *SendNotificationTool {
	return &SendNotificationTool{BaseTool: NewBaseTool(logger), sender: sender}
}

// Name returns the tool name
func (t *SendNotificationTool) Name() string { return "send_notification" }

// Annotations returns tool hints for LLMs
func (t *SendNotificationTool) Annotations() *mcp.ToolAnnotations {
	return ActionAnnotations("Send Notification", true)
}

// Description returns the tool description
func (t *SendNotificationTool) Description() string {
	return `Send a message through the configured alert channels (SMTP, webhook, NATS,
or the server log when none is configured). The body is HTML.

**When to use:** to verify notification delivery or to forward findings.`
}

// InputSchema returns the input schema
func (t *SendNotificationTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"subject": map[string]interface{}{
				"type":        "string",
				"description": "Message subject",
			},
			"body": map[string]interface{}{
				"type":        "string",
				"description": "Message body as HTML",
			},
		},
		"required": []string{"subject", "body"},
	}
}

// Execute executes the tool
func (t *SendNotificationTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	subject, err := GetStringParam(arguments, "subject", true)
	if err != nil {
		return HandleError(err), nil
	}
	body, err := GetStringParam(arguments, "body", true)
	if err != nil {
		return HandleError(err), nil
	}

	if err := t.sender.Send(ctx, notify.Message{Subject: subject, Body: body}); err != nil {
		return HandleError(err), nil
	}
	return t.FormatResponse(map[string]interface{}{
		"sent":    true,
		"channel": t.sender.Name(),
		"subject": subject,
	})
}
