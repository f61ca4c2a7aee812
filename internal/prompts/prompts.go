// Package prompts provides pre-built prompts that walk an MCP client through
// common log ratio investigations.
package prompts

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// PromptDefinition represents a prompt with its metadata and handler
type PromptDefinition struct {
	// Prompt is the MCP prompt metadata
	Prompt *mcp.Prompt
	// Handler is the function that generates the prompt content
	Handler mcp.PromptHandler
}

// Registry holds all registered prompts
type Registry struct {
	logger  *zap.Logger
	prompts []*PromptDefinition
}

// NewRegistry creates a new prompt registry with all available prompts
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		logger: logger,
	}
	r.registerPrompts()
	return r
}

// GetPrompts returns all registered prompt definitions
func (r *Registry) GetPrompts() []*PromptDefinition {
	return r.prompts
}

func (r *Registry) registerPrompts() {
	r.prompts = []*PromptDefinition{
		r.investigateErrorRatioPrompt(),
		r.traceSessionPrompt(),
		r.reviewAlertsPrompt(),
		r.verifyNotificationsPrompt(),
	}
}

// Helper to create a prompt result with user role
func createPromptResult(description, content string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role: "user",
				Content: &mcp.TextContent{
					Text: content,
				},
			},
		},
	}
}

// getStringArg safely extracts a string argument with a default value
func getStringArg(args map[string]string, key, defaultVal string) string {
	if val, ok := args[key]; ok && val != "" {
		return val
	}
	return defaultVal
}

func (r *Registry) investigateErrorRatioPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "investigate_error_ratio",
			Title:       "Investigate Error Ratio",
			Description: "Find out why a log file has more errors per session than expected",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "file_path",
					Description: "Log file name inside the log directory",
					Required:    true,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			file := getStringArg(req.Params.Arguments, "file_path", "")
			if file == "" {
				return nil, fmt.Errorf("file_path argument is required")
			}

			content := fmt.Sprintf(`Let's find out why %[1]s has an unusual error ratio.

1. Run error_to_id_ratio with file_path "%[1]s" to see which sessions contribute errors.
2. Run summarize_log_files and compare the file's session and error counts with the others.
3. Run predict_error_ratio with the file's session_count and error_count to get the expected ratio.
4. For the sessions with the most errors, run count_log_types_per_id and topic_wise_time_diff
   with file_path "%[1]s" to see which topics and timings precede the errors.

Summarize whether the errors are spread across sessions or concentrated in a few, and name
the topics most associated with them.`, file)

			return createPromptResult("Investigate error ratio workflow", content), nil
		},
	}
}

func (r *Registry) traceSessionPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "trace_session",
			Title:       "Trace a Session",
			Description: "Reconstruct what happened in a single session of a log file",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "file_path",
					Description: "Log file name inside the log directory",
					Required:    true,
				},
				{
					Name:        "session_id",
					Description: "Session identifier to trace",
					Required:    true,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			file := getStringArg(req.Params.Arguments, "file_path", "")
			id := getStringArg(req.Params.Arguments, "session_id", "")
			if file == "" || id == "" {
				return nil, fmt.Errorf("file_path and session_id arguments are required")
			}

			content := fmt.Sprintf(`Trace session %[2]s in %[1]s.

1. Run count_log_types_per_id with file_path "%[1]s" and read the entry for %[2]s.
2. Run calculate_time_differences with file_path "%[1]s" for the mean gap between its events.
3. Run extract_topics and topic_wise_time_diff with file_path "%[1]s" for the topics it touched.

Describe the session's timeline, flag long gaps and point out where errors appear.`, file, id)

			return createPromptResult("Trace a single session", content), nil
		},
	}
}

func (r *Registry) reviewAlertsPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "review_alerts",
			Title:       "Review Recent Alerts",
			Description: "Review recent error ratio alerts and decide whether they need action",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "limit",
					Description: "How many alerts to review (default 10)",
					Required:    false,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			limit := getStringArg(req.Params.Arguments, "limit", "10")

			content := fmt.Sprintf(`Review the latest error ratio alerts.

1. Run get_alert_history with limit %s.
2. For each alerted file, compare actual_ratio with predicted_ratio and note delivery errors.
3. If the model looks stale, run trigger_alert_check to retrain and re-evaluate.
4. For files that keep alerting, follow the investigate_error_ratio prompt.

Group the alerts by file and say which look like real regressions.`, limit)

			return createPromptResult("Review recent alerts", content), nil
		},
	}
}

func (r *Registry) verifyNotificationsPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "verify_notifications",
			Title:       "Verify Notification Delivery",
			Description: "Send a test message through the configured alert channels",
		},
		Handler: func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			content := `Check that alerts reach their recipients.

1. Run send_notification with subject "Test alert" and body "<p>Delivery check</p>".
2. Run get_alert_history and look for delivery_error on recent alerts.
3. If delivery failed, report the error code and the channel that returned it.`

			return createPromptResult("Verify notification delivery", content), nil
		},
	}
}
