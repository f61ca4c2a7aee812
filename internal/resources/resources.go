// Package resources provides MCP resource handlers for the log ratio server.
// Resources expose read-only status data to MCP clients.
package resources

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/analytics"
	"github.com/tareqmamari/logs-ratio-server/internal/config"
	"github.com/tareqmamari/logs-ratio-server/internal/health"
	"github.com/tareqmamari/logs-ratio-server/internal/metrics"
	"github.com/tareqmamari/logs-ratio-server/internal/predictor"
	"github.com/tareqmamari/logs-ratio-server/internal/scheduler"
)

const (
	logFilePrefix   = "logfile://"
	recentAlertSize = 20
)

// AlertSource reports scheduler state and alert history.
type AlertSource interface {
	History(limit int) []scheduler.AlertEvent
	LastResult() *scheduler.CycleResult
	State() scheduler.State
}

// HealthSource runs the health checks.
type HealthSource interface {
	CheckAll(ctx context.Context) (health.Status, []health.Check)
}

// ModelSource reports the predictor's model.
type ModelSource interface {
	Status() predictor.Status
}

// FileAnalyzer runs the per-file analyses behind logfile:// resources.
type FileAnalyzer interface {
	CountLevels(name string) (map[string]int, error)
	ErrorRatios(name string) (analytics.ErrorRatioReport, error)
}

// Dependencies are the components the resources read from.
type Dependencies struct {
	Config  *config.Config
	Metrics *metrics.Metrics
	Health  HealthSource
	Model   ModelSource
	Alerts  AlertSource
	Files   FileAnalyzer
}

// Registry holds all registered resources and their handlers
type Registry struct {
	deps    Dependencies
	logger  *zap.Logger
	version string
	now     func() time.Time
}

// NewRegistry creates a new resource registry
func NewRegistry(deps Dependencies, logger *zap.Logger, version string) *Registry {
	return &Registry{
		deps:    deps,
		logger:  logger,
		version: version,
		now:     time.Now,
	}
}

// RegisteredResource represents a resource with its definition and handler
type RegisteredResource struct {
	Resource *mcp.Resource
	Handler  mcp.ResourceHandler
}

// GetResources returns all registered resources with their handlers
func (r *Registry) GetResources() []RegisteredResource {
	return []RegisteredResource{
		r.configResource(),
		r.metricsResource(),
		r.healthResource(),
		r.modelResource(),
		r.alertsResource(),
	}
}

// jsonResource builds a static JSON resource whose content is produced on read.
func (r *Registry) jsonResource(uri, title, description string, produce func(ctx context.Context) interface{}) RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         uri,
			Name:        uri,
			Title:       title,
			Description: description,
			MIMEType:    "application/json",
		},
		Handler: func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return r.marshal(uri, produce(ctx))
		},
	}
}

func (r *Registry) marshal(uri string, data interface{}) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		r.logger.Error("Failed to marshal resource", zap.String("uri", uri), zap.Error(err))
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}

func (r *Registry) configResource() RegisteredResource {
	return r.jsonResource("config://current", "Server Configuration",
		"Current server configuration (sensitive values masked)",
		func(context.Context) interface{} {
			cfg := r.deps.Config.Redact()
			return map[string]interface{}{
				"log_dir":          cfg.LogDir,
				"log_levels":       cfg.LogLevels,
				"model_path":       cfg.ModelPath,
				"ridge_lambda":     cfg.RidgeLambda,
				"check_interval":   cfg.CheckInterval.String(),
				"alert_factor":     cfg.AlertFactor,
				"smtp_host":        cfg.SMTPHost,
				"smtp_password":    cfg.SMTPPassword,
				"alert_recipients": len(cfg.AlertRecipients),
				"webhook_url":      cfg.WebhookURL,
				"nats_url":         cfg.NATSURL,
				"nats_subject":     cfg.NATSSubject,
				"transport":        cfg.Transport,
				"tracing_enabled":  cfg.EnableTracing,
				"audit_enabled":    cfg.EnableAuditLog,
				"server_version":   r.version,
			}
		})
}

func (r *Registry) metricsResource() RegisteredResource {
	return r.jsonResource("metrics://server", "Server Metrics",
		"Alert cycle, notification and tool usage statistics",
		func(context.Context) interface{} {
			stats := r.deps.Metrics.GetStats()
			return map[string]interface{}{
				"cycles": map[string]interface{}{
					"total":             stats.Cycles,
					"skipped":           stats.SkippedCycles,
					"alerts_raised":     stats.AlertsRaised,
					"dispatch_failures": stats.DispatchFailures,
					"training_runs":     stats.TrainingRuns,
					"training_failures": stats.TrainingFailures,
					"model_fallbacks":   stats.ModelFallbacks,
				},
				"notifications": map[string]interface{}{
					"total":           stats.TotalRequests,
					"successful":      stats.SuccessfulRequests,
					"failed":          stats.FailedRequests,
					"retried":         stats.RetriedRequests,
					"rate_limit_hits": stats.RateLimitHits,
				},
				"errors_by_status": stats.ErrorsByStatus,
				"tools": map[string]interface{}{
					"usage":   stats.ToolUsage,
					"errors":  stats.ToolErrors,
					"latency": formatToolLatency(stats.ToolLatency),
				},
				"timestamp": r.now().UTC().Format(time.RFC3339),
			}
		})
}

func (r *Registry) healthResource() RegisteredResource {
	return r.jsonResource("health://status", "Health Status",
		"Health of the log directory, the model and the alert scheduler",
		func(ctx context.Context) interface{} {
			status, checks := r.deps.Health.CheckAll(ctx)
			return map[string]interface{}{
				"status":    status,
				"checks":    checks,
				"version":   r.version,
				"timestamp": r.now().UTC().Format(time.RFC3339),
			}
		})
}

func (r *Registry) modelResource() RegisteredResource {
	return r.jsonResource("model://status", "Model Status",
		"Coefficients and training metadata of the error ratio model",
		func(context.Context) interface{} {
			return r.deps.Model.Status()
		})
}

func (r *Registry) alertsResource() RegisteredResource {
	return r.jsonResource("alerts://recent", "Recent Alerts",
		"Most recent error ratio alerts and the last alert check",
		func(context.Context) interface{} {
			return map[string]interface{}{
				"state":       r.deps.Alerts.State(),
				"alerts":      r.deps.Alerts.History(recentAlertSize),
				"last_result": r.deps.Alerts.LastResult(),
			}
		})
}

// formatToolLatency converts time.Duration map to milliseconds for JSON
func formatToolLatency(latency map[string]time.Duration) map[string]int64 {
	result := make(map[string]int64, len(latency))
	for tool, duration := range latency {
		result[tool] = duration.Milliseconds()
	}
	return result
}

// GetResourceTemplates returns the parameterized resources
func (r *Registry) GetResourceTemplates() []*mcp.ResourceTemplate {
	return []*mcp.ResourceTemplate{
		{
			URITemplate: logFilePrefix + "{name}",
			Name:        "Log File Summary",
			Description: "Level counts and per-session error ratios of a log file in the log directory",
			MIMEType:    "application/json",
		},
	}
}

// GetTemplateHandler returns a handler for resource templates
func (r *Registry) GetTemplateHandler() mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		if !strings.HasPrefix(uri, logFilePrefix) || len(uri) == len(logFilePrefix) {
			return r.marshal(uri, map[string]interface{}{
				"error":               "Unknown resource template",
				"available_templates": []string{logFilePrefix + "{name}"},
			})
		}

		name, err := url.PathUnescape(strings.TrimPrefix(uri, logFilePrefix))
		if err != nil {
			return nil, err
		}

		levels, err := r.deps.Files.CountLevels(name)
		if err != nil {
			return nil, err
		}
		ratios, err := r.deps.Files.ErrorRatios(name)
		if err != nil {
			return nil, err
		}

		return r.marshal(uri, map[string]interface{}{
			"file_name":    name,
			"levels":       levels,
			"error_ratios": ratios,
		})
	}
}
