// Package server wires the analytics pipeline, the alert scheduler and the
// MCP tool surface into one process.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/analytics"
	"github.com/tareqmamari/logs-ratio-server/internal/audit"
	"github.com/tareqmamari/logs-ratio-server/internal/cache"
	"github.com/tareqmamari/logs-ratio-server/internal/config"
	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
	"github.com/tareqmamari/logs-ratio-server/internal/health"
	"github.com/tareqmamari/logs-ratio-server/internal/logrecord"
	"github.com/tareqmamari/logs-ratio-server/internal/metrics"
	"github.com/tareqmamari/logs-ratio-server/internal/notify"
	"github.com/tareqmamari/logs-ratio-server/internal/predictor"
	"github.com/tareqmamari/logs-ratio-server/internal/prompts"
	"github.com/tareqmamari/logs-ratio-server/internal/resources"
	"github.com/tareqmamari/logs-ratio-server/internal/scheduler"
	"github.com/tareqmamari/logs-ratio-server/internal/summarizer"
	"github.com/tareqmamari/logs-ratio-server/internal/tools"
	"github.com/tareqmamari/logs-ratio-server/internal/tracing"
)

// Transports
const (
	TransportStdio = "stdio"
	TransportNone  = "none"
)

// Server represents the log ratio server
type Server struct {
	mcpServer    *mcp.Server
	config       *config.Config
	logger       *zap.Logger
	metrics      *metrics.Metrics
	audit        *audit.Logger
	version      string
	healthServer *health.Server
	scheduler    *scheduler.Scheduler
	predictor    *predictor.Predictor
	sender       notify.Sender
	closeSender  func() error
	tools        []tools.Tool
}

// New creates the server and all of its components.
func New(cfg *config.Config, logger *zap.Logger, version string) (*Server, error) {
	levels, err := logrecord.ParseLevels(cfg.LogLevels)
	if err != nil {
		return nil, fmt.Errorf("invalid log levels: %w", err)
	}

	metricsTracker := metrics.New(logger, nil)
	auditLogger := audit.NewLogger(logger, cfg.EnableAuditLog)

	lineCache := cache.New(cache.Config{
		MaxEntries: cfg.AnalysisEntries,
		TTL:        cfg.AnalysisCache,
		Enabled:    cfg.AnalysisCache > 0,
	})
	service := analytics.NewService(cfg.LogDir, analytics.NewEngine(levels), lineCache, logger)
	sum := summarizer.New(cfg.ScanConcurrency, logger)
	pred := predictor.New(cfg.ModelPath, cfg.RidgeLambda, logger)

	sender, closeSender, err := notify.FromConfig(cfg, version, metricsTracker, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert sender: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		Dir:         cfg.LogDir,
		Interval:    cfg.CheckInterval,
		AlertFactor: cfg.AlertFactor,
	}, sum, pred, sender, logger,
		scheduler.WithRecorder(metricsTracker),
		scheduler.WithAudit(auditLogger),
	)

	s := &Server{
		config:      cfg,
		logger:      logger,
		metrics:     metricsTracker,
		audit:       auditLogger,
		version:     version,
		scheduler:   sched,
		predictor:   pred,
		sender:      sender,
		closeSender: closeSender,
	}

	checker := health.New(cfg.LogDir, pred, sched, logger)

	// Create health server if port is configured (port > 0)
	if cfg.HealthPort > 0 {
		var registry = metricsTracker.Registry()
		if !cfg.MetricsEndpoint {
			registry = nil
		}
		s.healthServer = health.NewServer(checker, logger, cfg.HealthPort, cfg.HealthBindAddr, registry)
	}

	s.tools = tools.All(tools.Dependencies{
		Service:    service,
		Summarizer: sum,
		Predictor:  pred,
		Scheduler:  sched,
		Sender:     sender,
	}, logger)

	if cfg.Transport == TransportStdio {
		s.mcpServer = mcp.NewServer(&mcp.Implementation{
			Name:    "Log Ratio Server",
			Version: version,
		}, &mcp.ServerOptions{
			HasTools:     true,
			HasPrompts:   true,
			HasResources: true,
		})
		for _, t := range s.tools {
			s.registerTool(t)
		}
		logger.Info("Registered all MCP tools", zap.Int("count", len(s.tools)))

		s.registerPrompts()
		s.registerResources(resources.Dependencies{
			Config:  cfg,
			Metrics: metricsTracker,
			Health:  checker,
			Model:   pred,
			Alerts:  sched,
			Files:   service,
		})
	}

	return s, nil
}

// registerTool adds t to the MCP server behind the common handler.
func (s *Server) registerTool(t tools.Tool) {
	mcpTool := &mcp.Tool{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema(),
		Annotations: t.Annotations(),
	}

	s.mcpServer.AddTool(mcpTool, func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]interface{}
		if len(request.Params.Arguments) > 0 {
			if err := json.Unmarshal(request.Params.Arguments, &args); err != nil {
				s.metrics.RecordToolExecution(t.Name(), false, 0)
				return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
			}
		}
		return s.executeTool(ctx, t, args)
	})
	s.logger.Debug("Registered tool", zap.String("tool", mcpTool.Name))
}

// registerPrompts registers all available MCP prompts
func (s *Server) registerPrompts() {
	registry := prompts.NewRegistry(s.logger)

	for _, p := range registry.GetPrompts() {
		s.mcpServer.AddPrompt(p.Prompt, p.Handler)
		s.logger.Debug("Registered prompt", zap.String("prompt", p.Prompt.Name))
	}

	s.logger.Info("Registered all MCP prompts", zap.Int("count", len(registry.GetPrompts())))
}

// registerResources registers all available MCP resources and resource templates
func (s *Server) registerResources(deps resources.Dependencies) {
	registry := resources.NewRegistry(deps, s.logger, s.version)

	for _, r := range registry.GetResources() {
		s.mcpServer.AddResource(r.Resource, r.Handler)
		s.logger.Debug("Registered resource", zap.String("uri", r.Resource.URI))
	}

	templateHandler := registry.GetTemplateHandler()
	for _, t := range registry.GetResourceTemplates() {
		s.mcpServer.AddResourceTemplate(t, templateHandler)
		s.logger.Debug("Registered resource template", zap.String("uri_template", t.URITemplate))
	}

	s.logger.Info("Registered all MCP resources",
		zap.Int("static_count", len(registry.GetResources())),
		zap.Int("template_count", len(registry.GetResourceTemplates())),
	)
}

// executeTool runs a tool with its timeout, trace span, metrics and audit
// entry.
func (s *Server) executeTool(ctx context.Context, t tools.Tool, args map[string]interface{}) (*mcp.CallToolResult, error) {
	start := time.Now()

	if timeout := t.DefaultTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := tracing.ToolSpan(ctx, t.Name())
	defer span.End()
	tracing.AddToolAttributes(span, args)

	result, err := t.Execute(ctx, args)
	duration := time.Since(start)
	success := err == nil && (result == nil || !result.IsError)

	if err != nil {
		tracing.RecordError(span, err)
	} else if success {
		tracing.SetSuccess(span)
	}
	s.metrics.RecordToolExecution(t.Name(), success, duration)

	fileName, _ := args["file_path"].(string)
	auditErr := err
	if auditErr == nil && !success {
		auditErr = errors.New(toolResultText(result))
	}
	s.audit.LogToolExecution(ctx, t.Name(), fileName, success, duration, auditErr)

	return result, err
}

func toolResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

// Start runs the scheduler, the health server and, unless the transport is
// "none", the MCP server over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting log ratio server",
		zap.String("transport", s.config.Transport),
		zap.String("log_dir", s.config.LogDir),
		zap.String("alert_channel", s.sender.Name()),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.scheduler.Run(ctx); err != nil {
			s.logger.Error("Alert scheduler stopped with error", zap.Error(err))
		}
	}()

	if s.healthServer != nil {
		go func() {
			if err := s.healthServer.Start(); err != nil {
				s.logger.Error("Health server error", zap.Error(err))
			}
		}()
	}

	defer func() {
		cancel()
		wg.Wait()
		s.shutdown()
	}()

	if s.mcpServer == nil {
		<-ctx.Done()
		return nil
	}
	err := s.mcpServer.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) shutdown() {
	s.metrics.LogStats()

	if s.healthServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.healthServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown health server", zap.Error(err))
		}
	}

	if err := s.closeSender(); err != nil {
		s.logger.Error("Failed to close alert sender", zap.Error(err))
	}
}

// Tools returns the registered tools.
func (s *Server) Tools() []tools.Tool {
	return s.tools
}

// Scheduler returns the alert scheduler.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// GetMetrics returns the server's metrics tracker for external access
func (s *Server) GetMetrics() *metrics.Metrics {
	return s.metrics
}

// Audit returns the audit logger.
func (s *Server) Audit() *audit.Logger {
	return s.audit
}

// ExecuteTool runs a registered tool by name through the same path as MCP
// calls.
func (s *Server) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	for _, t := range s.tools {
		if t.Name() == name {
			return s.executeTool(ctx, t, args)
		}
	}
	return nil, apperrors.NewResourceNotFound("Tool", name)
}
