package health

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/predictor"
	"github.com/tareqmamari/logs-ratio-server/internal/scheduler"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check result
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// ModelReporter exposes the predictor's model status.
type ModelReporter interface {
	Status() predictor.Status
}

// CycleReporter exposes the scheduler's loop and most recent cycle.
type CycleReporter interface {
	LastResult() *scheduler.CycleResult
	Interval() time.Duration
	Running() bool
}

// Readiness is the /ready verdict. The server is ready once the log
// directory is readable and the alert loop is running.
type Readiness struct {
	Ready     bool      `json:"ready"`
	Reasons   []string  `json:"reasons,omitempty"`
	LastCycle time.Time `json:"last_cycle,omitempty"`
}

// Checker performs health checks
type Checker struct {
	logDir string
	model  ModelReporter
	cycles CycleReporter
	logger *zap.Logger
	now    func() time.Time
}

// New creates a new health checker. model and cycles may be nil.
func New(logDir string, model ModelReporter, cycles CycleReporter, logger *zap.Logger) *Checker {
	return &Checker{
		logDir: logDir,
		model:  model,
		cycles: cycles,
		logger: logger,
		now:    time.Now,
	}
}

// CheckAll performs all health checks
func (c *Checker) CheckAll(_ context.Context) (Status, []Check) {
	checks := []Check{c.checkLogDir()}
	if c.model != nil {
		checks = append(checks, c.checkModel())
	}
	if c.cycles != nil {
		checks = append(checks, c.checkScheduler())
	}

	overallStatus := StatusHealthy
	for _, check := range checks {
		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return overallStatus, checks
}

// Ready reports whether alert checks can run. A missing log directory counts
// as ready since the first cycle creates it.
func (c *Checker) Ready() Readiness {
	r := Readiness{Ready: true}

	if dir := c.checkLogDir(); dir.Status == StatusUnhealthy {
		r.Ready = false
		r.Reasons = append(r.Reasons, dir.Message)
	}

	if c.cycles != nil {
		if !c.cycles.Running() {
			r.Ready = false
			r.Reasons = append(r.Reasons, "Alert scheduler is not running")
		}
		if last := c.cycles.LastResult(); last != nil {
			r.LastCycle = last.FinishedAt
		}
	}
	return r
}

// checkLogDir verifies the log directory can be read. A missing directory is
// only degraded since the scheduler creates it.
func (c *Checker) checkLogDir() Check {
	start := c.now()
	check := Check{Name: "log_directory", Timestamp: start}

	entries, err := os.ReadDir(c.logDir)
	check.Duration = c.now().Sub(start)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Log directory %s does not exist yet", c.logDir)
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Log directory unreadable: %v", err)
		c.logger.Error("Health check failed: log directory", zap.Error(err))
	default:
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("%d entries in %s", len(entries), c.logDir)
	}
	return check
}

// checkModel reports whether a trained model is available. Predictions fall
// back to 0 without one, so a missing model is degraded rather than unhealthy.
func (c *Checker) checkModel() Check {
	start := c.now()
	check := Check{Name: "model", Timestamp: start}

	status := c.model.Status()
	check.Duration = c.now().Sub(start)

	switch {
	case status.Available:
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("Trained on %d examples at %s",
			status.ExampleCount, status.TrainedAt.Format(time.RFC3339))
	case status.Error != "":
		check.Status = StatusDegraded
		check.Message = "Model artifact unreadable: " + status.Error
		c.logger.Warn("Health check degraded: model", zap.String("error", status.Error))
	default:
		check.Status = StatusDegraded
		check.Message = "No model trained yet"
	}
	return check
}

// checkScheduler flags a scheduler that has not completed a cycle within two
// intervals or whose last cycle failed.
func (c *Checker) checkScheduler() Check {
	start := c.now()
	check := Check{Name: "scheduler", Timestamp: start}

	last := c.cycles.LastResult()
	check.Duration = c.now().Sub(start)

	switch {
	case last == nil:
		check.Status = StatusDegraded
		check.Message = "No alert cycle completed yet"
	case last.Error != "":
		check.Status = StatusDegraded
		check.Message = "Last alert cycle failed: " + last.Error
	case start.Sub(last.FinishedAt) > 2*c.cycles.Interval():
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Last alert cycle finished %s ago",
			start.Sub(last.FinishedAt).Truncate(time.Second))
	default:
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("Last cycle evaluated %d files, raised %d alerts",
			last.Evaluated, len(last.Alerts))
	}
	return check
}
