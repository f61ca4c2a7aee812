// Package scheduler runs the alert check cycle: summarize the log directory,
// retrain the predictor, compare each file with its predicted error ratio
// and dispatch alerts for outliers.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/audit"
	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
	"github.com/tareqmamari/logs-ratio-server/internal/notify"
	"github.com/tareqmamari/logs-ratio-server/internal/summarizer"
	"github.com/tareqmamari/logs-ratio-server/internal/tracing"
)

// State is the phase the scheduler is currently in.
type State string

const (
	StateIdle        State = "idle"
	StateCollecting  State = "collecting"
	StateTraining    State = "training"
	StateEvaluating  State = "evaluating"
	StateDispatching State = "dispatching"
	StateSleeping    State = "sleeping"
)

// Cycle triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

const (
	// DefaultInterval is the wait between scheduled cycles.
	DefaultInterval = 5 * time.Minute

	defaultHistorySize = 100
)

// Clock abstracts time so the loop can be driven deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Summarizer produces one summary per log file.
type Summarizer interface {
	Summarize(ctx context.Context, dir string) ([]summarizer.FileSummary, error)
}

// Predictor trains on examples and predicts a file's error ratio.
type Predictor interface {
	Train(ctx context.Context, examples []summarizer.TrainingExample) error
	Predict(ctx context.Context, sessions, errorCount int) (float64, error)
}

// Recorder receives cycle metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordCycle(trigger string, skipped bool, evaluated int, duration time.Duration)
	RecordAlert()
	RecordDispatchFailure(channel string)
	RecordTraining(success bool, examples int)
	RecordModelFallback()
}

// Config holds the scheduler settings.
type Config struct {
	Dir         string
	Interval    time.Duration
	AlertFactor float64
	HistorySize int
}

// CycleResult describes one completed cycle.
type CycleResult struct {
	ID               string                   `json:"id"`
	Trigger          string                   `json:"trigger"`
	StartedAt        time.Time                `json:"started_at"`
	FinishedAt       time.Time                `json:"finished_at"`
	Files            []summarizer.FileSummary `json:"files"`
	TrainingExamples int                      `json:"training_examples"`
	Trained          bool                     `json:"trained"`
	TrainingError    string                   `json:"training_error,omitempty"`
	Evaluated        int                      `json:"evaluated"`
	Alerts           []AlertEvent             `json:"alerts"`
	DispatchFailures int                      `json:"dispatch_failures"`
	Skipped          bool                     `json:"skipped"`
	Error            string                   `json:"error,omitempty"`
}

// Duration is the wall time the cycle took.
func (r *CycleResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithAudit attaches an audit logger.
func WithAudit(a *audit.Logger) Option {
	return func(s *Scheduler) { s.audit = a }
}

// Scheduler owns the periodic loop and manual triggers. Cycles never
// overlap: both paths acquire the same slot.
type Scheduler struct {
	cfg        Config
	summarizer Summarizer
	predictor  Predictor
	sender     notify.Sender
	clock      Clock
	recorder   Recorder
	audit      *audit.Logger
	logger     *zap.Logger

	slot chan struct{}

	mu      sync.RWMutex
	state   State
	looping bool
	last    *CycleResult
	history []AlertEvent
}

// New creates a scheduler.
func New(cfg Config, sum Summarizer, pred Predictor, sender notify.Sender, logger *zap.Logger, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.AlertFactor <= 0 {
		cfg.AlertFactor = DefaultAlertFactor
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}

	s := &Scheduler{
		cfg:        cfg,
		summarizer: sum,
		predictor:  pred,
		sender:     sender,
		clock:      realClock{},
		logger:     logger.Named("scheduler"),
		slot:       make(chan struct{}, 1),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes a cycle, sleeps for the configured interval and repeats until
// ctx is cancelled. Cancellation is only observed between cycles.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Alert scheduler started",
		zap.String("dir", s.cfg.Dir),
		zap.Duration("interval", s.cfg.Interval),
		zap.Float64("alert_factor", s.cfg.AlertFactor),
	)
	s.mu.Lock()
	s.looping = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.looping = false
		s.state = StateIdle
		s.mu.Unlock()
	}()

	for {
		if err := s.acquire(ctx); err != nil {
			return nil
		}
		if _, err := s.cycle(ctx, TriggerScheduled); err != nil {
			s.logger.Error("Alert cycle failed", zap.Error(err))
		}
		s.setState(StateSleeping)
		s.release()

		select {
		case <-ctx.Done():
			s.logger.Info("Alert scheduler stopped")
			return nil
		case <-s.clock.After(s.cfg.Interval):
		}
	}
}

// TriggerNow runs one cycle immediately. It waits for an in-flight cycle to
// finish first; ctx only bounds that wait. The periodic timer is unaffected.
func (s *Scheduler) TriggerNow(ctx context.Context) (*CycleResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, apperrors.NewTimeout("waiting for the running alert cycle").WithCause(err)
	}
	defer s.release()

	result, err := s.cycle(ctx, TriggerManual)
	s.mu.Lock()
	if s.looping {
		s.state = StateSleeping
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()
	return result, err
}

// Running reports whether the periodic loop started by Run is active.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.looping
}

// State returns the current phase.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastResult returns the most recent cycle result, or nil before the first
// cycle.
func (s *Scheduler) LastResult() *CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// History returns up to limit recent alerts, newest first. limit <= 0
// returns all retained alerts.
func (s *Scheduler) History(limit int) []AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]AlertEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// Interval returns the configured wait between cycles.
func (s *Scheduler) Interval() time.Duration {
	return s.cfg.Interval
}

func (s *Scheduler) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) release() {
	<-s.slot
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// cycle runs one pass. The caller holds the slot. Once started a cycle is not
// interrupted by cancellation of ctx.
func (s *Scheduler) cycle(parent context.Context, trigger string) (result *CycleResult, err error) {
	ctx := context.WithoutCancel(parent)
	result = &CycleResult{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: s.clock.Now(),
		Files:     []summarizer.FileSummary{},
		Alerts:    []AlertEvent{},
	}

	ctx, span := tracing.CycleSpan(ctx, result.ID, trigger)
	defer span.End()

	logger := s.logger.With(zap.String("cycle_id", result.ID), zap.String("trigger", trigger))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Alert cycle panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = apperrors.NewInternalError(fmt.Sprintf("alert cycle panicked: %v", r))
		}
		result.FinishedAt = s.clock.Now()
		if err != nil {
			result.Error = err.Error()
			tracing.RecordError(span, err)
		} else {
			tracing.SetSuccess(span)
		}
		s.finish(ctx, result, err)
	}()

	summaries, err := s.collect(ctx)
	if err != nil {
		return result, err
	}
	result.Files = summaries
	if len(summaries) == 0 {
		result.Skipped = true
		logger.Info("No log files found, skipping cycle", zap.String("dir", s.cfg.Dir))
		return result, nil
	}

	s.train(ctx, logger, summaries, result)
	events := s.evaluate(ctx, logger, summaries, result)
	s.dispatch(ctx, logger, events, result)

	span.SetAttributes(
		attribute.Int("alerts.files", len(summaries)),
		attribute.Int("alerts.evaluated", result.Evaluated),
		attribute.Int("alerts.raised", len(result.Alerts)),
	)
	logger.Info("Alert cycle completed",
		zap.Int("files", len(summaries)),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("alerts", len(result.Alerts)),
		zap.Int("dispatch_failures", result.DispatchFailures),
		zap.Bool("trained", result.Trained),
	)
	return result, nil
}

func (s *Scheduler) collect(ctx context.Context) ([]summarizer.FileSummary, error) {
	s.setState(StateCollecting)
	ctx, span := tracing.PhaseSpan(ctx, string(StateCollecting))
	defer span.End()

	if err := os.MkdirAll(s.cfg.Dir, 0o750); err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	summaries, err := s.summarizer.Summarize(ctx, s.cfg.Dir)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to summarize log files: %w", err)
	}
	return summaries, nil
}

func (s *Scheduler) train(ctx context.Context, logger *zap.Logger, summaries []summarizer.FileSummary, result *CycleResult) {
	s.setState(StateTraining)
	ctx, span := tracing.PhaseSpan(ctx, string(StateTraining))
	defer span.End()

	examples := summarizer.TrainingExamples(summaries)
	result.TrainingExamples = len(examples)
	if len(examples) == 0 {
		logger.Info("No training examples, keeping previous model")
		return
	}

	if err := s.predictor.Train(ctx, examples); err != nil {
		result.TrainingError = err.Error()
		tracing.RecordError(span, err)
		logger.Error("Training failed, keeping previous model", zap.Error(err))
		if s.recorder != nil {
			s.recorder.RecordTraining(false, len(examples))
		}
		return
	}
	result.Trained = true
	if s.recorder != nil {
		s.recorder.RecordTraining(true, len(examples))
	}
}

func (s *Scheduler) evaluate(ctx context.Context, logger *zap.Logger, summaries []summarizer.FileSummary, result *CycleResult) []AlertEvent {
	s.setState(StateEvaluating)
	ctx, span := tracing.PhaseSpan(ctx, string(StateEvaluating))
	defer span.End()

	var events []AlertEvent
	for _, summary := range summaries {
		if summary.SessionCount <= 0 {
			continue
		}
		result.Evaluated++

		predicted, err := s.predictor.Predict(ctx, summary.SessionCount, summary.ErrorCount)
		if err != nil {
			logger.Warn("Prediction unavailable, using baseline 0",
				zap.String("file", summary.FileName),
				zap.Error(err),
			)
			predicted = 0
			if s.recorder != nil {
				s.recorder.RecordModelFallback()
			}
		}

		if !IsAnomalous(summary.ErrorRatio, predicted, s.cfg.AlertFactor) {
			continue
		}
		now := s.clock.Now()
		events = append(events, AlertEvent{
			ID:             ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
			CycleID:        result.ID,
			FileName:       summary.FileName,
			SessionCount:   summary.SessionCount,
			ErrorCount:     summary.ErrorCount,
			ActualRatio:    summary.ErrorRatio,
			PredictedRatio: predicted,
			Timestamp:      now.UTC(),
		})
	}
	return events
}

func (s *Scheduler) dispatch(ctx context.Context, logger *zap.Logger, events []AlertEvent, result *CycleResult) {
	if len(events) == 0 {
		return
	}
	s.setState(StateDispatching)
	ctx, span := tracing.PhaseSpan(ctx, string(StateDispatching))
	defer span.End()

	for i := range events {
		event := &events[i]
		err := s.sender.Send(ctx, RenderAlert(*event))
		if err != nil {
			result.DispatchFailures++
			event.DeliveryError = err.Error()
			logger.Error("Failed to dispatch alert",
				zap.String("file", event.FileName),
				zap.String("channel", s.sender.Name()),
				zap.Error(err),
			)
			if s.recorder != nil {
				s.recorder.RecordDispatchFailure(s.sender.Name())
			}
		} else {
			event.Delivered = true
			logger.Info("Alert dispatched",
				zap.String("alert_id", event.ID),
				zap.String("file", event.FileName),
				zap.Float64("actual", event.ActualRatio),
				zap.Float64("predicted", event.PredictedRatio),
			)
		}

		if s.recorder != nil {
			s.recorder.RecordAlert()
		}
		if s.audit != nil {
			s.audit.LogAlert(ctx, s.sender.Name(), event.FileName, event.ActualRatio, event.PredictedRatio, err)
		}
	}
	result.Alerts = events
}

func (s *Scheduler) finish(ctx context.Context, result *CycleResult, err error) {
	if s.recorder != nil {
		s.recorder.RecordCycle(result.Trigger, result.Skipped, result.Evaluated, result.Duration())
	}
	if s.audit != nil {
		s.audit.LogCycle(ctx, result.Trigger, result.Duration(), len(result.Files), len(result.Alerts), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = result
	s.history = append(s.history, result.Alerts...)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = append([]AlertEvent(nil), s.history[over:]...)
	}
}
