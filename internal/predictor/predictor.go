// Package predictor learns the expected error ratio of a log file from its
// session and error counts, and persists the fitted model as a single JSON
// artifact.
package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
	"github.com/tareqmamari/logs-ratio-server/internal/summarizer"
	"github.com/tareqmamari/logs-ratio-server/internal/tracing"
)

// DefaultLambda is the default ridge regularization strength.
const DefaultLambda = 4.0

// ErrNoModel is the cause of the MODEL_UNAVAILABLE error returned by Predict
// when no model has been trained yet. It is a warning: the accompanying
// prediction is 0.
var ErrNoModel = errors.New("no trained model available")

// Status describes the model currently available to Predict.
type Status struct {
	Available    bool      `json:"available"`
	Path         string    `json:"path"`
	ExampleCount int       `json:"example_count,omitempty"`
	TrainedAt    time.Time `json:"trained_at,omitempty"`
	Intercept    float64   `json:"intercept,omitempty"`
	Weights      []float64 `json:"weights,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Predictor trains and serves the ratio model. Training, loading and
// predicting are serialized so concurrent cycles never interleave on the
// artifact.
type Predictor struct {
	mu     sync.Mutex
	path   string
	lambda float64
	model  *Model
	logger *zap.Logger
	now    func() time.Time
}

// New creates a predictor persisting its model at path.
func New(path string, lambda float64, logger *zap.Logger) *Predictor {
	if lambda < 0 {
		lambda = DefaultLambda
	}
	return &Predictor{
		path:   path,
		lambda: lambda,
		logger: logger.Named("predictor"),
		now:    time.Now,
	}
}

// Path returns the artifact location.
func (p *Predictor) Path() string {
	return p.path
}

// Train fits a new model and atomically replaces the artifact. An empty
// example set is rejected and leaves the existing artifact untouched.
func (p *Predictor) Train(ctx context.Context, examples []summarizer.TrainingExample) error {
	_, span := tracing.PredictorSpan(ctx, "train")
	defer span.End()
	span.SetAttributes(attribute.Int("predictor.examples", len(examples)))

	if len(examples) == 0 {
		err := apperrors.NewEmptyTrainingSet()
		tracing.RecordError(span, err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	model := fit(examples, p.lambda)
	model.TrainedAt = p.now().UTC()

	if err := p.save(model); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to persist model: %w", err)
	}
	p.model = model

	p.logger.Info("Model trained",
		zap.Int("examples", len(examples)),
		zap.Float64("intercept", model.Intercept),
		zap.Float64("session_weight", model.Weights[0]),
		zap.Float64("error_weight", model.Weights[1]),
	)
	tracing.SetSuccess(span)
	return nil
}

// Predict returns the expected error ratio for the given counts. When no
// artifact exists it returns 0 and an error wrapping ErrNoModel; a corrupt
// artifact returns 0 and an error wrapping the decode failure. Both carry
// the MODEL_UNAVAILABLE code.
func (p *Predictor) Predict(ctx context.Context, sessions, errorCount int) (float64, error) {
	_, span := tracing.PredictorSpan(ctx, "predict")
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	model, err := p.loadLocked()
	if err != nil {
		tracing.RecordError(span, err)
		return 0, err
	}

	predicted := model.Predict(sessions, errorCount)
	span.SetAttributes(
		attribute.Int("predictor.sessions", sessions),
		attribute.Int("predictor.errors", errorCount),
		attribute.Float64("predictor.predicted", predicted),
	)
	return predicted, nil
}

// Status reports whether a model is available.
func (p *Predictor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := Status{Path: p.path}
	model, err := p.loadLocked()
	if err != nil {
		if !errors.Is(err, ErrNoModel) {
			status.Error = err.Error()
		}
		return status
	}

	status.Available = true
	status.ExampleCount = model.ExampleCount
	status.TrainedAt = model.TrainedAt
	status.Intercept = model.Intercept
	status.Weights = append([]float64(nil), model.Weights[:]...)
	return status
}

// loadLocked returns the cached model or reads the artifact. Caller holds mu.
func (p *Predictor) loadLocked() (*Model, error) {
	if p.model != nil {
		return p.model, nil
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewModelUnavailable(p.path).WithCause(ErrNoModel)
		}
		return nil, apperrors.NewModelUnavailable(p.path).WithCause(err)
	}

	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, apperrors.NewModelUnavailable(p.path).WithCause(err)
	}
	if model.Version != modelVersion {
		return nil, apperrors.NewModelUnavailable(p.path).
			WithCause(fmt.Errorf("unsupported model version %d", model.Version))
	}

	p.model = &model
	p.logger.Debug("Model loaded", zap.String("path", p.path))
	return p.model, nil
}

// save writes the model to a temp file in the target directory and renames
// it over the artifact.
func (p *Predictor) save(model *Model) error {
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, p.path)
}
