package predictor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
	"github.com/tareqmamari/logs-ratio-server/internal/summarizer"
)

var twoFiles = []summarizer.TrainingExample{
	{SessionCount: 10, ErrorCount: 1, ErrorRatio: 0.1},
	{SessionCount: 10, ErrorCount: 5, ErrorRatio: 0.5},
}

func newTestPredictor(t *testing.T) *Predictor {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "model.json"), DefaultLambda, zap.NewNop())
}

func TestPredictBeforeTraining(t *testing.T) {
	p := newTestPredictor(t)

	got, err := p.Predict(context.Background(), 10, 5)

	assert.Zero(t, got)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoModel)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeModelUnavailable))
	assert.False(t, p.Status().Available)
	assert.Empty(t, p.Status().Error)
}

func TestTrainEmptySetLeavesArtifactUntouched(t *testing.T) {
	p := newTestPredictor(t)
	require.NoError(t, p.Train(context.Background(), twoFiles))

	before, err := os.ReadFile(p.Path())
	require.NoError(t, err)

	err = p.Train(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEmptyTrainingSet))

	after, err := os.ReadFile(p.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTrainEmptySetWithoutArtifact(t *testing.T) {
	p := newTestPredictor(t)

	require.Error(t, p.Train(context.Background(), []summarizer.TrainingExample{}))
	assert.NoFileExists(t, p.Path())
}

func TestTwoFileBaseline(t *testing.T) {
	p := newTestPredictor(t)
	require.NoError(t, p.Train(context.Background(), twoFiles))

	high, err := p.Predict(context.Background(), 10, 5)
	require.NoError(t, err)
	low, err := p.Predict(context.Background(), 10, 1)
	require.NoError(t, err)

	// Baseline for the noisy file stays well below its actual 0.50, so it
	// alerts at the 1.2 factor, while the quiet file does not.
	assert.InDelta(t, 0.3667, high, 1e-4)
	assert.InDelta(t, 0.2333, low, 1e-4)
	assert.Less(t, high*1.2, 0.5)
	assert.Greater(t, low*1.2, 0.1)
}

func TestPredictLoadsPersistedModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "model.json")
	trainer := New(path, DefaultLambda, zap.NewNop())
	require.NoError(t, trainer.Train(context.Background(), twoFiles))

	fresh := New(path, DefaultLambda, zap.NewNop())
	got, err := fresh.Predict(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.InDelta(t, 0.3667, got, 1e-4)

	status := fresh.Status()
	assert.True(t, status.Available)
	assert.Equal(t, 2, status.ExampleCount)
	assert.Len(t, status.Weights, 2)
}

func TestPredictCorruptArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	p := New(path, DefaultLambda, zap.NewNop())

	got, err := p.Predict(context.Background(), 1, 1)

	assert.Zero(t, got)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoModel))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeModelUnavailable))
	assert.NotEmpty(t, p.Status().Error)
}

func TestRetrainReplacesModel(t *testing.T) {
	p := newTestPredictor(t)
	require.NoError(t, p.Train(context.Background(), twoFiles))

	require.NoError(t, p.Train(context.Background(), []summarizer.TrainingExample{
		{SessionCount: 4, ErrorCount: 1, ErrorRatio: 0.25},
	}))

	got, err := p.Predict(context.Background(), 100, 100)
	require.NoError(t, err)
	// A single example has no feature variance: the model is its target.
	assert.InDelta(t, 0.25, got, 1e-9)
	assert.Equal(t, 1, p.Status().ExampleCount)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(p.Path()), ".model-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files must not be left behind")
}

func TestConcurrentTrainAndPredict(t *testing.T) {
	p := newTestPredictor(t)
	require.NoError(t, p.Train(context.Background(), twoFiles))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Train(context.Background(), twoFiles))
		}()
		go func() {
			defer wg.Done()
			_, err := p.Predict(context.Background(), 10, 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fresh := New(p.Path(), DefaultLambda, zap.NewNop())
	got, err := fresh.Predict(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.InDelta(t, 0.3667, got, 1e-4)
}

func TestModelPredictClamps(t *testing.T) {
	m := &Model{
		Version:   modelVersion,
		Intercept: 0.5,
		Means:     [featureCount]float64{0, 0},
		Scales:    [featureCount]float64{1, 1},
		Weights:   [featureCount]float64{0, 1},
	}

	assert.Equal(t, 1.0, m.Predict(0, 10))
	assert.Equal(t, 0.0, m.Predict(0, -10))
	assert.Equal(t, 0.5, m.Predict(0, 0))
}

func TestFitWithoutRegularization(t *testing.T) {
	// ratio = errors / 10 exactly; with λ = 0 the fit is exact.
	examples := []summarizer.TrainingExample{
		{SessionCount: 10, ErrorCount: 1, ErrorRatio: 0.1},
		{SessionCount: 10, ErrorCount: 3, ErrorRatio: 0.3},
		{SessionCount: 10, ErrorCount: 5, ErrorRatio: 0.5},
	}

	m := fit(examples, 0)

	assert.Zero(t, m.Weights[0])
	assert.InDelta(t, 0.4, m.Predict(10, 4), 1e-9)
}
