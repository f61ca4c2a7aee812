package predictor

import (
	"math"
	"time"

	"github.com/tareqmamari/logs-ratio-server/internal/summarizer"
)

const (
	featureCount = 2
	modelVersion = 1
)

// Model is a ridge regression over standardized (sessionCount, errorCount).
// A feature with zero variance in the training set carries no weight.
type Model struct {
	Version      int                   `json:"version"`
	Intercept    float64               `json:"intercept"`
	Means        [featureCount]float64 `json:"means"`
	Scales       [featureCount]float64 `json:"scales"`
	Weights      [featureCount]float64 `json:"weights"`
	Lambda       float64               `json:"lambda"`
	ExampleCount int                   `json:"example_count"`
	TrainedAt    time.Time             `json:"trained_at"`
}

// Predict returns the expected error ratio, clamped to [0, 1].
func (m *Model) Predict(sessions, errors int) float64 {
	x := [featureCount]float64{float64(sessions), float64(errors)}
	y := m.Intercept
	for i := range x {
		if m.Scales[i] > 0 {
			y += m.Weights[i] * (x[i] - m.Means[i]) / m.Scales[i]
		}
	}
	return clamp(y)
}

// fit solves (ZᵀZ + λI)w = Zᵀ(y - ȳ) over the standardized features. The
// intercept is the target mean, which is exact once features are centered.
func fit(examples []summarizer.TrainingExample, lambda float64) *Model {
	n := float64(len(examples))
	m := &Model{
		Version:      modelVersion,
		Lambda:       lambda,
		ExampleCount: len(examples),
	}

	var xs [][featureCount]float64
	var ys []float64
	for _, ex := range examples {
		xs = append(xs, [featureCount]float64{float64(ex.SessionCount), float64(ex.ErrorCount)})
		ys = append(ys, ex.ErrorRatio)
		m.Intercept += ex.ErrorRatio
	}
	m.Intercept /= n

	for j := 0; j < featureCount; j++ {
		var sum float64
		for _, x := range xs {
			sum += x[j]
		}
		m.Means[j] = sum / n

		var sq float64
		for _, x := range xs {
			d := x[j] - m.Means[j]
			sq += d * d
		}
		m.Scales[j] = math.Sqrt(sq / n)
	}

	// Gram matrix and moment vector; zero-variance features stay zero and
	// their row reduces to λw = 0.
	var a [featureCount][featureCount]float64
	var b [featureCount]float64
	for i, x := range xs {
		var z [featureCount]float64
		for j := range z {
			if m.Scales[j] > 0 {
				z[j] = (x[j] - m.Means[j]) / m.Scales[j]
			}
		}
		r := ys[i] - m.Intercept
		for j := range z {
			b[j] += z[j] * r
			for k := range z {
				a[j][k] += z[j] * z[k]
			}
		}
	}
	for j := range a {
		a[j][j] += lambda
	}

	m.Weights = solve2(a, b)
	for j := range m.Weights {
		if m.Scales[j] == 0 {
			m.Weights[j] = 0
		}
	}
	return m
}

// solve2 solves a 2x2 linear system by Cramer's rule, returning zero
// weights when the system is singular.
func solve2(a [featureCount][featureCount]float64, b [featureCount]float64) [featureCount]float64 {
	det := a[0][0]*a[1][1] - a[0][1]*a[1][0]
	if math.Abs(det) < 1e-12 {
		// Only reachable with λ = 0 and constant or collinear features:
		// fit each active feature alone and share the effect between them.
		var w [featureCount]float64
		active := 0
		for j := range w {
			if a[j][j] > 1e-12 {
				active++
			}
		}
		for j := range w {
			if a[j][j] > 1e-12 {
				w[j] = b[j] / a[j][j] / float64(active)
			}
		}
		return w
	}
	return [featureCount]float64{
		(b[0]*a[1][1] - a[0][1]*b[1]) / det,
		(a[0][0]*b[1] - b[0]*a[1][0]) / det,
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
