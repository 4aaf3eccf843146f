package hnsw

import (
	"math"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

// normalizeInPlace scales v to unit length, used for cosine distance so
// the graph can compare vectors with a plain dot product.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// rawDistance returns a metric-native distance: smaller is closer.
func rawDistance(metric config.Metric, a, b []float32) float32 {
	switch metric {
	case config.MetricEuclidean:
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return float32(math.Sqrt(float64(sum)))
	case config.MetricDotProduct:
		var dot float32
		for i := range a {
			dot += a[i] * b[i]
		}
		return -dot
	default: // cosine: a, b are assumed pre-normalized to unit length
		var dot float32
		for i := range a {
			dot += a[i] * b[i]
		}
		return 1.0 - dot
	}
}

// distanceToScore converts a metric-native distance into a bounded
// similarity score where higher is better.
func distanceToScore(metric config.Metric, distance float32) float32 {
	switch metric {
	case config.MetricEuclidean:
		return 1.0 / (1.0 + distance)
	case config.MetricDotProduct:
		return -distance
	default: // cosine distance is 1-dot for unit vectors; invert back to
		// the raw cosine similarity so orthogonal vectors score 0, not 0.5.
		return 1.0 - distance
	}
}

func prepareForIndex(metric config.Metric, v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	if metric == config.MetricCosine {
		normalizeInPlace(out)
	}
	return out
}
