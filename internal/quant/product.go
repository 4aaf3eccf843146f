package quant

import (
	"fmt"
	"math"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

const (
	pqCentroids  = 256 // one u8 per sub-vector
	pqMaxIters   = 25
	pqMinSamples = 1
)

// productCodec implements product quantization: the vector is split into
// m equal-width sub-vectors, each clustered independently into 256
// centroids (k-means). Encoding stores one byte (centroid index) per
// sub-vector; the per-subspace centroid tables form the codebook.
type productCodec struct {
	dim         int
	m           int // number of sub-vectors
	subDim      int // width of each sub-vector (dim/m, last one may be wider)
	centroids   [][][]float32 // [subspace][centroid][subDim]
	trained     bool
}

func newProductCodec(dim, m int) (*productCodec, error) {
	if m < 1 || m > dim {
		return nil, fmt.Errorf("product codec: invalid sub-vector count %d for dim %d", m, dim)
	}
	return &productCodec{dim: dim, m: m, subDim: dim / m}, nil
}

func (c *productCodec) Kind() config.QuantizationKind { return config.QuantizationProduct }

// subspaceBounds returns the [start, end) dimension range for sub-vector i,
// folding any remainder dimensions into the last sub-vector.
func (c *productCodec) subspaceBounds(i int) (int, int) {
	start := i * c.subDim
	end := start + c.subDim
	if i == c.m-1 {
		end = c.dim
	}
	return start, end
}

// Train runs k-means per subspace over the sample to build the codebook.
func (c *productCodec) Train(vectors [][]float32) error {
	if len(vectors) < pqMinSamples {
		return fmt.Errorf("product codec: need at least %d training vectors, got %d", pqMinSamples, len(vectors))
	}

	c.centroids = make([][][]float32, c.m)
	for sub := 0; sub < c.m; sub++ {
		start, end := c.subspaceBounds(sub)
		width := end - start

		samples := make([][]float32, len(vectors))
		for i, v := range vectors {
			if len(v) != c.dim {
				return fmt.Errorf("product codec: training vector has dim %d, expected %d", len(v), c.dim)
			}
			samples[i] = v[start:end]
		}

		c.centroids[sub] = kmeans(samples, minInt(pqCentroids, len(samples)), width)
		// Pad to exactly pqCentroids entries by repeating the last centroid,
		// so encoded codes always fit in a single byte regardless of sample size.
		for len(c.centroids[sub]) < pqCentroids {
			c.centroids[sub] = append(c.centroids[sub], c.centroids[sub][len(c.centroids[sub])-1])
		}
	}

	c.trained = true
	return nil
}

func (c *productCodec) Encode(dense []float32) ([]byte, error) {
	if !c.trained {
		return nil, fmt.Errorf("product codec: not trained")
	}
	if len(dense) != c.dim {
		return nil, fmt.Errorf("product codec: expected dim %d, got %d", c.dim, len(dense))
	}

	out := make([]byte, c.m)
	for sub := 0; sub < c.m; sub++ {
		start, end := c.subspaceBounds(sub)
		out[sub] = byte(nearestCentroid(dense[start:end], c.centroids[sub]))
	}
	return out, nil
}

func (c *productCodec) Decode(encoded []byte) ([]float32, error) {
	if !c.trained {
		return nil, fmt.Errorf("product codec: not trained")
	}
	if len(encoded) != c.m {
		return nil, fmt.Errorf("product codec: expected %d bytes, got %d", c.m, len(encoded))
	}

	out := make([]float32, c.dim)
	for sub := 0; sub < c.m; sub++ {
		start, end := c.subspaceBounds(sub)
		copy(out[start:end], c.centroids[sub][encoded[sub]])
	}
	return out, nil
}

func (c *productCodec) EncodedSize() int { return c.m }

// SupportsShortcut is false: asymmetric distance computation (query
// decoded, codes compared via precomputed distance tables) is the
// standard PQ search path but isn't exposed through the symmetric
// ScoreEncoded(a, b) shape; callers decode on read instead.
func (c *productCodec) SupportsShortcut(metric config.Metric) bool { return false }

func (c *productCodec) ScoreEncoded(a, b []byte, metric config.Metric) (float32, error) {
	return 0, fmt.Errorf("product codec has no encoded-space shortcut")
}

// kmeans runs Lloyd's algorithm with deterministic centroid seeding
// (evenly spaced samples, not random) so Train is reproducible.
func kmeans(samples [][]float32, k, width int) [][]float32 {
	if k < 1 {
		k = 1
	}
	if k > len(samples) {
		k = len(samples)
	}

	centroids := make([][]float32, k)
	step := len(samples) / k
	if step < 1 {
		step = 1
	}
	for i := 0; i < k; i++ {
		src := samples[(i*step)%len(samples)]
		c := make([]float32, width)
		copy(c, src)
		centroids[i] = c
	}

	assignments := make([]int, len(samples))
	for iter := 0; iter < pqMaxIters; iter++ {
		changed := false
		for i, s := range samples {
			best := nearestCentroid(s, centroids)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float32, width)
		}
		for i, s := range samples {
			a := assignments[i]
			counts[a]++
			for j, v := range s {
				sums[a][j] += v
			}
		}
		for i := 0; i < k; i++ {
			if counts[i] == 0 {
				continue
			}
			for j := range sums[i] {
				centroids[i][j] = sums[i][j] / float32(counts[i])
			}
		}

		if !changed {
			break
		}
	}

	return centroids
}

// nearestCentroid returns the index of the centroid closest to v by
// squared Euclidean distance.
func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := float32(math.MaxFloat32)
	for i, c := range centroids {
		var d float32
		for j := range v {
			diff := v[j] - c[j]
			d += diff * diff
		}
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

var _ Codec = (*productCodec)(nil)
