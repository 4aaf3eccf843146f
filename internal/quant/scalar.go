package quant

import (
	"fmt"
	"math"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

// scalarCodec performs per-dimension linear quantization to 8 bits:
// value = min + scale*code, code in [0, 255]. Reduces storage ~4x versus
// raw f32, at the cost of a small, bounded per-dimension error.
type scalarCodec struct {
	dim   int
	mins  []float32
	scale []float32
}

func newScalarCodec(dim int) *scalarCodec {
	return &scalarCodec{
		dim:   dim,
		mins:  make([]float32, dim),
		scale: make([]float32, dim),
	}
}

func (c *scalarCodec) Kind() config.QuantizationKind { return config.QuantizationScalar }

// Train computes per-dimension (min, scale) from a sample of vectors so
// that the full observed range maps onto [0, 255].
func (c *scalarCodec) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		for i := range c.mins {
			c.mins[i] = 0
			c.scale[i] = 1
		}
		return nil
	}

	maxs := make([]float32, c.dim)
	for i := range c.mins {
		c.mins[i] = math.MaxFloat32
		maxs[i] = -math.MaxFloat32
	}

	for _, v := range vectors {
		if len(v) != c.dim {
			return fmt.Errorf("scalar codec: training vector has dim %d, expected %d", len(v), c.dim)
		}
		for i, x := range v {
			if x < c.mins[i] {
				c.mins[i] = x
			}
			if x > maxs[i] {
				maxs[i] = x
			}
		}
	}

	for i := range c.mins {
		rng := maxs[i] - c.mins[i]
		if rng <= 0 {
			c.scale[i] = 1
		} else {
			c.scale[i] = rng / 255.0
		}
	}

	return nil
}

func (c *scalarCodec) Encode(dense []float32) ([]byte, error) {
	if len(dense) != c.dim {
		return nil, fmt.Errorf("scalar codec: expected dim %d, got %d", c.dim, len(dense))
	}
	out := make([]byte, c.dim)
	for i, v := range dense {
		code := (v - c.mins[i]) / c.scale[i]
		if code < 0 {
			code = 0
		}
		if code > 255 {
			code = 255
		}
		out[i] = byte(code + 0.5)
	}
	return out, nil
}

func (c *scalarCodec) Decode(encoded []byte) ([]float32, error) {
	if len(encoded) != c.dim {
		return nil, fmt.Errorf("scalar codec: expected %d bytes, got %d", c.dim, len(encoded))
	}
	out := make([]float32, c.dim)
	for i, code := range encoded {
		out[i] = c.mins[i] + c.scale[i]*float32(code)
	}
	return out, nil
}

func (c *scalarCodec) EncodedSize() int { return c.dim }

// SupportsShortcut is false: scalar codes are per-dimension-affine, so a
// dot product on raw codes does not equal the dot product on decoded
// values unless min == 0 for every dimension. Decode-on-read is simpler
// and correct for all metrics.
func (c *scalarCodec) SupportsShortcut(metric config.Metric) bool { return false }

func (c *scalarCodec) ScoreEncoded(a, b []byte, metric config.Metric) (float32, error) {
	return 0, fmt.Errorf("scalar codec has no encoded-space shortcut")
}

var _ Codec = (*scalarCodec)(nil)
