package quant

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

// noneCodec stores vectors as raw f32, no compression. The reference
// codec other kinds are measured against.
type noneCodec struct {
	dim int
}

func newNoneCodec(dim int) *noneCodec {
	return &noneCodec{dim: dim}
}

func (c *noneCodec) Kind() config.QuantizationKind { return config.QuantizationNone }

func (c *noneCodec) Train(vectors [][]float32) error { return nil }

func (c *noneCodec) Encode(dense []float32) ([]byte, error) {
	if len(dense) != c.dim {
		return nil, fmt.Errorf("none codec: expected dim %d, got %d", c.dim, len(dense))
	}
	out := make([]byte, len(dense)*4)
	for i, v := range dense {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out, nil
}

func (c *noneCodec) Decode(encoded []byte) ([]float32, error) {
	if len(encoded) != c.dim*4 {
		return nil, fmt.Errorf("none codec: expected %d bytes, got %d", c.dim*4, len(encoded))
	}
	out := make([]float32, c.dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(encoded[i*4:]))
	}
	return out, nil
}

func (c *noneCodec) EncodedSize() int { return c.dim * 4 }

func (c *noneCodec) SupportsShortcut(metric config.Metric) bool { return false }

func (c *noneCodec) ScoreEncoded(a, b []byte, metric config.Metric) (float32, error) {
	return 0, fmt.Errorf("none codec has no encoded-space shortcut")
}

var _ Codec = (*noneCodec)(nil)
