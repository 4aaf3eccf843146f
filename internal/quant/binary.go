package quant

import (
	"fmt"
	"math/bits"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

// binaryCodec stores one sign bit per dimension (1 if >= 0, else 0) and
// approximates similarity with Hamming distance on the packed bits. The
// most aggressive codec: 32x smaller than raw f32.
type binaryCodec struct {
	dim        int
	packedSize int
}

func newBinaryCodec(dim int) *binaryCodec {
	return &binaryCodec{dim: dim, packedSize: (dim + 7) / 8}
}

func (c *binaryCodec) Kind() config.QuantizationKind { return config.QuantizationBinary }

// Train is a no-op: the sign-bit codebook needs no statistics.
func (c *binaryCodec) Train(vectors [][]float32) error { return nil }

func (c *binaryCodec) Encode(dense []float32) ([]byte, error) {
	if len(dense) != c.dim {
		return nil, fmt.Errorf("binary codec: expected dim %d, got %d", c.dim, len(dense))
	}
	out := make([]byte, c.packedSize)
	for i, v := range dense {
		if v >= 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out, nil
}

// Decode restores +1/-1 per dimension; the original magnitude is lost.
func (c *binaryCodec) Decode(encoded []byte) ([]float32, error) {
	if len(encoded) != c.packedSize {
		return nil, fmt.Errorf("binary codec: expected %d bytes, got %d", c.packedSize, len(encoded))
	}
	out := make([]float32, c.dim)
	for i := range out {
		if encoded[i/8]&(1<<uint(i%8)) != 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out, nil
}

func (c *binaryCodec) EncodedSize() int { return c.packedSize }

func (c *binaryCodec) SupportsShortcut(metric config.Metric) bool {
	return true
}

// ScoreEncoded computes similarity directly from Hamming distance between
// two packed bit vectors: score = 1 - hamming/dim.
func (c *binaryCodec) ScoreEncoded(a, b []byte, metric config.Metric) (float32, error) {
	if len(a) != c.packedSize || len(b) != c.packedSize {
		return 0, fmt.Errorf("binary codec: encoded length mismatch")
	}
	hamming := 0
	for i := range a {
		hamming += bits.OnesCount8(a[i] ^ b[i])
	}
	return 1.0 - float32(hamming)/float32(c.dim), nil
}

var _ Codec = (*binaryCodec)(nil)
