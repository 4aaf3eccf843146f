// Package quant implements the C2 quantization codecs: deterministic,
// codebook-driven encode/decode of dense vectors to a smaller on-disk
// representation. Re-quantizing a collection (changing Kind) requires a
// full re-index; codecs never silently downgrade precision.
package quant

import (
	"github.com/vectorizer-project/vectorizer/internal/config"
)

// Codec encodes/decodes dense vectors against a per-collection codebook.
// Encode/Decode are deterministic given the codebook: the same input
// always produces the same bytes.
type Codec interface {
	// Kind identifies the quantization scheme.
	Kind() config.QuantizationKind

	// Train builds the codebook from a representative sample of vectors.
	// Required (non-trivial) only for Product quantization; Scalar takes
	// a per-dimension min/max over the sample, and None and Binary ignore it.
	Train(vectors [][]float32) error

	// Encode compresses a full-precision vector into the codec's encoded
	// form using the trained codebook.
	Encode(dense []float32) ([]byte, error)

	// Decode restores a full-precision approximation from encoded bytes.
	Decode(encoded []byte) ([]float32, error)

	// EncodedSize returns the byte length Encode produces for this
	// codec's current codebook.
	EncodedSize() int

	// SupportsShortcut reports whether similarity for metric can be
	// computed directly on encoded bytes (dot product / Hamming) without
	// decoding first.
	SupportsShortcut(metric config.Metric) bool

	// ScoreEncoded computes a similarity score directly between two
	// encoded vectors, when SupportsShortcut is true for metric.
	ScoreEncoded(a, b []byte, metric config.Metric) (float32, error)
}

// NewCodec constructs the Codec for the given kind and dimensionality.
func NewCodec(kind config.QuantizationKind, dim int) (Codec, error) {
	switch kind {
	case config.QuantizationNone, "":
		return newNoneCodec(dim), nil
	case config.QuantizationScalar:
		return newScalarCodec(dim), nil
	case config.QuantizationProduct:
		return newProductCodec(dim, defaultSubvectors(dim))
	case config.QuantizationBinary:
		return newBinaryCodec(dim), nil
	default:
		return nil, errUnknownKind(kind)
	}
}

type errUnknownKind config.QuantizationKind

func (e errUnknownKind) Error() string {
	return "unknown quantization kind: " + string(e)
}

// defaultSubvectors picks a sub-vector count for product quantization:
// as many 8-wide chunks as fit, minimum 1.
func defaultSubvectors(dim int) int {
	m := dim / 8
	if m < 1 {
		m = 1
	}
	return m
}
