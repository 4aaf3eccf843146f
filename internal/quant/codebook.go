package quant

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/vectorizer-project/vectorizer/internal/config"
)

// scalarCodebook is the gob-serializable form of a trained scalarCodec.
type scalarCodebook struct {
	Mins  []float32
	Scale []float32
}

// productCodebook is the gob-serializable form of a trained productCodec.
type productCodebook struct {
	M         int
	Centroids [][][]float32
}

// MarshalCodebook returns the trained state a codec needs to decode
// deterministically after a process restart, for persisting into the
// archive's codebook section (spec §4.8). None and Binary codecs need no
// training data and return (nil, nil).
func MarshalCodebook(c Codec) ([]byte, error) {
	var buf bytes.Buffer
	switch codec := c.(type) {
	case *noneCodec:
		return nil, nil
	case *binaryCodec:
		return nil, nil
	case *scalarCodec:
		if err := gob.NewEncoder(&buf).Encode(scalarCodebook{Mins: codec.mins, Scale: codec.scale}); err != nil {
			return nil, fmt.Errorf("quant: marshal scalar codebook: %w", err)
		}
	case *productCodec:
		if !codec.trained {
			return nil, nil
		}
		if err := gob.NewEncoder(&buf).Encode(productCodebook{M: codec.m, Centroids: codec.centroids}); err != nil {
			return nil, fmt.Errorf("quant: marshal product codebook: %w", err)
		}
	default:
		return nil, fmt.Errorf("quant: unknown codec type %T", c)
	}
	return buf.Bytes(), nil
}

// UnmarshalCodebook builds a Codec for kind/dim and, if data is non-empty,
// restores its trained state from a prior MarshalCodebook so decode stays
// consistent with whatever was encoded before a restart.
func UnmarshalCodebook(kind config.QuantizationKind, dim int, data []byte) (Codec, error) {
	c, err := NewCodec(kind, dim)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return c, nil
	}

	switch codec := c.(type) {
	case *scalarCodec:
		var cb scalarCodebook
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cb); err != nil {
			return nil, fmt.Errorf("quant: unmarshal scalar codebook: %w", err)
		}
		codec.mins = cb.Mins
		codec.scale = cb.Scale
	case *productCodec:
		var cb productCodebook
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cb); err != nil {
			return nil, fmt.Errorf("quant: unmarshal product codebook: %w", err)
		}
		codec.m = cb.M
		codec.subDim = dim / cb.M
		codec.centroids = cb.Centroids
		codec.trained = true
	}
	return c, nil
}
