package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/driftline/memorycore/internal/memory/model"
)

// PackVector serializes a 768-dim float32 vector to its packed binary
// form (3,072 bytes), little-endian per component.
func PackVector(v []float32) ([]byte, error) {
	if len(v) != model.EmbeddingDimensions {
		return nil, fmt.Errorf("store: vector has %d dimensions, want %d", len(v), model.EmbeddingDimensions)
	}
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out, nil
}

// UnpackVector is the inverse of PackVector.
func UnpackVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("store: packed vector length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if n != model.EmbeddingDimensions {
		return nil, fmt.Errorf("store: packed vector has %d dimensions, want %d", n, model.EmbeddingDimensions)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
