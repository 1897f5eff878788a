package embedder

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"lukechampine.com/blake3"
)

// LocalProvider produces deterministic pseudo-embeddings derived from a
// blake3 XOF over (model, text). It needs no external service, which makes
// it the offline default: vectors are stable across runs and distinct per
// model, though they carry no semantic signal.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

// Construct resolves names against the model catalog so that unknown names
// fail the same way a real backend would.
func (p *LocalProvider) Construct(_ context.Context, name string) (Model, error) {
	dim, ok := CatalogDimension(name)
	if !ok {
		return nil, fmt.Errorf("failed to construct model %q: %w", name, ErrUnknownModel)
	}
	return &localModel{name: name, dimension: dim}, nil
}

type localModel struct {
	name      string
	dimension int
}

func (m *localModel) Name() string   { return m.name }
func (m *localModel) Dimension() int { return m.dimension }

func (m *localModel) Encode(_ context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = m.vector(text)
	}
	return embeddings, nil
}

// vector derives a unit-norm vector from the XOF stream keyed by model name
// and text.
func (m *localModel) vector(text string) []float32 {
	h := blake3.New(32, nil)
	h.Write([]byte(m.name))
	h.Write([]byte{0})
	h.Write([]byte(text))

	xof := h.XOF()
	buf := make([]byte, m.dimension*4)
	xof.Read(buf)

	vec := make([]float32, m.dimension)
	var norm float64
	for i := range vec {
		u := binary.LittleEndian.Uint32(buf[i*4:])
		vec[i] = float32(int32(u)) / float32(math.MaxInt32)
		norm += float64(vec[i]) * float64(vec[i])
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}
