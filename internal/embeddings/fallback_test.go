package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackVectorDeterministic(t *testing.T) {
	a := FallbackVector("some chunk of text", 768)
	b := FallbackVector("some chunk of text", 768)
	assert.Equal(t, a, b)
}

func TestFallbackVectorDimension(t *testing.T) {
	for _, dim := range []int{0, 1, 384, 768} {
		assert.Len(t, FallbackVector("x", dim), dim)
	}
}

func TestFallbackVectorBounded(t *testing.T) {
	for _, v := range FallbackVector("bounded", 768) {
		assert.LessOrEqual(t, v, float32(0.8))
		assert.GreaterOrEqual(t, v, float32(-0.8))
	}
}
