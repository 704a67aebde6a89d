package embeddings

import "math"

// FallbackVector produces a deterministic placeholder embedding for a
// text. The ingestion pipeline substitutes it when the provider fails
// or times out on a chunk, so ingestion can always complete; affected
// chunks are flagged degraded rather than silently passed off as
// healthy.
//
// The vector depends only on the text length, so re-ingesting the same
// content reproduces the same placeholder.
func FallbackVector(text string, dimension int) []float32 {
	seed := float64(len(text))
	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = float32(math.Sin(seed+float64(i)*0.01)*0.5 + math.Cos(seed*0.02)*0.3)
	}
	return vec
}
