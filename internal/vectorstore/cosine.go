package vectorstore

import (
	"math"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// CosineSimilarity returns dot(a,b) / (|a||b|). A zero-norm vector has
// similarity 0 with everything; vectors of different lengths are an error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.NewDimensionMismatchError(len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
