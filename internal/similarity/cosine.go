package similarity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

// Cosine returns the raw, unclamped cosine similarity of v1 and v2.
func Cosine(v1, v2 []float64) (float64, error) {
	if len(v1) == 0 || len(v2) == 0 {
		return 0, fmt.Errorf("%w: cannot compare empty vectors", appErr.ErrInvalidInput)
	}
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: vector length mismatch: %d vs %d", appErr.ErrInvalidInput, len(v1), len(v2))
	}
	n1 := floats.Norm(v1, 2)
	n2 := floats.Norm(v2, 2)
	if n1 == 0 || n2 == 0 || math.IsNaN(n1) || math.IsNaN(n2) {
		return 0, fmt.Errorf("%w: cannot compare zero-magnitude vectors", appErr.ErrInvalidInput)
	}
	c := floats.Dot(v1, v2) / (n1 * n2)
	return clamp(c, -1, 1), nil
}

// BaseSimilarity is the cosine clamped to [0,1].
func BaseSimilarity(v1, v2 []float64) (float64, error) {
	c, err := Cosine(v1, v2)
	if err != nil {
		return 0, err
	}
	return clamp(c, 0, 1), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round4 rounds to four decimal digits.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
