package trainer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

const normFloor = 1e-8

// CosineEmbeddingLoss returns mean(1 - cos(e1_i, e2_i) * label_i) and its
// gradient with respect to each row of e1 and e2. Norms are clamped below at
// 1e-8.
func CosineEmbeddingLoss(e1, e2 [][]float64, labels []float64) (float64, [][]float64, [][]float64, error) {
	if len(e1) == 0 {
		return 0, nil, nil, fmt.Errorf("%w: loss over an empty batch", appErr.ErrTraining)
	}
	if len(e1) != len(e2) || len(e1) != len(labels) {
		return 0, nil, nil, fmt.Errorf("%w: loss batch sizes differ: %d, %d, %d labels", appErr.ErrTraining, len(e1), len(e2), len(labels))
	}
	n := float64(len(e1))
	total := 0.0
	g1 := make([][]float64, len(e1))
	g2 := make([][]float64, len(e2))
	for i := range e1 {
		a, b := e1[i], e2[i]
		if len(a) == 0 || len(a) != len(b) {
			return 0, nil, nil, fmt.Errorf("%w: embedding row %d has sizes %d and %d", appErr.ErrTraining, i, len(a), len(b))
		}
		na, clampedA := clampedNorm(a)
		nb, clampedB := clampedNorm(b)
		c := floats.Dot(a, b) / (na * nb)
		total += 1 - c*labels[i]

		dc := -labels[i] / n
		g1[i] = cosineGrad(a, b, na, nb, c, clampedA, dc)
		g2[i] = cosineGrad(b, a, nb, na, c, clampedB, dc)
	}
	return total / n, g1, g2, nil
}

func clampedNorm(v []float64) (float64, bool) {
	norm := floats.Norm(v, 2)
	if norm < normFloor {
		return normFloor, true
	}
	return norm, false
}

// cosineGrad is d(scale*cos)/dx for cos = x.y/(|x||y|).
func cosineGrad(x, y []float64, nx, ny, c float64, clamped bool, scale float64) []float64 {
	g := make([]float64, len(x))
	for k := range x {
		d := y[k] / (nx * ny)
		if !clamped {
			d -= c * x[k] / (nx * nx)
		}
		g[k] = scale * d
	}
	return g
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
