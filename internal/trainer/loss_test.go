package trainer

import (
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

func TestCosineEmbeddingLossValues(t *testing.T) {
	tests := []struct {
		name  string
		e1    []float64
		e2    []float64
		label float64
		want  float64
	}{
		{name: "identical positive", e1: []float64{1, 2, 3}, e2: []float64{1, 2, 3}, label: 1, want: 0},
		{name: "orthogonal positive", e1: []float64{1, 0}, e2: []float64{0, 1}, label: 1, want: 1},
		{name: "opposite positive", e1: []float64{1, 0}, e2: []float64{-1, 0}, label: 1, want: 2},
		{name: "zero label", e1: []float64{1, 2}, e2: []float64{1, 2}, label: 0, want: 1},
		{name: "half label", e1: []float64{3, 4}, e2: []float64{3, 4}, label: 0.5, want: 0.5},
		{name: "zero vector", e1: []float64{0, 0}, e2: []float64{1, 1}, label: 1, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loss, _, _, err := CosineEmbeddingLoss([][]float64{tt.e1}, [][]float64{tt.e2}, []float64{tt.label})
			require.NoError(t, err)
			require.InDelta(t, tt.want, loss, 1e-9)
		})
	}
}

func TestCosineEmbeddingLossIsBatchMean(t *testing.T) {
	loss, _, _, err := CosineEmbeddingLoss(
		[][]float64{{1, 0}, {1, 0}},
		[][]float64{{1, 0}, {0, 1}},
		[]float64{1, 1},
	)
	require.NoError(t, err)
	require.InDelta(t, 0.5, loss, 1e-9)
}

func TestCosineEmbeddingLossGradient(t *testing.T) {
	e1 := [][]float64{{0.3, -0.2, 0.5}, {0.1, 0.4, -0.3}}
	e2 := [][]float64{{0.2, 0.1, 0.4}, {-0.5, 0.2, 0.1}}
	labels := []float64{1, 0.3}
	_, g1, g2, err := CosineEmbeddingLoss(e1, e2, labels)
	require.NoError(t, err)

	const h = 1e-6
	check := func(target [][]float64, grad [][]float64) {
		for i := range target {
			for k := range target[i] {
				orig := target[i][k]
				target[i][k] = orig + h
				up, _, _, err := CosineEmbeddingLoss(e1, e2, labels)
				require.NoError(t, err)
				target[i][k] = orig - h
				down, _, _, err := CosineEmbeddingLoss(e1, e2, labels)
				require.NoError(t, err)
				target[i][k] = orig
				require.InDelta(t, (up-down)/(2*h), grad[i][k], 1e-5, "row %d col %d", i, k)
			}
		}
	}
	check(e1, g1)
	check(e2, g2)
}

func TestCosineEmbeddingLossShapeErrors(t *testing.T) {
	_, _, _, err := CosineEmbeddingLoss(nil, nil, nil)
	require.ErrorIs(t, err, appErr.ErrTraining)
	_, _, _, err = CosineEmbeddingLoss([][]float64{{1}}, [][]float64{{1}, {2}}, []float64{1})
	require.ErrorIs(t, err, appErr.ErrTraining)
	_, _, _, err = CosineEmbeddingLoss([][]float64{{1, 2}}, [][]float64{{1}}, []float64{1})
	require.ErrorIs(t, err, appErr.ErrTraining)
}
