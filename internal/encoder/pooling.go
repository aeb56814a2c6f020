package encoder

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

// MeanPool averages hidden states over positions where mask is non-zero.
// A row with no attended positions pools to the zero vector.
func MeanPool(hidden [][][]float64, mask [][]int) ([][]float64, error) {
	if len(hidden) != len(mask) {
		return nil, fmt.Errorf("%w: hidden batch %d does not match mask batch %d", appErr.ErrModel, len(hidden), len(mask))
	}
	out := make([][]float64, len(hidden))
	for b, rows := range hidden {
		if len(rows) != len(mask[b]) {
			return nil, fmt.Errorf("%w: hidden row %d has %d positions, mask has %d", appErr.ErrModel, b, len(rows), len(mask[b]))
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: hidden row %d is empty", appErr.ErrModel, b)
		}
		pooled := make([]float64, len(rows[0]))
		count := 0.0
		for t, row := range rows {
			if mask[b][t] == 0 {
				continue
			}
			if len(row) != len(pooled) {
				return nil, fmt.Errorf("%w: hidden size mismatch at [%d,%d]", appErr.ErrModel, b, t)
			}
			w := float64(mask[b][t])
			floats.AddScaled(pooled, w, row)
			count += w
		}
		if count > 0 {
			floats.Scale(1/count, pooled)
		}
		out[b] = pooled
	}
	return out, nil
}

// Embed runs Forward and MeanPool in one call.
func Embed(m Model, ids, mask [][]int) ([][]float64, error) {
	hidden, err := m.Forward(ids, mask)
	if err != nil {
		return nil, err
	}
	return MeanPool(hidden, mask)
}
