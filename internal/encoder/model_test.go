package encoder

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

func testConfig() Config {
	return Config{VocabSize: 32, HiddenSize: 8, MaxPositions: 16, Seed: 7}
}

func newTestModel(t *testing.T) *EmbeddingModel {
	t.Helper()
	m, err := NewEmbeddingModel(testConfig(), "test")
	require.NoError(t, err)
	return m
}

func TestForwardShape(t *testing.T) {
	m := newTestModel(t)
	hidden, err := m.Forward([][]int{{2, 5, 3}, {2, 9, 0}}, [][]int{{1, 1, 1}, {1, 1, 0}})
	require.NoError(t, err)
	require.Len(t, hidden, 2)
	require.Len(t, hidden[0], 3)
	require.Len(t, hidden[0][0], 8)
}

func TestForwardRejectsBadShapes(t *testing.T) {
	m := newTestModel(t)
	tests := []struct {
		name string
		ids  [][]int
		mask [][]int
	}{
		{name: "empty batch", ids: nil, mask: nil},
		{name: "batch mismatch", ids: [][]int{{1}}, mask: [][]int{{1}, {1}}},
		{name: "ragged ids", ids: [][]int{{1, 2}, {1}}, mask: [][]int{{1, 1}, {1, 1}}},
		{name: "mask length", ids: [][]int{{1, 2}}, mask: [][]int{{1}}},
		{name: "id out of vocab", ids: [][]int{{99}}, mask: [][]int{{1}}},
		{name: "too long", ids: [][]int{make([]int, 17)}, mask: [][]int{make([]int, 17)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Forward(tt.ids, tt.mask)
			require.Error(t, err)
			require.True(t, errors.Is(err, appErr.ErrModel))
		})
	}
}

func TestMeanPoolIgnoresPadding(t *testing.T) {
	hidden := [][][]float64{{{1, 2}, {3, 4}, {100, 100}}}
	pooled, err := MeanPool(hidden, [][]int{{1, 1, 0}})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{2, 3}, pooled[0], 1e-12)

	pooled, err = MeanPool([][][]float64{{{1, 2}}}, [][]int{{0}})
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0}, pooled[0])
}

func TestBackwardMatchesFiniteDifference(t *testing.T) {
	m := newTestModel(t)
	ids := [][]int{{2, 5, 3}}
	mask := [][]int{{1, 1, 1}}
	g := []float64{1, 0, 0, 0, 0, 0, 0, 0}
	require.NoError(t, m.Backward(ids, mask, [][]float64{g}))

	// loss = pooled[0][0]; token 5 appears once in 3 positions.
	require.InDelta(t, 1.0/3.0, m.tokenGrad.At(5, 0), 1e-12)
	require.InDelta(t, 0.0, m.tokenGrad.At(5, 1), 1e-12)
	require.InDelta(t, 1.0/3.0, m.posGrad.At(1, 0), 1e-12)

	m.ZeroGrad()
	require.Equal(t, 0.0, m.tokenGrad.At(5, 0))
}

func TestCloneIsIndependent(t *testing.T) {
	m := newTestModel(t)
	c := m.Clone("copy")
	require.Equal(t, "copy", c.Version())
	c.Params()[0].Value.Set(0, 0, 42)
	require.NotEqual(t, 42.0, m.tokens.At(0, 0))
}

func TestWeightsRoundTrip(t *testing.T) {
	m := newTestModel(t)
	dir := t.TempDir()
	weights := filepath.Join(dir, "model.bin")
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, SaveWeights(weights, m))
	require.NoError(t, WriteConfig(cfgPath, m.Config()))

	cfg, err := ReadConfig(cfgPath)
	require.NoError(t, err)
	loaded, err := LoadModel(cfg, weights, "v1")
	require.NoError(t, err)
	require.Equal(t, "v1", loaded.Version())

	ids, mask := [][]int{{2, 4, 3}}, [][]int{{1, 1, 1}}
	want, err := Embed(m, ids, mask)
	require.NoError(t, err)
	got, err := Embed(loaded, ids, mask)
	require.NoError(t, err)
	require.InDeltaSlice(t, want[0], got[0], 1e-12)
}

func TestLoadModelRejectsShapeMismatch(t *testing.T) {
	m := newTestModel(t)
	weights := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, SaveWeights(weights, m))
	cfg := testConfig()
	cfg.HiddenSize = 4
	_, err := LoadModel(cfg, weights, "bad")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErr.ErrModel))
}
