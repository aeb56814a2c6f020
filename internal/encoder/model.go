package encoder

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

const ModelTypeEmbedding = "embedding"

type Config struct {
	ModelType    string  `json:"model_type"`
	VocabSize    int     `json:"vocab_size"`
	HiddenSize   int     `json:"hidden_size"`
	MaxPositions int     `json:"max_positions"`
	InitStd      float64 `json:"init_std"`
	Seed         int64   `json:"seed"`
}

func (c Config) Validate() error {
	if c.ModelType != "" && c.ModelType != ModelTypeEmbedding {
		return fmt.Errorf("%w: unsupported model_type: %s", appErr.ErrModel, c.ModelType)
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("%w: vocab_size must be positive", appErr.ErrModel)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("%w: hidden_size must be positive", appErr.ErrModel)
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("%w: max_positions must be positive", appErr.ErrModel)
	}
	return nil
}

// Model produces per-token hidden states. Implementations must be safe for
// concurrent Forward calls.
type Model interface {
	Forward(ids, mask [][]int) ([][][]float64, error)
	HiddenSize() int
	Config() Config
	Version() string
}

// Param is a named weight matrix with its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// Trainable models expose parameters and the gradient of the pooled output.
// Trainable methods other than Forward are not safe for concurrent use.
type Trainable interface {
	Model
	Params() []Param
	Backward(ids, mask [][]int, gradPooled [][]float64) error
	ZeroGrad()
	Clone(version string) Trainable
}

// EmbeddingModel computes hidden[b][t] = tokens[ids[b][t]] + positions[t].
type EmbeddingModel struct {
	cfg       Config
	version   string
	tokens    *mat.Dense
	positions *mat.Dense
	tokenGrad *mat.Dense
	posGrad   *mat.Dense
}

func NewEmbeddingModel(cfg Config, version string) (*EmbeddingModel, error) {
	if cfg.ModelType == "" {
		cfg.ModelType = ModelTypeEmbedding
	}
	if cfg.InitStd <= 0 {
		cfg.InitStd = 0.1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	tokens := mat.NewDense(cfg.VocabSize, cfg.HiddenSize, nil)
	positions := mat.NewDense(cfg.MaxPositions, cfg.HiddenSize, nil)
	fill(tokens, rng, cfg.InitStd)
	fill(positions, rng, cfg.InitStd*0.1)
	return newFromWeights(cfg, version, tokens, positions), nil
}

func newFromWeights(cfg Config, version string, tokens, positions *mat.Dense) *EmbeddingModel {
	return &EmbeddingModel{
		cfg:       cfg,
		version:   version,
		tokens:    tokens,
		positions: positions,
		tokenGrad: mat.NewDense(cfg.VocabSize, cfg.HiddenSize, nil),
		posGrad:   mat.NewDense(cfg.MaxPositions, cfg.HiddenSize, nil),
	}
}

func fill(m *mat.Dense, rng *rand.Rand, std float64) {
	raw := m.RawMatrix()
	for i := range raw.Data {
		raw.Data[i] = rng.NormFloat64() * std
	}
}

func (m *EmbeddingModel) HiddenSize() int {
	return m.cfg.HiddenSize
}

func (m *EmbeddingModel) Config() Config {
	return m.cfg
}

func (m *EmbeddingModel) Version() string {
	return m.version
}

func (m *EmbeddingModel) Forward(ids, mask [][]int) ([][][]float64, error) {
	seqLen, err := m.checkShape(ids, mask)
	if err != nil {
		return nil, err
	}
	out := make([][][]float64, len(ids))
	for b := range ids {
		rows := make([][]float64, seqLen)
		for t, id := range ids[b] {
			row := make([]float64, m.cfg.HiddenSize)
			copy(row, m.tokens.RawRowView(id))
			floats.Add(row, m.positions.RawRowView(t))
			rows[t] = row
		}
		out[b] = rows
	}
	return out, nil
}

func (m *EmbeddingModel) checkShape(ids, mask [][]int) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: input_ids batch is empty", appErr.ErrModel)
	}
	if len(mask) != len(ids) {
		return 0, fmt.Errorf("%w: attention_mask batch %d does not match input_ids batch %d", appErr.ErrModel, len(mask), len(ids))
	}
	seqLen := len(ids[0])
	if seqLen == 0 {
		return 0, fmt.Errorf("%w: input_ids sequence is empty", appErr.ErrModel)
	}
	if seqLen > m.cfg.MaxPositions {
		return 0, fmt.Errorf("%w: sequence length %d exceeds max_positions %d", appErr.ErrModel, seqLen, m.cfg.MaxPositions)
	}
	for b := range ids {
		if len(ids[b]) != seqLen {
			return 0, fmt.Errorf("%w: input_ids row %d has length %d, want %d", appErr.ErrModel, b, len(ids[b]), seqLen)
		}
		if len(mask[b]) != seqLen {
			return 0, fmt.Errorf("%w: attention_mask row %d has length %d, want %d", appErr.ErrModel, b, len(mask[b]), seqLen)
		}
		for t, id := range ids[b] {
			if id < 0 || id >= m.cfg.VocabSize {
				return 0, fmt.Errorf("%w: token id %d at [%d,%d] outside vocab of %d", appErr.ErrModel, id, b, t, m.cfg.VocabSize)
			}
		}
	}
	return seqLen, nil
}

func (m *EmbeddingModel) Params() []Param {
	return []Param{
		{Name: "token_embeddings", Value: m.tokens, Grad: m.tokenGrad},
		{Name: "position_embeddings", Value: m.positions, Grad: m.posGrad},
	}
}

// Backward accumulates d(loss)/d(weights) given d(loss)/d(pooled) for a batch
// pooled with MeanPool.
func (m *EmbeddingModel) Backward(ids, mask [][]int, gradPooled [][]float64) error {
	if _, err := m.checkShape(ids, mask); err != nil {
		return err
	}
	if len(gradPooled) != len(ids) {
		return fmt.Errorf("%w: gradient batch %d does not match input batch %d", appErr.ErrModel, len(gradPooled), len(ids))
	}
	for b := range ids {
		g := gradPooled[b]
		if len(g) != m.cfg.HiddenSize {
			return fmt.Errorf("%w: gradient row %d has size %d, want %d", appErr.ErrModel, b, len(g), m.cfg.HiddenSize)
		}
		count := 0
		for _, v := range mask[b] {
			if v != 0 {
				count++
			}
		}
		if count == 0 {
			continue
		}
		w := 1.0 / float64(count)
		for t, id := range ids[b] {
			if mask[b][t] == 0 {
				continue
			}
			floats.AddScaled(m.tokenGrad.RawRowView(id), w, g)
			floats.AddScaled(m.posGrad.RawRowView(t), w, g)
		}
	}
	return nil
}

func (m *EmbeddingModel) ZeroGrad() {
	m.tokenGrad.Zero()
	m.posGrad.Zero()
}

func (m *EmbeddingModel) Clone(version string) Trainable {
	return newFromWeights(m.cfg, version, mat.DenseCopyOf(m.tokens), mat.DenseCopyOf(m.positions))
}
