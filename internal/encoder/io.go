package encoder

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

const weightsFormat = "semsim-dense-v1"

type weightsFile struct {
	Format  string            `json:"format"`
	Tensors map[string][]byte `json:"tensors"`
}

func WriteConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func ReadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read model config: %v", appErr.ErrModel, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode model config: %v", appErr.ErrModel, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SaveWeights writes every parameter of m as a gonum binary blob.
func SaveWeights(path string, m Trainable) error {
	file := weightsFile{Format: weightsFormat, Tensors: make(map[string][]byte)}
	for _, p := range m.Params() {
		blob, err := p.Value.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encode %s: %w", p.Name, err)
		}
		file.Tensors[p.Name] = blob
	}
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadModel rebuilds an EmbeddingModel from a config and a weights file.
func LoadModel(cfg Config, weightsPath string, version string) (*EmbeddingModel, error) {
	if cfg.ModelType == "" {
		cfg.ModelType = ModelTypeEmbedding
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read weights: %v", appErr.ErrModel, err)
	}
	var file weightsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: decode weights: %v", appErr.ErrModel, err)
	}
	if file.Format != weightsFormat {
		return nil, fmt.Errorf("%w: unsupported weights format %q", appErr.ErrModel, file.Format)
	}
	tokens, err := decodeTensor(file.Tensors, "token_embeddings", cfg.VocabSize, cfg.HiddenSize)
	if err != nil {
		return nil, err
	}
	positions, err := decodeTensor(file.Tensors, "position_embeddings", cfg.MaxPositions, cfg.HiddenSize)
	if err != nil {
		return nil, err
	}
	return newFromWeights(cfg, version, tokens, positions), nil
}

func decodeTensor(tensors map[string][]byte, name string, rows, cols int) (*mat.Dense, error) {
	blob, ok := tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: weights missing tensor %s", appErr.ErrModel, name)
	}
	var m mat.Dense
	if err := m.UnmarshalBinary(blob); err != nil {
		return nil, fmt.Errorf("%w: decode tensor %s: %v", appErr.ErrModel, name, err)
	}
	r, c := m.Dims()
	if r != rows || c != cols {
		return nil, fmt.Errorf("%w: tensor %s has shape [%d,%d], want [%d,%d]", appErr.ErrModel, name, r, c, rows, cols)
	}
	return &m, nil
}
