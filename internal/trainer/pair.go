package trainer

import (
	"fmt"
	"math"
	"strings"

	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

type TrainingPair struct {
	Sentence1  string  `json:"sentence1"`
	Sentence2  string  `json:"sentence2"`
	Similarity float64 `json:"similarity"`
}

func (p TrainingPair) Validate() error {
	if strings.TrimSpace(p.Sentence1) == "" {
		return fmt.Errorf("sentence1 is empty")
	}
	if strings.TrimSpace(p.Sentence2) == "" {
		return fmt.Errorf("sentence2 is empty")
	}
	if math.IsNaN(p.Similarity) || math.IsInf(p.Similarity, 0) {
		return fmt.Errorf("similarity is not a finite number")
	}
	if p.Similarity < 0 || p.Similarity > 1 {
		return fmt.Errorf("similarity %v is outside [0, 1]", p.Similarity)
	}
	return nil
}

// ValidatePairs checks every pair and names the first offending index.
func ValidatePairs(pairs []TrainingPair) error {
	if len(pairs) == 0 {
		return fmt.Errorf("%w: training dataset is empty", appErr.ErrInvalidInput)
	}
	for i, p := range pairs {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: pair at index %d: %v", appErr.ErrInvalidInput, i, err)
		}
	}
	return nil
}

type Params struct {
	LearningRate       float64 `json:"learning_rate"`
	BatchSize          int     `json:"batch_size"`
	NumEpochs          int     `json:"num_epochs"`
	CheckpointInterval int     `json:"checkpoint_interval"`
	OutputDir          string  `json:"output_dir"`
}

func (p Params) Validate() error {
	if p.LearningRate < 0 || math.IsNaN(p.LearningRate) || math.IsInf(p.LearningRate, 0) {
		return fmt.Errorf("%w: learning_rate must be a non-negative number", appErr.ErrInvalidInput)
	}
	if p.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", appErr.ErrInvalidInput)
	}
	if p.NumEpochs <= 0 {
		return fmt.Errorf("%w: num_epochs must be positive", appErr.ErrInvalidInput)
	}
	if p.CheckpointInterval < 0 {
		return fmt.Errorf("%w: checkpoint_interval must not be negative", appErr.ErrInvalidInput)
	}
	return nil
}
