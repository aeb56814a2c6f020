package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const (
	FileWeights   = "model.bin"
	FileConfig    = "config.json"
	FileTokenizer = "tokenizer.json"
	FileMetadata  = "metadata.json"

	VersionLayout = "20060102T150405.000000000Z"
)

var requiredFiles = []string{FileWeights, FileConfig, FileTokenizer, FileMetadata}

type TrainingParams struct {
	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
	NumEpochs    int     `json:"num_epochs"`
}

type TrainingStats struct {
	TotalSamples    int     `json:"total_samples"`
	FinalLoss       float64 `json:"final_loss"`
	EpochsCompleted int     `json:"epochs_completed"`
}

// CheckpointInfo tags a mid-training snapshot.
type CheckpointInfo struct {
	Epoch int     `json:"epoch"`
	Loss  float64 `json:"loss"`
}

// Metadata is written once per snapshot and never modified.
type Metadata struct {
	Timestamp      time.Time       `json:"timestamp"`
	BaseModelName  string          `json:"base_model_name"`
	TrainingParams TrainingParams  `json:"training_params"`
	TrainingStats  TrainingStats   `json:"training_stats"`
	Checkpoint     *CheckpointInfo `json:"checkpoint,omitempty"`
}

func writeMetadata(path string, md Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func readMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, err
	}
	return md, nil
}
