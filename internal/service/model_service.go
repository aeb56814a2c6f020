package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semsim/internal/engine"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
	"github.com/xxxsen/semsim/internal/persist"
	"github.com/xxxsen/semsim/internal/tokenizer"
)

type ModelInfo struct {
	Version    string `json:"version"`
	Generation uint64 `json:"generation"`
	HiddenSize int    `json:"hidden_size"`
	MaxLength  int    `json:"max_length"`
}

type ModelService struct {
	engine    *engine.Engine
	snapshots *persist.Manager
}

func NewModelService(eng *engine.Engine, snapshots *persist.Manager) *ModelService {
	return &ModelService{engine: eng, snapshots: snapshots}
}

func (s *ModelService) Current() ModelInfo {
	return ModelInfo{
		Version:    s.engine.ModelVersion(),
		Generation: s.engine.Generation(),
		HiddenSize: s.engine.HiddenSize(),
		MaxLength:  s.engine.MaxLength(),
	}
}

func (s *ModelService) Versions(ctx context.Context) ([]persist.Version, error) {
	if s.snapshots == nil {
		return []persist.Version{}, nil
	}
	return s.snapshots.ListVersions(ctx)
}

// Deploy loads a saved version, validates it and swaps it into the engine.
func (s *ModelService) Deploy(ctx context.Context, version string) (ModelInfo, error) {
	if s.snapshots == nil {
		return ModelInfo{}, fmt.Errorf("%w: snapshot storage is not configured", appErr.ErrInvalidInput)
	}
	path, err := s.snapshots.Resolve(version)
	if err != nil {
		return ModelInfo{}, err
	}
	loaded, err := persist.LoadModel(path)
	if err != nil {
		return ModelInfo{}, err
	}
	if loaded.Tokenizer == s.engine.Tokenizer().Config() {
		err = s.engine.SwapModel(loaded.Model)
	} else {
		var tok *tokenizer.HashTokenizer
		tok, err = tokenizer.New(loaded.Tokenizer)
		if err != nil {
			return ModelInfo{}, fmt.Errorf("%w: snapshot %s tokenizer: %v", appErr.ErrModel, version, err)
		}
		err = s.engine.SwapModelWithTokenizer(loaded.Model, tok)
	}
	if err != nil {
		return ModelInfo{}, err
	}
	logutil.GetLogger(ctx).Info("model deployed", zap.String("version", version), zap.String("path", path))
	return s.Current(), nil
}
