package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semsim/internal/encoder"
	"github.com/xxxsen/semsim/internal/optim"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
	"github.com/xxxsen/semsim/internal/persist"
	"github.com/xxxsen/semsim/internal/tokenizer"
)

var ErrInterrupted = errors.New("training interrupted")

// InterruptedError is returned when the context is cancelled between
// batches. Epoch is the last fully completed epoch.
type InterruptedError struct {
	Epoch          int
	CheckpointPath string
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted at epoch %d", e.Epoch)
}

func (e *InterruptedError) Is(target error) bool {
	return target == ErrInterrupted
}

type Progress interface {
	Report(epoch int, loss float64)
}

type ProgressFunc func(epoch int, loss float64)

func (f ProgressFunc) Report(epoch int, loss float64) {
	f(epoch, loss)
}

// Checkpointer persists snapshots of the model being trained.
type Checkpointer interface {
	Save(ctx context.Context, snap persist.Snapshot) (string, error)
	SaveCheckpoint(ctx context.Context, snap persist.Snapshot, epoch int, loss float64) (string, error)
}

type EpochStat struct {
	Epoch    int           `json:"epoch"`
	Loss     float64       `json:"loss"`
	Duration time.Duration `json:"duration"`
}

type Result struct {
	FinalLoss       float64     `json:"final_loss"`
	EpochsCompleted int         `json:"epochs_completed"`
	ModelPath       string      `json:"model_path"`
	History         []EpochStat `json:"training_history"`
}

// Trainer owns the model it updates. Callers pass a private copy, never a
// model that is serving requests.
type Trainer struct {
	model         encoder.Trainable
	tok           tokenizer.Tokenizer
	maxLength     int
	opt           optim.Optimizer
	ckpt          Checkpointer
	baseModelName string
}

func New(model encoder.Trainable, tok tokenizer.Tokenizer, maxLength int, opt optim.Optimizer, ckpt Checkpointer, baseModelName string) *Trainer {
	return &Trainer{
		model:         model,
		tok:           tok,
		maxLength:     maxLength,
		opt:           opt,
		ckpt:          ckpt,
		baseModelName: baseModelName,
	}
}

func (t *Trainer) Model() encoder.Trainable {
	return t.model
}

// Train runs the epoch loop. progress may be nil.
func (t *Trainer) Train(ctx context.Context, pairs []TrainingPair, params Params, progress Progress) (*Result, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: training dataset is empty", appErr.ErrTraining)
	}
	if err := ValidatePairs(pairs); err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrTraining, err)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrTraining, err)
	}
	if params.LearningRate > 0 {
		t.opt.SetLearningRate(params.LearningRate)
	}
	logger := logutil.GetLogger(ctx).With(
		zap.Int("samples", len(pairs)),
		zap.Int("epochs", params.NumEpochs),
		zap.Int("batch_size", params.BatchSize),
	)
	logger.Info("training started")

	res := &Result{History: make([]EpochStat, 0, params.NumEpochs)}
	t.model.ZeroGrad()
	for epoch := 1; epoch <= params.NumEpochs; epoch++ {
		start := time.Now()
		total := 0.0
		batches := 0
		for from := 0; from < len(pairs); from += params.BatchSize {
			if ctx.Err() != nil {
				return res, t.interrupt(ctx, pairs, params, res)
			}
			to := from + params.BatchSize
			if to > len(pairs) {
				to = len(pairs)
			}
			loss, err := t.step(pairs[from:to])
			if err != nil {
				return nil, fmt.Errorf("%w: epoch %d batch %d: %w", appErr.ErrTraining, epoch, batches, err)
			}
			total += loss
			batches++
		}
		avg := total / float64(batches)
		if !isFinite(avg) {
			return nil, fmt.Errorf("%w: epoch %d loss is not finite", appErr.ErrTraining, epoch)
		}
		stat := EpochStat{Epoch: epoch, Loss: avg, Duration: time.Since(start)}
		res.History = append(res.History, stat)
		res.EpochsCompleted = epoch
		res.FinalLoss = avg
		logger.Info("epoch finished", zap.Int("epoch", epoch), zap.Float64("loss", avg), zap.Duration("duration", stat.Duration))
		if progress != nil {
			progress.Report(epoch, avg)
		}
		if t.ckpt != nil && params.CheckpointInterval > 0 && epoch%params.CheckpointInterval == 0 {
			if _, err := t.ckpt.SaveCheckpoint(ctx, t.snapshot(pairs, params, res), epoch, avg); err != nil {
				return nil, fmt.Errorf("%w: checkpoint at epoch %d: %w", appErr.ErrTraining, epoch, err)
			}
		}
	}
	if t.ckpt != nil {
		path, err := t.ckpt.Save(ctx, t.snapshot(pairs, params, res))
		if err != nil {
			return nil, fmt.Errorf("%w: save final snapshot: %w", appErr.ErrTraining, err)
		}
		res.ModelPath = path
	}
	logger.Info("training finished", zap.Float64("final_loss", res.FinalLoss), zap.String("model_path", res.ModelPath))
	return res, nil
}

// interrupt writes a best-effort checkpoint on a context detached from the
// cancelled one.
func (t *Trainer) interrupt(ctx context.Context, pairs []TrainingPair, params Params, res *Result) error {
	ierr := &InterruptedError{Epoch: res.EpochsCompleted}
	logger := logutil.GetLogger(ctx).With(zap.Int("epoch", ierr.Epoch))
	if t.ckpt == nil {
		logger.Warn("training interrupted")
		return ierr
	}
	path, err := t.ckpt.SaveCheckpoint(context.WithoutCancel(ctx), t.snapshot(pairs, params, res), ierr.Epoch, res.FinalLoss)
	if err != nil {
		logger.Warn("training interrupted, checkpoint failed", zap.Error(err))
		return ierr
	}
	ierr.CheckpointPath = path
	logger.Warn("training interrupted", zap.String("checkpoint", path))
	return ierr
}

func (t *Trainer) snapshot(pairs []TrainingPair, params Params, res *Result) persist.Snapshot {
	return persist.Snapshot{
		Model:         t.model,
		Tokenizer:     t.tok.Config(),
		BaseModelName: t.baseModelName,
		Params: persist.TrainingParams{
			LearningRate: t.opt.LearningRate(),
			BatchSize:    params.BatchSize,
			NumEpochs:    params.NumEpochs,
		},
		Stats: persist.TrainingStats{
			TotalSamples:    len(pairs),
			FinalLoss:       res.FinalLoss,
			EpochsCompleted: res.EpochsCompleted,
		},
	}
}

func (t *Trainer) step(batch []TrainingPair) (float64, error) {
	first := make([]string, len(batch))
	second := make([]string, len(batch))
	labels := make([]float64, len(batch))
	for i, p := range batch {
		first[i] = p.Sentence1
		second[i] = p.Sentence2
		labels[i] = p.Similarity
	}
	ids1, mask1, e1, err := t.embed(first)
	if err != nil {
		return 0, fmt.Errorf("sentence1: %w", err)
	}
	ids2, mask2, e2, err := t.embed(second)
	if err != nil {
		return 0, fmt.Errorf("sentence2: %w", err)
	}
	loss, g1, g2, err := CosineEmbeddingLoss(e1, e2, labels)
	if err != nil {
		return 0, err
	}
	if err := t.model.Backward(ids1, mask1, g1); err != nil {
		return 0, err
	}
	if err := t.model.Backward(ids2, mask2, g2); err != nil {
		return 0, err
	}
	params := t.model.Params()
	if err := t.opt.Step(params); err != nil {
		return 0, err
	}
	t.opt.ZeroGrad(params)
	return loss, nil
}

func (t *Trainer) embed(texts []string) ([][]int, [][]int, [][]float64, error) {
	encs, err := t.tok.EncodeBatch(texts, true)
	if err != nil {
		return nil, nil, nil, err
	}
	ids, mask := tokenizer.Pad(encs, t.maxLength)
	pooled, err := encoder.Embed(t.model, ids, mask)
	if err != nil {
		return nil, nil, nil, err
	}
	return ids, mask, pooled, nil
}
