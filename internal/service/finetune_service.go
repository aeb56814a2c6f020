package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semsim/internal/engine"
	"github.com/xxxsen/semsim/internal/job"
	"github.com/xxxsen/semsim/internal/model"
	"github.com/xxxsen/semsim/internal/optim"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
	"github.com/xxxsen/semsim/internal/persist"
	"github.com/xxxsen/semsim/internal/trainer"
)

// DatasetStore is the subset of repo.DatasetRepo used for training input.
type DatasetStore interface {
	Insert(ctx context.Context, dataset string, pairs []model.TrainingPairRecord, now int64) error
	ListPairs(ctx context.Context, dataset string) ([]model.TrainingPairRecord, error)
	ListDatasets(ctx context.Context) ([]model.DatasetSummary, error)
	Delete(ctx context.Context, dataset string) (int64, error)
}

type FinetuneRequest struct {
	TrainingData       []trainer.TrainingPair `json:"training_data"`
	LearningRate       float64                `json:"learning_rate"`
	BatchSize          int                    `json:"batch_size"`
	NumEpochs          int                    `json:"num_epochs"`
	CheckpointInterval int                    `json:"checkpoint_interval"`
	// OutputDir must stay empty; snapshots always go to the configured dir.
	OutputDir          string                 `json:"output_dir"`
}

type FinetuneOptions struct {
	Defaults      trainer.Params
	Optimizer     string
	GradClip      float64
	AutoDeploy    bool
	BaseModelName string
}

// FinetuneService runs fine-tuning jobs in the background. Callers observe
// progress only through Get and List.
type FinetuneService struct {
	engine    *engine.Engine
	registry  *job.Registry
	snapshots *persist.Manager
	datasets  DatasetStore
	opts      FinetuneOptions

	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

func NewFinetuneService(eng *engine.Engine, registry *job.Registry, snapshots *persist.Manager, datasets DatasetStore, opts FinetuneOptions) *FinetuneService {
	ctx, cancel := context.WithCancel(context.Background())
	return &FinetuneService{
		engine:    eng,
		registry:  registry,
		snapshots: snapshots,
		datasets:  datasets,
		opts:      opts,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Submit validates the request and starts a job. The returned job is the
// pending entry; training continues after the call returns.
func (s *FinetuneService) Submit(ctx context.Context, req FinetuneRequest) (*job.FinetuneJob, error) {
	if err := trainer.ValidatePairs(req.TrainingData); err != nil {
		return nil, err
	}
	if req.OutputDir != "" {
		return nil, fmt.Errorf("%w: output_dir is fixed by finetune.output_dir and cannot be set per request", appErr.ErrInvalidInput)
	}
	params := s.params(req)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	optimizer, err := optim.New(s.opts.Optimizer, params.LearningRate, optim.WithGradClip(s.opts.GradClip))
	if err != nil {
		return nil, err
	}
	pairs := make([]trainer.TrainingPair, len(req.TrainingData))
	copy(pairs, req.TrainingData)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: service is shutting down", appErr.ErrConflict)
	}
	created := s.registry.Create(params.NumEpochs)
	s.wg.Add(1)
	go s.run(s.baseCtx, created.JobID, pairs, params, optimizer)

	logutil.GetLogger(ctx).Info("finetune job submitted",
		zap.String("job_id", created.JobID),
		zap.Int("samples", len(pairs)),
		zap.Int("epochs", params.NumEpochs),
	)
	return &created, nil
}

// SubmitDataset trains on a dataset stored in the database.
func (s *FinetuneService) SubmitDataset(ctx context.Context, dataset string, req FinetuneRequest) (*job.FinetuneJob, error) {
	if s.datasets == nil {
		return nil, fmt.Errorf("%w: dataset storage is not configured", appErr.ErrInvalidInput)
	}
	dataset = strings.TrimSpace(dataset)
	if dataset == "" {
		return nil, fmt.Errorf("%w: dataset name is required", appErr.ErrInvalidInput)
	}
	records, err := s.datasets.ListPairs(ctx, dataset)
	if err != nil {
		return nil, err
	}
	req.TrainingData = make([]trainer.TrainingPair, 0, len(records))
	for _, r := range records {
		req.TrainingData = append(req.TrainingData, trainer.TrainingPair{
			Sentence1:  r.Sentence1,
			Sentence2:  r.Sentence2,
			Similarity: r.Similarity,
		})
	}
	return s.Submit(ctx, req)
}

func (s *FinetuneService) ImportDataset(ctx context.Context, dataset string, pairs []trainer.TrainingPair, now int64) error {
	if s.datasets == nil {
		return fmt.Errorf("%w: dataset storage is not configured", appErr.ErrInvalidInput)
	}
	dataset = strings.TrimSpace(dataset)
	if dataset == "" {
		return fmt.Errorf("%w: dataset name is required", appErr.ErrInvalidInput)
	}
	if err := trainer.ValidatePairs(pairs); err != nil {
		return err
	}
	records := make([]model.TrainingPairRecord, 0, len(pairs))
	for _, p := range pairs {
		records = append(records, model.TrainingPairRecord{
			Dataset:    dataset,
			Sentence1:  p.Sentence1,
			Sentence2:  p.Sentence2,
			Similarity: p.Similarity,
		})
	}
	return s.datasets.Insert(ctx, dataset, records, now)
}

func (s *FinetuneService) ListDatasets(ctx context.Context) ([]model.DatasetSummary, error) {
	if s.datasets == nil {
		return []model.DatasetSummary{}, nil
	}
	return s.datasets.ListDatasets(ctx)
}

func (s *FinetuneService) DeleteDataset(ctx context.Context, dataset string) error {
	if s.datasets == nil {
		return fmt.Errorf("%w: dataset storage is not configured", appErr.ErrInvalidInput)
	}
	n, err := s.datasets.Delete(ctx, strings.TrimSpace(dataset))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: dataset %s", appErr.ErrNotFound, dataset)
	}
	logutil.GetLogger(ctx).Info("dataset deleted", zap.String("dataset", dataset), zap.Int64("pairs", n))
	return nil
}

func (s *FinetuneService) Get(ctx context.Context, id string) (*job.FinetuneJob, error) {
	j, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: job %s", appErr.ErrNotFound, id)
	}
	return &j, nil
}

func (s *FinetuneService) List(ctx context.Context) []job.FinetuneJob {
	return s.registry.List()
}

// Remove deletes a finished job. Jobs that may still run cannot be removed.
func (s *FinetuneService) Remove(ctx context.Context, id string) error {
	j, ok := s.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: job %s", appErr.ErrNotFound, id)
	}
	if !j.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", appErr.ErrConflict, id, j.Status)
	}
	s.registry.Remove(id)
	return nil
}

func (s *FinetuneService) params(req FinetuneRequest) trainer.Params {
	p := s.opts.Defaults
	if req.LearningRate > 0 {
		p.LearningRate = req.LearningRate
	}
	if req.BatchSize != 0 {
		p.BatchSize = req.BatchSize
	}
	if req.NumEpochs != 0 {
		p.NumEpochs = req.NumEpochs
	}
	if req.CheckpointInterval != 0 {
		p.CheckpointInterval = req.CheckpointInterval
	}
	return p
}

func (s *FinetuneService) run(ctx context.Context, id string, pairs []trainer.TrainingPair, params trainer.Params, optimizer optim.Optimizer) {
	defer s.wg.Done()
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", id))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("finetune job panicked", zap.Any("panic", r))
			s.registry.SetFailed(id, fmt.Sprintf("internal error: %v", r))
		}
	}()
	if !s.registry.SetRunning(id) {
		logger.Warn("finetune job not pending, skip")
		return
	}
	res, err := s.train(ctx, id, pairs, params, optimizer)
	if err != nil {
		if errors.Is(err, trainer.ErrInterrupted) {
			logger.Warn("finetune job interrupted", zap.Error(err))
		} else {
			logger.Error("finetune job failed", zap.Error(err))
		}
		s.registry.SetFailed(id, err.Error())
		return
	}
	if s.opts.AutoDeploy && res.ModelPath != "" {
		if err := s.deploy(res.ModelPath); err != nil {
			logger.Error("auto deploy failed", zap.String("model_path", res.ModelPath), zap.Error(err))
		}
	}
	s.registry.SetCompleted(id, res.ModelPath)
	logger.Info("finetune job completed", zap.Float64("final_loss", res.FinalLoss), zap.String("model_path", res.ModelPath))
}

func (s *FinetuneService) train(ctx context.Context, id string, pairs []trainer.TrainingPair, params trainer.Params, optimizer optim.Optimizer) (*trainer.Result, error) {
	clone, err := s.engine.CloneModel("finetune-" + id)
	if err != nil {
		return nil, err
	}
	var ckpt trainer.Checkpointer
	switch {
	case params.OutputDir != "" && (s.snapshots == nil || params.OutputDir != s.snapshots.BaseDir()):
		var opts []persist.Option
		if s.snapshots != nil && s.snapshots.Mirror() != nil {
			opts = append(opts, persist.WithMirror(s.snapshots.Mirror()))
		}
		mgr, err := persist.NewManager(params.OutputDir, opts...)
		if err != nil {
			return nil, err
		}
		ckpt = mgr
	case s.snapshots != nil:
		ckpt = s.snapshots
	}
	tr := trainer.New(clone, s.engine.Tokenizer(), s.engine.MaxLength(), optimizer, ckpt, s.opts.BaseModelName)
	return tr.Train(ctx, pairs, params, trainer.ProgressFunc(func(epoch int, loss float64) {
		s.registry.UpdateProgress(id, epoch, loss)
	}))
}

func (s *FinetuneService) deploy(path string) error {
	loaded, err := persist.LoadModel(path)
	if err != nil {
		return err
	}
	return s.engine.SwapModel(loaded.Model)
}

// Shutdown interrupts running jobs and waits for them to record their state.
// Jobs still running when ctx expires are marked failed directly.
func (s *FinetuneService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	logger := logutil.GetLogger(ctx)
	select {
	case <-done:
		logger.Info("finetune jobs drained")
		return nil
	case <-ctx.Done():
		for _, j := range s.registry.List() {
			if j.Status.Terminal() {
				continue
			}
			s.registry.SetFailed(j.JobID, fmt.Sprintf("interrupted at epoch %d", j.CurrentEpoch))
			logger.Warn("finetune job abandoned at shutdown", zap.String("job_id", j.JobID), zap.Int("epoch", j.CurrentEpoch))
		}
		return ctx.Err()
	}
}
