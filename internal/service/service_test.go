package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/semsim/internal/encoder"
	"github.com/xxxsen/semsim/internal/engine"
	"github.com/xxxsen/semsim/internal/job"
	"github.com/xxxsen/semsim/internal/model"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
	"github.com/xxxsen/semsim/internal/persist"
	"github.com/xxxsen/semsim/internal/tokenizer"
	"github.com/xxxsen/semsim/internal/trainer"
)

const testVocab = 256

type fixture struct {
	engine    *engine.Engine
	registry  *job.Registry
	snapshots *persist.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := encoder.NewEmbeddingModel(encoder.Config{VocabSize: testVocab, HiddenSize: 16, MaxPositions: 32, Seed: 11}, "base")
	require.NoError(t, err)
	tok, err := tokenizer.New(tokenizer.DefaultConfig(testVocab))
	require.NoError(t, err)
	eng, err := engine.New(m, tok, 32, engine.WithCache(64, time.Minute))
	require.NoError(t, err)
	snapshots, err := persist.NewManager(t.TempDir())
	require.NoError(t, err)
	return &fixture{engine: eng, registry: job.NewRegistry(), snapshots: snapshots}
}

func (f *fixture) finetune(datasets DatasetStore, autoDeploy bool) *FinetuneService {
	return NewFinetuneService(f.engine, f.registry, f.snapshots, datasets, FinetuneOptions{
		Defaults:      trainer.Params{LearningRate: 0.01, BatchSize: 2, NumEpochs: 2, CheckpointInterval: 1},
		Optimizer:     "adam",
		AutoDeploy:    autoDeploy,
		BaseModelName: "semsim-base",
	})
}

func samplePairs() []trainer.TrainingPair {
	return []trainer.TrainingPair{
		{Sentence1: "hello world", Sentence2: "hello world", Similarity: 1.0},
		{Sentence1: "the market fell", Sentence2: "a quiet lake", Similarity: 0.5},
	}
}

func waitTerminal(t *testing.T, svc *FinetuneService, id string) *job.FinetuneJob {
	t.Helper()
	var got *job.FinetuneJob
	require.Eventually(t, func() bool {
		j, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		got = j
		return j.Status.Terminal()
	}, 30*time.Second, 10*time.Millisecond)
	return got
}

func TestSubmitRunsToCompletion(t *testing.T) {
	f := newFixture(t)
	svc := f.finetune(nil, false)
	defer func() { _ = svc.Shutdown(context.Background()) }()

	created, err := svc.Submit(context.Background(), FinetuneRequest{TrainingData: samplePairs()})
	require.NoError(t, err)
	require.Equal(t, job.StatusPending, created.Status)
	require.Equal(t, 2, created.TotalEpochs)

	done := waitTerminal(t, svc, created.JobID)
	require.Equal(t, job.StatusCompleted, done.Status)
	require.Equal(t, 100.0, done.Progress)
	require.NotNil(t, done.CurrentLoss)
	require.GreaterOrEqual(t, *done.CurrentLoss, 0.0)

	md, err := persist.LoadAndValidate(done.ModelPath)
	require.NoError(t, err)
	require.Equal(t, 2, md.TrainingStats.EpochsCompleted)
	require.Equal(t, "base", f.engine.ModelVersion(), "no auto deploy")

	checkpoints, err := f.snapshots.ListCheckpoints(context.Background())
	require.NoError(t, err)
	require.Len(t, checkpoints, 2)
}

func TestSubmitAutoDeploy(t *testing.T) {
	f := newFixture(t)
	svc := f.finetune(nil, true)
	defer func() { _ = svc.Shutdown(context.Background()) }()

	created, err := svc.Submit(context.Background(), FinetuneRequest{TrainingData: samplePairs(), NumEpochs: 1})
	require.NoError(t, err)
	done := waitTerminal(t, svc, created.JobID)
	require.Equal(t, job.StatusCompleted, done.Status)
	require.Equal(t, filepath.Base(done.ModelPath), f.engine.ModelVersion())
	require.Equal(t, uint64(2), f.engine.Generation())

	score, err := f.engine.ComputeSimilarity(context.Background(), "hello world", "hello world")
	require.NoError(t, err)
	require.GreaterOrEqual(t, score, 0.99)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	svc := f.finetune(nil, false)
	defer func() { _ = svc.Shutdown(context.Background()) }()

	tests := []struct {
		name string
		req  FinetuneRequest
	}{
		{name: "empty", req: FinetuneRequest{}},
		{name: "bad label", req: FinetuneRequest{TrainingData: []trainer.TrainingPair{{Sentence1: "a", Sentence2: "b", Similarity: -0.1}}}},
		{name: "bad epochs", req: FinetuneRequest{TrainingData: samplePairs(), NumEpochs: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.req)
			require.ErrorIs(t, err, appErr.ErrInvalidInput)
		})
	}
	require.Empty(t, svc.List(context.Background()))
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	svc := f.finetune(nil, false)
	defer func() { _ = svc.Shutdown(context.Background()) }()

	require.ErrorIs(t, svc.Remove(context.Background(), "missing"), appErr.ErrNotFound)

	pending := f.registry.Create(1)
	require.ErrorIs(t, svc.Remove(context.Background(), pending.JobID), appErr.ErrConflict)

	created, err := svc.Submit(context.Background(), FinetuneRequest{TrainingData: samplePairs(), NumEpochs: 1})
	require.NoError(t, err)
	waitTerminal(t, svc, created.JobID)
	require.NoError(t, svc.Remove(context.Background(), created.JobID))
	_, err = svc.Get(context.Background(), created.JobID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestShutdownInterruptsRunningJobs(t *testing.T) {
	f := newFixture(t)
	svc := f.finetune(nil, false)

	created, err := svc.Submit(context.Background(), FinetuneRequest{TrainingData: samplePairs(), NumEpochs: 1000000, CheckpointInterval: 1000000})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, _ := svc.Get(context.Background(), created.JobID)
		return j.Status == job.StatusRunning && j.CurrentEpoch >= 1
	}, 30*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	j, err := svc.Get(context.Background(), created.JobID)
	require.NoError(t, err)
	require.Equal(t, job.StatusFailed, j.Status)
	require.NotNil(t, j.ErrorMessage)
	require.Contains(t, *j.ErrorMessage, "interrupted at epoch")

	checkpoints, err := f.snapshots.ListCheckpoints(context.Background())
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)

	_, err = svc.Submit(context.Background(), FinetuneRequest{TrainingData: samplePairs()})
	require.ErrorIs(t, err, appErr.ErrConflict)
}

func TestShutdownDeadlineMarksJobsFailed(t *testing.T) {
	f := newFixture(t)
	svc := f.finetune(nil, false)
	stuck := f.registry.Create(5)
	f.registry.SetRunning(stuck.JobID)
	f.registry.UpdateProgress(stuck.JobID, 3, 0.4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.wg.Add(1)
	err := svc.Shutdown(ctx)
	svc.wg.Done()
	require.ErrorIs(t, err, context.Canceled)

	j, _ := svc.Get(context.Background(), stuck.JobID)
	require.Equal(t, job.StatusFailed, j.Status)
	require.Equal(t, "interrupted at epoch 3", *j.ErrorMessage)
}

type fakeDatasets struct {
	records  map[string][]model.TrainingPairRecord
	inserted int
}

func (f *fakeDatasets) Insert(ctx context.Context, dataset string, pairs []model.TrainingPairRecord, now int64) error {
	f.records[dataset] = append(f.records[dataset], pairs...)
	f.inserted += len(pairs)
	return nil
}

func (f *fakeDatasets) ListPairs(ctx context.Context, dataset string) ([]model.TrainingPairRecord, error) {
	records, ok := f.records[dataset]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return records, nil
}

func (f *fakeDatasets) ListDatasets(ctx context.Context) ([]model.DatasetSummary, error) {
	out := make([]model.DatasetSummary, 0, len(f.records))
	for name, records := range f.records {
		out = append(out, model.DatasetSummary{Name: name, PairCount: int64(len(records))})
	}
	return out, nil
}

func (f *fakeDatasets) Delete(ctx context.Context, dataset string) (int64, error) {
	n := int64(len(f.records[dataset]))
	delete(f.records, dataset)
	return n, nil
}

func TestSubmitRejectsOutputDir(t *testing.T) {
	f := newFixture(t)
	svc := f.finetune(nil, false)
	defer func() { _ = svc.Shutdown(context.Background()) }()

	escaped := filepath.Join(t.TempDir(), "anywhere", "..", "..", "escaped")
	_, err := svc.Submit(context.Background(), FinetuneRequest{TrainingData: samplePairs(), OutputDir: escaped})
	require.ErrorIs(t, err, appErr.ErrInvalidInput)
	require.Equal(t, 0, f.registry.Len())
	_, statErr := os.Stat(filepath.Clean(escaped))
	require.True(t, os.IsNotExist(statErr))

	versions, err := f.snapshots.ListVersions(context.Background())
	require.NoError(t, err)
	require.Empty(t, versions)
}

func TestSubmitDataset(t *testing.T) {
	f := newFixture(t)
	store := &fakeDatasets{records: map[string][]model.TrainingPairRecord{}}
	svc := f.finetune(store, false)
	defer func() { _ = svc.Shutdown(context.Background()) }()

	require.NoError(t, svc.ImportDataset(context.Background(), "greetings", samplePairs(), 1))
	require.Equal(t, 2, store.inserted)
	require.ErrorIs(t, svc.ImportDataset(context.Background(), "", samplePairs(), 1), appErr.ErrInvalidInput)

	created, err := svc.SubmitDataset(context.Background(), "greetings", FinetuneRequest{NumEpochs: 1})
	require.NoError(t, err)
	done := waitTerminal(t, svc, created.JobID)
	require.Equal(t, job.StatusCompleted, done.Status)

	_, err = svc.SubmitDataset(context.Background(), "missing", FinetuneRequest{})
	require.True(t, errors.Is(err, appErr.ErrNotFound))

	require.NoError(t, svc.DeleteDataset(context.Background(), "greetings"))
	require.ErrorIs(t, svc.DeleteDataset(context.Background(), "greetings"), appErr.ErrNotFound)

	noDB := f.finetune(nil, false)
	defer func() { _ = noDB.Shutdown(context.Background()) }()
	_, err = noDB.SubmitDataset(context.Background(), "greetings", FinetuneRequest{})
	require.ErrorIs(t, err, appErr.ErrInvalidInput)
}

func TestModelServiceDeploy(t *testing.T) {
	f := newFixture(t)
	svc := NewModelService(f.engine, f.snapshots)

	versions, err := svc.Versions(context.Background())
	require.NoError(t, err)
	require.Empty(t, versions)

	clone, err := f.engine.CloneModel("copy")
	require.NoError(t, err)
	path, err := f.snapshots.Save(context.Background(), persist.Snapshot{
		Model:         clone,
		Tokenizer:     f.engine.Tokenizer().Config(),
		BaseModelName: "semsim-base",
	})
	require.NoError(t, err)

	versions, err = svc.Versions(context.Background())
	require.NoError(t, err)
	require.Len(t, versions, 1)

	info, err := svc.Deploy(context.Background(), filepath.Base(path))
	require.NoError(t, err)
	require.Equal(t, filepath.Base(path), info.Version)
	require.Equal(t, uint64(2), info.Generation)
	require.Equal(t, 16, info.HiddenSize)

	_, err = svc.Deploy(context.Background(), "20000101T000000.000000000Z")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = svc.Deploy(context.Background(), "../x")
	require.ErrorIs(t, err, appErr.ErrInvalidInput)
}
