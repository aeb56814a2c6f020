package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semsim/internal/config"
	"github.com/xxxsen/semsim/internal/db"
	"github.com/xxxsen/semsim/internal/encoder"
	"github.com/xxxsen/semsim/internal/engine"
	"github.com/xxxsen/semsim/internal/filestore"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
	"github.com/xxxsen/semsim/internal/persist"
	"github.com/xxxsen/semsim/internal/repo"
	"github.com/xxxsen/semsim/internal/service"
	"github.com/xxxsen/semsim/internal/tokenizer"
	"github.com/xxxsen/semsim/internal/trainer"
)

type runtime struct {
	cfg         *config.Config
	db          *sql.DB
	snapshots   *persist.Manager
	engine      *engine.Engine
	datasetRepo *repo.DatasetRepo
	cacheRepo   *repo.EmbeddingCacheRepo
}

// buildRuntime opens storage and loads the serving model. withDB is false for
// one-shot commands that only need the model.
func buildRuntime(ctx context.Context, cfg *config.Config, withDB bool) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	var opts []persist.Option
	if cfg.FileStore.Type != "" {
		store, err := filestore.New(cfg.FileStore)
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
		opts = append(opts, persist.WithMirror(store))
	}
	snapshots, err := persist.NewManager(cfg.Model.SnapshotDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("init snapshot dir: %w", err)
	}
	rt.snapshots = snapshots

	if withDB && cfg.Database.Enabled() {
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.ApplyMigrations(conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		rt.db = conn
		rt.datasetRepo = repo.NewDatasetRepo(conn)
		if cfg.Database.EmbeddingCache {
			rt.cacheRepo = repo.NewEmbeddingCacheRepo(conn)
		}
	}

	model, tok, err := rt.loadModel(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	engineOpts := []engine.Option{
		engine.WithCache(cfg.Cache.Size, time.Duration(cfg.Cache.TTLSeconds)*time.Second),
	}
	if rt.cacheRepo != nil {
		engineOpts = append(engineOpts, engine.WithEmbeddingStore(rt.cacheRepo))
	}
	maxLength := cfg.Model.MaxSeqLength
	if positions := model.Config().MaxPositions; positions < maxLength {
		maxLength = positions
	}
	eng, err := engine.New(model, tok, maxLength, engineOpts...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}
	rt.engine = eng
	logutil.GetLogger(ctx).Info("model ready",
		zap.String("version", eng.ModelVersion()),
		zap.Int("hidden_size", eng.HiddenSize()),
		zap.Int("max_length", maxLength),
	)
	return rt, nil
}

// loadModel picks the configured version, else the newest snapshot, else a
// freshly initialized base model.
func (rt *runtime) loadModel(ctx context.Context) (*encoder.EmbeddingModel, *tokenizer.HashTokenizer, error) {
	cfg := rt.cfg.Model
	var path string
	if cfg.LoadVersion != "" {
		p, err := rt.snapshots.Resolve(cfg.LoadVersion)
		if err != nil {
			return nil, nil, fmt.Errorf("load_version %s: %w", cfg.LoadVersion, err)
		}
		path = p
	} else {
		latest, err := rt.snapshots.Latest(ctx)
		switch {
		case err == nil:
			path = latest.Path
		case errors.Is(err, appErr.ErrNotFound):
		default:
			return nil, nil, err
		}
	}
	if path != "" {
		loaded, err := persist.LoadModel(path)
		if err != nil {
			return nil, nil, err
		}
		tok, err := tokenizer.New(loaded.Tokenizer)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot %s tokenizer: %w", path, err)
		}
		logutil.GetLogger(ctx).Info("snapshot loaded", zap.String("path", path))
		return loaded.Model, tok, nil
	}

	logutil.GetLogger(ctx).Info("no snapshot found, initializing base model", zap.String("base_model", cfg.BaseModelName))
	model, err := encoder.NewEmbeddingModel(encoder.Config{
		ModelType:    encoder.ModelTypeEmbedding,
		VocabSize:    cfg.VocabSize,
		HiddenSize:   cfg.HiddenSize,
		MaxPositions: cfg.MaxSeqLength,
		Seed:         cfg.Seed,
	}, cfg.BaseModelName)
	if err != nil {
		return nil, nil, err
	}
	tok, err := tokenizer.New(tokenizer.DefaultConfig(cfg.VocabSize))
	if err != nil {
		return nil, nil, err
	}
	return model, tok, nil
}

func (rt *runtime) trainerDefaults() trainer.Params {
	ft := rt.cfg.Finetune
	return trainer.Params{
		LearningRate:       ft.LearningRate,
		BatchSize:          ft.BatchSize,
		NumEpochs:          ft.NumEpochs,
		CheckpointInterval: ft.CheckpointInterval,
		OutputDir:          ft.OutputDir,
	}
}

func (rt *runtime) datasetStore() service.DatasetStore {
	if rt.datasetRepo == nil {
		return nil
	}
	return rt.datasetRepo
}

func (rt *runtime) Close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

func printVersions(ctx context.Context, cfg *config.Config) error {
	snapshots, err := persist.NewManager(cfg.Model.SnapshotDir)
	if err != nil {
		return err
	}
	versions, err := snapshots.ListVersions(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tCREATED\tSAMPLES\tEPOCHS\tFINAL_LOSS")
	for _, v := range versions {
		stats := v.Metadata.TrainingStats
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.6f\n", v.Name, v.Metadata.Timestamp.Format(time.RFC3339), stats.TotalSamples, stats.EpochsCompleted, stats.FinalLoss)
	}
	return w.Flush()
}

func printSimilarity(ctx context.Context, cfg *config.Config, text1, text2 string) error {
	rt, err := buildRuntime(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	breakdown, err := rt.engine.Explain(ctx, text1, text2)
	if err != nil {
		return err
	}
	fmt.Printf("similarity: %.4f\n", breakdown.Final)
	fmt.Printf("raw cosine: %.4f  opposition: %.4f  equivalence bonus: %.4f\n",
		breakdown.RawCosine, breakdown.Opposition.Total, breakdown.Equivalence.Bonus)
	return nil
}
