package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type cacheDeleter interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
	DeleteOtherVersions(ctx context.Context, keep string) (int64, error)
}

// EmbeddingCacheCleanupJob expires old cached embeddings. When currentVersion
// is set, rows written for any other model key are dropped as well.
type EmbeddingCacheCleanupJob struct {
	repo           cacheDeleter
	maxAgeDays     int
	currentVersion func() string
	now            func() time.Time
}

func NewEmbeddingCacheCleanupJob(repo cacheDeleter, maxAgeDays int, currentVersion func() string) *EmbeddingCacheCleanupJob {
	return &EmbeddingCacheCleanupJob{repo: repo, maxAgeDays: maxAgeDays, currentVersion: currentVersion, now: time.Now}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := j.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	expired, err := j.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	var stale int64
	if j.currentVersion != nil {
		if keep := j.currentVersion(); keep != "" {
			if stale, err = j.repo.DeleteOtherVersions(ctx, keep); err != nil {
				return err
			}
		}
	}
	logutil.GetLogger(ctx).Info("embedding cache cleaned",
		zap.Int64("expired", expired),
		zap.Int64("stale_versions", stale),
	)
	return nil
}
