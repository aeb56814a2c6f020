package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type snapshotPruner interface {
	Prune(ctx context.Context, maxKeep int) ([]string, error)
}

// SnapshotRetentionJob keeps the maxKeep newest model snapshots.
type SnapshotRetentionJob struct {
	pruner  snapshotPruner
	maxKeep int
}

func NewSnapshotRetentionJob(pruner snapshotPruner, maxKeep int) *SnapshotRetentionJob {
	return &SnapshotRetentionJob{pruner: pruner, maxKeep: maxKeep}
}

func (j *SnapshotRetentionJob) Name() string {
	return "snapshot_retention"
}

func (j *SnapshotRetentionJob) Run(ctx context.Context) error {
	if j.pruner == nil || j.maxKeep <= 0 {
		return nil
	}
	removed, err := j.pruner.Prune(ctx, j.maxKeep)
	if len(removed) > 0 {
		logutil.GetLogger(ctx).Info("snapshots pruned", zap.Strings("versions", removed), zap.Int("max_keep", j.maxKeep))
	}
	return err
}

// FinishedJobCleanupJob drops completed and failed jobs from the registry once
// they are older than maxAge.
type FinishedJobCleanupJob struct {
	registry *Registry
	maxAge   time.Duration
}

func NewFinishedJobCleanupJob(registry *Registry, maxAge time.Duration) *FinishedJobCleanupJob {
	return &FinishedJobCleanupJob{registry: registry, maxAge: maxAge}
}

func (j *FinishedJobCleanupJob) Name() string {
	return "finished_job_cleanup"
}

func (j *FinishedJobCleanupJob) Run(ctx context.Context) error {
	if j.registry == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	removed := j.registry.RemoveFinishedBefore(j.registry.now().Add(-maxAge))
	if removed > 0 {
		logutil.GetLogger(ctx).Info("finished jobs removed", zap.Int("count", removed))
	}
	return nil
}
