package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/semsim/internal/model"
)

// EmbeddingCacheRepo keeps pooled embeddings keyed by model version and
// content hash. It satisfies engine.EmbeddingStore.
type EmbeddingCacheRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db, now: time.Now}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelVersion, contentHash string) ([]float64, bool, error) {
	const query = `
		SELECT embedding
		FROM embedding_cache
		WHERE model_version = $1 AND content_hash = $2
	`
	row := r.db.QueryRowContext(ctx, query, modelVersion, contentHash)
	var embedding pgvector.Vector
	if err := row.Scan(&embedding); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return toFloat64(embedding.Slice()), true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, modelVersion, contentHash string, vector []float64) error {
	return r.Upsert(ctx, &model.EmbeddingCache{
		ModelVersion: modelVersion,
		ContentHash:  contentHash,
		Embedding:    toFloat32(vector),
		Ctime:        r.now().Unix(),
	})
}

func (r *EmbeddingCacheRepo) Upsert(ctx context.Context, item *model.EmbeddingCache) error {
	const query = `
		INSERT INTO embedding_cache (model_version, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model_version, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ModelVersion,
		item.ContentHash,
		pgvector.NewVector(item.Embedding),
		item.Ctime,
	)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM embedding_cache WHERE ctime < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOtherVersions drops rows written by any model version other than keep.
func (r *EmbeddingCacheRepo) DeleteOtherVersions(ctx context.Context, keep string) (int64, error) {
	const query = `DELETE FROM embedding_cache WHERE model_version <> $1`
	res, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
