package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/semsim/internal/model"
	"github.com/xxxsen/semsim/internal/pkg/dbutil"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
)

// DatasetRepo stores named sets of labelled training pairs.
type DatasetRepo struct {
	db *sql.DB
}

func NewDatasetRepo(db *sql.DB) *DatasetRepo {
	return &DatasetRepo{db: db}
}

func (r *DatasetRepo) Insert(ctx context.Context, dataset string, pairs []model.TrainingPairRecord, now int64) error {
	if len(pairs) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, map[string]interface{}{
			"dataset":    dataset,
			"sentence1":  p.Sentence1,
			"sentence2":  p.Sentence2,
			"similarity": p.Similarity,
			"ctime":      now,
		})
	}
	sqlStr, args, err := builder.BuildInsert("training_pairs", rows)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsCheckViolation(err) {
			return fmt.Errorf("%w: similarity must be within [0, 1]", appErr.ErrInvalidInput)
		}
		return err
	}
	return nil
}

// ListPairs returns the pairs of a dataset in insertion order.
func (r *DatasetRepo) ListPairs(ctx context.Context, dataset string) ([]model.TrainingPairRecord, error) {
	where := map[string]interface{}{"dataset": dataset, "_orderby": "id asc"}
	sqlStr, args, err := builder.BuildSelect("training_pairs", where, []string{"id", "dataset", "sentence1", "sentence2", "similarity", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.TrainingPairRecord
	for rows.Next() {
		var item model.TrainingPairRecord
		if err := rows.Scan(&item.ID, &item.Dataset, &item.Sentence1, &item.Sentence2, &item.Similarity, &item.Ctime); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: dataset %s", appErr.ErrNotFound, dataset)
	}
	return results, nil
}

func (r *DatasetRepo) ListDatasets(ctx context.Context) ([]model.DatasetSummary, error) {
	sqlStr, args, err := builder.BuildSelect("training_pairs", map[string]interface{}{}, []string{"dataset", "COUNT(*) AS cnt", "MAX(ctime) AS mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr += " GROUP BY dataset ORDER BY dataset"
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]model.DatasetSummary, 0)
	for rows.Next() {
		var item model.DatasetSummary
		if err := rows.Scan(&item.Name, &item.PairCount, &item.Mtime); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func (r *DatasetRepo) Delete(ctx context.Context, dataset string) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("training_pairs", map[string]interface{}{"dataset": dataset})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
