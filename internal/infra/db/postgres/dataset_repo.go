package postgres

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	domain "github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
)

type DatasetRepository struct{ db *sql.DB }

func NewDatasetRepository(db *sql.DB) *DatasetRepository { return &DatasetRepository{db: db} }

// Save insert/update dataset metadata
func (r *DatasetRepository) Save(ctx context.Context, d *domain.Dataset) error {
	const q = `
INSERT INTO audit_datasets
(id, tenant_id, filename, object_key, content_type, size_bytes, row_count, uploaded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
 filename = EXCLUDED.filename,
 object_key = EXCLUDED.object_key,
 content_type = EXCLUDED.content_type,
 size_bytes = EXCLUDED.size_bytes,
 row_count = EXCLUDED.row_count;`

	uploaded := d.UploadedAt
	if uploaded.IsZero() {
		uploaded = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		d.ID, stringOrDash(d.TenantID), d.Filename, d.ObjectKey, d.ContentType,
		d.SizeBytes, d.RowCount, uploaded,
	)
	return ierr.WrapDatabase(err, "saving dataset")
}

// Get by ID + Tenant
func (r *DatasetRepository) Get(ctx context.Context, tenant string, id domain.DatasetID) (*domain.Dataset, error) {
	const q = `
SELECT id, tenant_id, filename, object_key, content_type, size_bytes, row_count, uploaded_at
FROM audit_datasets
WHERE tenant_id = $1 AND id = $2
LIMIT 1;`

	var d domain.Dataset
	err := r.db.QueryRowContext(ctx, q, tenant, id).Scan(
		&d.ID, &d.TenantID, &d.Filename, &d.ObjectKey, &d.ContentType, &d.SizeBytes, &d.RowCount, &d.UploadedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ierr.NotFoundf("dataset %s not found", id)
	case err != nil:
		return nil, ierr.WrapDatabase(err, "loading dataset")
	}
	return &d, nil
}

func (r *DatasetRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_datasets WHERE tenant_id = $1`, tenant).Scan(&total); err != nil {
		return domain.PaginatedResult{}, ierr.WrapDatabase(err, "getting total count")
	}

	const q = `
SELECT id, tenant_id, filename, object_key, content_type, size_bytes, row_count, uploaded_at
FROM audit_datasets
WHERE tenant_id = $1
ORDER BY uploaded_at DESC, id DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, (page-1)*pageSize)
	if err != nil {
		return domain.PaginatedResult{}, ierr.WrapDatabase(err, "querying datasets")
	}
	defer rows.Close()

	data := make([]*domain.Dataset, 0)
	for rows.Next() {
		var d domain.Dataset
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Filename, &d.ObjectKey, &d.ContentType, &d.SizeBytes, &d.RowCount, &d.UploadedAt); err != nil {
			return domain.PaginatedResult{}, ierr.WrapDatabase(err, "scanning row")
		}
		data = append(data, &d)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedResult{}, ierr.WrapDatabase(err, "iterating rows")
	}

	return domain.PaginatedResult{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func (r *DatasetRepository) Delete(ctx context.Context, tenant string, id domain.DatasetID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ierr.WrapDatabase(err, "begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM audit_datasets WHERE tenant_id = $1 AND id = $2`, tenant, id)
	if err != nil {
		return ierr.WrapDatabase(err, "deleting dataset")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NotFoundf("dataset %s not found", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_comments WHERE tenant_id = $1 AND dataset_id = $2`, tenant, id); err != nil {
		return ierr.WrapDatabase(err, "deleting comments")
	}
	return ierr.WrapDatabase(tx.Commit(), "commit")
}
