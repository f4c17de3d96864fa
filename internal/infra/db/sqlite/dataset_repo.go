package sqlite

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	domain "github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
)

type DatasetRepository struct {
	db *sql.DB
}

func NewDatasetRepository(db *sql.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

// Save inserts or updates a dataset row
func (r *DatasetRepository) Save(ctx context.Context, d *domain.Dataset) error {
	const q = `
INSERT INTO audit_datasets
  (id, tenant_id, filename, object_key, content_type, size_bytes, row_count, uploaded_at)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  filename=excluded.filename, object_key=excluded.object_key, content_type=excluded.content_type,
  size_bytes=excluded.size_bytes, row_count=excluded.row_count;
`
	uploaded := d.UploadedAt
	if uploaded.IsZero() {
		uploaded = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		d.ID, d.TenantID, d.Filename, d.ObjectKey, d.ContentType, d.SizeBytes, d.RowCount, uploaded.UTC())
	return ierr.WrapDatabase(err, "saving dataset")
}

// Get by ID + Tenant
func (r *DatasetRepository) Get(ctx context.Context, tenant string, id domain.DatasetID) (*domain.Dataset, error) {
	const q = `
SELECT id, tenant_id, filename, object_key, content_type, size_bytes, row_count, uploaded_at
FROM audit_datasets
WHERE tenant_id=? AND id=? LIMIT 1;
`
	var d domain.Dataset
	err := r.db.QueryRowContext(ctx, q, tenant, id).Scan(
		&d.ID, &d.TenantID, &d.Filename, &d.ObjectKey, &d.ContentType, &d.SizeBytes, &d.RowCount, &d.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ierr.NotFoundf("dataset %s not found", id)
	}
	if err != nil {
		return nil, ierr.WrapDatabase(err, "loading dataset")
	}
	return &d, nil
}

// Paginate lists datasets newest first
func (r *DatasetRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_datasets WHERE tenant_id=?`, tenant).Scan(&total); err != nil {
		return domain.PaginatedResult{}, ierr.WrapDatabase(err, "counting datasets")
	}

	const q = `
SELECT id, tenant_id, filename, object_key, content_type, size_bytes, row_count, uploaded_at
FROM audit_datasets
WHERE tenant_id=?
ORDER BY uploaded_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, ierr.WrapDatabase(err, "listing datasets")
	}
	defer rows.Close()

	out := make([]*domain.Dataset, 0)
	for rows.Next() {
		var d domain.Dataset
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Filename, &d.ObjectKey, &d.ContentType, &d.SizeBytes, &d.RowCount, &d.UploadedAt); err != nil {
			return domain.PaginatedResult{}, ierr.WrapDatabase(err, "scanning dataset row")
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedResult{}, ierr.WrapDatabase(err, "iterating datasets")
	}

	return domain.PaginatedResult{
		Data:       out,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// Delete removes the dataset and its comments
func (r *DatasetRepository) Delete(ctx context.Context, tenant string, id domain.DatasetID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ierr.WrapDatabase(err, "begin delete dataset")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM audit_datasets WHERE tenant_id=? AND id=?`, tenant, id)
	if err != nil {
		return ierr.WrapDatabase(err, "deleting dataset")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NotFoundf("dataset %s not found", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_comments WHERE tenant_id=? AND dataset_id=?`, tenant, id); err != nil {
		return ierr.WrapDatabase(err, "deleting dataset comments")
	}
	return ierr.WrapDatabase(tx.Commit(), "commit delete dataset")
}
