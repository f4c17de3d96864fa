package mysql

import (
	"context"
	"database/sql"
	"math"

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

const datasetColumns = `id, tenant_id, filename, object_key, content_type, size_bytes, row_count, uploaded_at`

// Save insert/update dataset metadata
func (r *DatasetRepository) Save(ctx context.Context, d *domain.Dataset) error {
	const q = `
INSERT INTO audit_datasets
(` + datasetColumns + `)
VALUES (?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 filename=VALUES(filename), object_key=VALUES(object_key), content_type=VALUES(content_type),
 size_bytes=VALUES(size_bytes), row_count=VALUES(row_count);
`
	_, err := r.db.ExecContext(ctx, q,
		d.ID, stringOrDash(d.TenantID), d.Filename, d.ObjectKey, d.ContentType,
		d.SizeBytes, d.RowCount, nowIfZero(d.UploadedAt),
	)
	return ierr.WrapDatabase(err, "saving dataset")
}

func scanDataset(s interface{ Scan(...any) error }) (*domain.Dataset, error) {
	var d domain.Dataset
	if err := s.Scan(&d.ID, &d.TenantID, &d.Filename, &d.ObjectKey, &d.ContentType, &d.SizeBytes, &d.RowCount, &d.UploadedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// Get by ID + Tenant
func (r *DatasetRepository) Get(ctx context.Context, tenant string, id domain.DatasetID) (*domain.Dataset, error) {
	const q = `SELECT ` + datasetColumns + ` FROM audit_datasets WHERE tenant_id=? AND id=? LIMIT 1;`
	d, err := scanDataset(r.db.QueryRowContext(ctx, q, tenant, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ierr.NotFoundf("dataset %s not found", id)
	}
	if err != nil {
		return nil, ierr.WrapDatabase(err, "loading dataset")
	}
	return d, nil
}

// Paginate with offset + limit (classic pagination), newest first
func (r *DatasetRepository) Paginate(ctx context.Context, tenant string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT ` + datasetColumns + `
FROM audit_datasets
WHERE tenant_id=?
ORDER BY uploaded_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, tenant, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, ierr.WrapDatabase(err, "querying datasets")
	}
	defer rows.Close()

	data := make([]*domain.Dataset, 0)
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return domain.PaginatedResult{}, ierr.WrapDatabase(err, "scanning row")
		}
		data = append(data, d)
	}
	if err = rows.Err(); err != nil {
		return domain.PaginatedResult{}, ierr.WrapDatabase(err, "iterating rows")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_datasets WHERE tenant_id = ?`, tenant).Scan(&total); err != nil {
		return domain.PaginatedResult{}, ierr.WrapDatabase(err, "getting total count")
	}

	return domain.PaginatedResult{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// Delete removes metadata and every comment of the dataset
func (r *DatasetRepository) Delete(ctx context.Context, tenant string, id domain.DatasetID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ierr.WrapDatabase(err, "begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM audit_datasets WHERE tenant_id = ? AND id = ?`, tenant, id)
	if err != nil {
		return ierr.WrapDatabase(err, "deleting dataset")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NotFoundf("dataset %s not found", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_comments WHERE tenant_id = ? AND dataset_id = ?`, tenant, id); err != nil {
		return ierr.WrapDatabase(err, "deleting comments")
	}
	return ierr.WrapDatabase(tx.Commit(), "commit")
}
