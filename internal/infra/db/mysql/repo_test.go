package mysql

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/invoice-audit/internal/domain/comments"
	"github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var datasetCols = []string{"id", "tenant_id", "filename", "object_key", "content_type", "size_bytes", "row_count", "uploaded_at"}

func TestDatasetSaveUpserts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDatasetRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("VALUES (?,?,?,?,?,?,?,?)\nON DUPLICATE KEY UPDATE")).
		WithArgs("d1", "acme", "jan.csv", "acme/datasets/d1.csv", "text/csv", int64(120), 4, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), &datasets.Dataset{
		ID: "d1", TenantID: "acme", Filename: "jan.csv", ObjectKey: "acme/datasets/d1.csv",
		ContentType: "text/csv", SizeBytes: 120, RowCount: 4,
	})
	require.NoError(t, err)
}

func TestDatasetSaveWrapsDriverError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO audit_datasets").WillReturnError(errors.New("deadlock"))

	err := NewDatasetRepository(db).Save(context.Background(), &datasets.Dataset{ID: "d1", TenantID: "acme"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ierr.ErrDatabase))
}

func TestDatasetGet(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDatasetRepository(db)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	q := regexp.QuoteMeta("FROM audit_datasets WHERE tenant_id=? AND id=? LIMIT 1")

	mock.ExpectQuery(q).WithArgs("acme", "d1").
		WillReturnRows(sqlmock.NewRows(datasetCols).AddRow("d1", "acme", "jan.csv", "k", "text/csv", int64(1), 4, at))
	mock.ExpectQuery(q).WithArgs("other", "d1").WillReturnRows(sqlmock.NewRows(datasetCols))

	d, err := repo.Get(context.Background(), "acme", "d1")
	require.NoError(t, err)
	assert.Equal(t, datasets.DatasetID("d1"), d.ID)
	assert.Equal(t, 4, d.RowCount)
	assert.True(t, at.Equal(d.UploadedAt))

	_, err = repo.Get(context.Background(), "other", "d1")
	assert.True(t, errors.Is(err, ierr.ErrNotFound))
}

func TestDatasetPaginate(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY uploaded_at DESC, id DESC\nLIMIT ? OFFSET ?")).
		WithArgs("acme", 2, 2).
		WillReturnRows(sqlmock.NewRows(datasetCols).
			AddRow("d3", "acme", "c.csv", "k3", "text/csv", int64(1), 1, at).
			AddRow("d2", "acme", "b.csv", "k2", "text/csv", int64(1), 1, at))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_datasets WHERE tenant_id = ?")).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	res, err := NewDatasetRepository(db).Paginate(context.Background(), "acme", 2, 2)
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, int64(5), res.Total)
	assert.Equal(t, 3, res.TotalPages)
}

func TestDatasetDeleteRemovesComments(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_datasets WHERE tenant_id = ? AND id = ?")).
		WithArgs("acme", "d1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_comments WHERE tenant_id = ? AND dataset_id = ?")).
		WithArgs("acme", "d1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, NewDatasetRepository(db).Delete(context.Background(), "acme", "d1"))
}

func TestDatasetDeleteMissingRollsBack(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM audit_datasets").WithArgs("acme", "nope").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := NewDatasetRepository(db).Delete(context.Background(), "acme", "nope")
	assert.True(t, errors.Is(err, ierr.ErrNotFound))
}

func TestCommentSaveFillsBlankAuthor(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE body=VALUES(body)")).
		WithArgs("c1", "acme", "d1", "seller", "S1", "-", "check", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewCommentRepository(db).Save(context.Background(), &comments.Comment{
		ID: "c1", TenantID: "acme", DatasetID: "d1", Kind: comments.TargetSeller, TargetKey: "S1", Body: "check",
	})
	require.NoError(t, err)
}

func TestCommentListFilters(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE tenant_id = ? AND dataset_id = ? AND kind = ? AND target_key = ?\nORDER BY created_at ASC, id ASC")).
		WithArgs("acme", "d1", "seller", "S1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "dataset_id", "kind", "target_key", "author", "body", "created_at"}).
			AddRow("c1", "acme", "d1", "seller", "S1", "ria", "check", at))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tenant_id = ? AND dataset_id = ?\nORDER BY")).
		WithArgs("acme", "d2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "dataset_id", "kind", "target_key", "author", "body", "created_at"}))

	repo := NewCommentRepository(db)
	list, err := repo.List(context.Background(), "acme", "d1", comments.Filter{Kind: comments.TargetSeller, TargetKey: "S1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, comments.TargetSeller, list[0].Kind)

	empty, err := repo.List(context.Background(), "acme", "d2", comments.Filter{})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCommentDeleteMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_comments WHERE tenant_id = ? AND id = ?")).
		WithArgs("acme", "c9").WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewCommentRepository(db).Delete(context.Background(), "acme", "c9")
	assert.True(t, errors.Is(err, ierr.ErrNotFound))
}
