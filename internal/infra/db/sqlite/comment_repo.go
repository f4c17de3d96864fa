package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/bryanwahyu/invoice-audit/internal/domain/comments"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
)

type CommentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) *CommentRepository { return &CommentRepository{db: db} }

func (r *CommentRepository) Save(ctx context.Context, c *domain.Comment) error {
	const q = `
INSERT INTO audit_comments
  (id, tenant_id, dataset_id, kind, target_key, author, body, created_at)
VALUES (?,?,?,?,?,?,?,?)
`
	author := c.Author
	if strings.TrimSpace(author) == "" {
		author = "-"
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, c.ID, c.TenantID, c.DatasetID, c.Kind, c.TargetKey, author, c.Body, created.UTC())
	return ierr.WrapDatabase(err, "saving comment")
}

// List returns comments oldest first, filtered by kind/target when set
func (r *CommentRepository) List(ctx context.Context, tenant, datasetID string, f domain.Filter) ([]*domain.Comment, error) {
	query := `
SELECT id, tenant_id, dataset_id, kind, target_key, author, body, created_at
FROM audit_comments
WHERE tenant_id = ? AND dataset_id = ?`
	args := []interface{}{tenant, datasetID}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, f.Kind)
	}
	if f.TargetKey != "" {
		query += " AND target_key = ?"
		args = append(args, f.TargetKey)
	}
	query += "\nORDER BY created_at ASC, id ASC;"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ierr.WrapDatabase(err, "listing comments")
	}
	defer rows.Close()

	out := make([]*domain.Comment, 0)
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DatasetID, &c.Kind, &c.TargetKey, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, ierr.WrapDatabase(err, "scanning comment row")
		}
		out = append(out, &c)
	}
	return out, ierr.WrapDatabase(rows.Err(), "iterating comments")
}

func (r *CommentRepository) Delete(ctx context.Context, tenant string, id domain.CommentID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_comments WHERE tenant_id = ? AND id = ?`, tenant, id)
	if err != nil {
		return ierr.WrapDatabase(err, "deleting comment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NotFoundf("comment %s not found", id)
	}
	return nil
}
