package sqlite

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_datasets (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	filename     TEXT NOT NULL,
	object_key   TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	size_bytes   INTEGER NOT NULL DEFAULT 0,
	row_count    INTEGER NOT NULL DEFAULT 0,
	uploaded_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_datasets_tenant ON audit_datasets(tenant_id, uploaded_at);

CREATE TABLE IF NOT EXISTS audit_comments (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	dataset_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	target_key TEXT NOT NULL,
	author     TEXT NOT NULL DEFAULT '-',
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_comments_target ON audit_comments(tenant_id, dataset_id, kind, target_key);
`

// Connect opens (or creates) the database file and applies the schema.
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; keep the pool small
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
