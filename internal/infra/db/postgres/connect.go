package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_datasets (
  id           VARCHAR(36)  PRIMARY KEY,
  tenant_id    VARCHAR(64)  NOT NULL,
  filename     VARCHAR(255) NOT NULL,
  object_key   VARCHAR(512) NOT NULL,
  content_type VARCHAR(128) NOT NULL DEFAULT '',
  size_bytes   BIGINT       NOT NULL DEFAULT 0,
  row_count    INTEGER      NOT NULL DEFAULT 0,
  uploaded_at  TIMESTAMPTZ  NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_datasets_tenant ON audit_datasets (tenant_id, uploaded_at);

CREATE TABLE IF NOT EXISTS audit_comments (
  id         VARCHAR(36)  PRIMARY KEY,
  tenant_id  VARCHAR(64)  NOT NULL,
  dataset_id VARCHAR(36)  NOT NULL,
  kind       VARCHAR(32)  NOT NULL,
  target_key VARCHAR(255) NOT NULL,
  author     VARCHAR(128) NOT NULL DEFAULT '-',
  body       TEXT         NOT NULL,
  created_at TIMESTAMPTZ  NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_comments_target ON audit_comments (tenant_id, dataset_id, kind, target_key);
`

// Migrate creates the audit tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
