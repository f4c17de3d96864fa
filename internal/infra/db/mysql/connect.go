package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// DSN must carry parseTime=true so DATETIME columns scan into time.Time.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS audit_datasets (
  id           VARCHAR(36)  NOT NULL PRIMARY KEY,
  tenant_id    VARCHAR(64)  NOT NULL,
  filename     VARCHAR(255) NOT NULL,
  object_key   VARCHAR(512) NOT NULL,
  content_type VARCHAR(128) NOT NULL DEFAULT '',
  size_bytes   BIGINT       NOT NULL DEFAULT 0,
  row_count    INT          NOT NULL DEFAULT 0,
  uploaded_at  DATETIME(6)  NOT NULL,
  KEY idx_audit_datasets_tenant (tenant_id, uploaded_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS audit_comments (
  id         VARCHAR(36)  NOT NULL PRIMARY KEY,
  tenant_id  VARCHAR(64)  NOT NULL,
  dataset_id VARCHAR(36)  NOT NULL,
  kind       VARCHAR(32)  NOT NULL,
  target_key VARCHAR(255) NOT NULL,
  author     VARCHAR(128) NOT NULL DEFAULT '-',
  body       TEXT         NOT NULL,
  created_at DATETIME(6)  NOT NULL,
  KEY idx_audit_comments_target (tenant_id, dataset_id, kind, target_key)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the audit tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
