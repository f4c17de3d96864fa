package datasets

import (
	"context"
	"io"
)

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, d *Dataset) error
	Get(ctx context.Context, tenant string, id DatasetID) (*Dataset, error)
	Paginate(ctx context.Context, tenant string, page, pageSize int) (PaginatedResult, error)
	Delete(ctx context.Context, tenant string, id DatasetID) error
}

// ObjectStore port for the raw uploaded files
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}
