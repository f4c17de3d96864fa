package comments

import "context"

// Repository port for persisting and querying comments
type Repository interface {
	Save(ctx context.Context, c *Comment) error
	List(ctx context.Context, tenant, datasetID string, f Filter) ([]*Comment, error)
	Delete(ctx context.Context, tenant string, id CommentID) error
}
