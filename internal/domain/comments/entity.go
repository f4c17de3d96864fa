package comments

import "time"

// CommentID identifier type
type CommentID string

// TargetKind enum
type TargetKind string

const (
	TargetDuplicateGroup TargetKind = "duplicate_group"
	TargetSeller         TargetKind = "seller"
)

// Comment is an auditor note attached to a finding of a dataset. For a
// duplicate group TargetKey is the group's key string, for a seller it is
// the seller GSTIN.
type Comment struct {
	ID        CommentID  `json:"id"`
	TenantID  string     `json:"tenant_id"`
	DatasetID string     `json:"dataset_id"`
	Kind      TargetKind `json:"kind"`
	TargetKey string     `json:"target_key"`
	Author    string     `json:"author"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
}

// Filter narrows a comment listing. Empty fields match everything.
type Filter struct {
	Kind      TargetKind
	TargetKey string
}
