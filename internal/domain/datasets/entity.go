package datasets

import "time"

// DatasetID identifier type
type DatasetID string

// Dataset is an uploaded e-invoice export. The file itself lives in the
// object store under ObjectKey.
type Dataset struct {
	ID          DatasetID `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Filename    string    `json:"filename"`
	ObjectKey   string    `json:"object_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	RowCount    int       `json:"row_count"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
