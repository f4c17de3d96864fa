package ai

import (
	"context"

	"github.com/bryanwahyu/invoice-audit/internal/domain/audit"
)

// SellerProfile is everything the reviewer sees about one seller.
type SellerProfile struct {
	DatasetID  string                 `json:"dataset_id"`
	Ratio      audit.SellerRatio      `json:"ratio"`
	Duplicates []audit.DuplicateGroup `json:"duplicates"`
}

type Client interface {
	ReviewSeller(ctx context.Context, p SellerProfile) (string, error)
}
