package ai

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/bryanwahyu/invoice-audit/internal/domain/ai"
	domainaudit "github.com/bryanwahyu/invoice-audit/internal/domain/audit"
	"github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
)

// SellerFinder resolves a seller's ratio and duplicate groups in a dataset
type SellerFinder interface {
	Seller(ctx context.Context, tenant string, id datasets.DatasetID, gstin string) (domainaudit.SellerRatio, []domainaudit.DuplicateGroup, bool, error)
}

type Service struct {
	client ai.Client
	audit  SellerFinder
}

// NewService; client nil berarti fitur AI mati
func NewService(client ai.Client, audit SellerFinder) *Service {
	return &Service{client: client, audit: audit}
}

func (s *Service) Enabled() bool { return s.client != nil }

// ReviewSeller returns the model's JSON verdict for one seller.
func (s *Service) ReviewSeller(ctx context.Context, tenant string, id datasets.DatasetID, gstin string) (json.RawMessage, error) {
	if !s.Enabled() {
		return nil, ierr.Unavailablef("ai review is not configured")
	}
	ratio, groups, found, err := s.audit.Seller(ctx, tenant, id, gstin)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ierr.NotFoundf("seller %s not found in dataset %s", gstin, id)
	}

	out, err := s.client.ReviewSeller(ctx, ai.SellerProfile{
		DatasetID:  string(id),
		Ratio:      ratio,
		Duplicates: groups,
	})
	switch {
	case errors.Is(err, ai.ErrQuotaExceeded):
		return nil, ierr.Unavailablef("ai quota exceeded, try again later")
	case err != nil:
		return nil, errors.Wrapf(err, "reviewing seller %s", gstin)
	}
	return json.RawMessage(out), nil
}
