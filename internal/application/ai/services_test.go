package ai

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/invoice-audit/internal/domain/ai"
	domainaudit "github.com/bryanwahyu/invoice-audit/internal/domain/audit"
	"github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
)

type stubFinder struct{}

func (stubFinder) Seller(_ context.Context, _ string, _ datasets.DatasetID, gstin string) (domainaudit.SellerRatio, []domainaudit.DuplicateGroup, bool, error) {
	if gstin != "S1" {
		return domainaudit.SellerRatio{}, nil, false, nil
	}
	return domainaudit.SellerRatio{SellerGSTIN: "S1", Ratio: domainaudit.RatioOf(3, 2)}, []domainaudit.DuplicateGroup{{ID: 0}}, true, nil
}

type stubClient struct {
	got ai.SellerProfile
	out string
	err error
}

func (c *stubClient) ReviewSeller(_ context.Context, p ai.SellerProfile) (string, error) {
	c.got = p
	return c.out, c.err
}

func TestReviewSeller(t *testing.T) {
	client := &stubClient{out: `{"risk":"high"}`}
	svc := NewService(client, stubFinder{})

	out, err := svc.ReviewSeller(context.Background(), "acme", "d1", "S1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk":"high"}`, string(out))
	assert.Equal(t, "d1", client.got.DatasetID)
	assert.Len(t, client.got.Duplicates, 1)
}

func TestReviewSellerErrors(t *testing.T) {
	tests := []struct {
		name   string
		client ai.Client
		gstin  string
		want   error
	}{
		{name: "disabled", client: nil, gstin: "S1", want: ierr.ErrUnavailable},
		{name: "unknown seller", client: &stubClient{}, gstin: "S9", want: ierr.ErrNotFound},
		{name: "quota", client: &stubClient{err: errors.Mark(errors.New("429"), ai.ErrQuotaExceeded)}, gstin: "S1", want: ierr.ErrUnavailable},
		{name: "provider failure", client: &stubClient{err: ai.ErrEmptyReview}, gstin: "S1", want: ai.ErrEmptyReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.client, stubFinder{})
			_, err := svc.ReviewSeller(context.Background(), "acme", "d1", tt.gstin)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
		})
	}
}
