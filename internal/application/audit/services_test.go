package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/invoice-audit/internal/domain/audit"
	"github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
)

type fakeOpener struct {
	files map[datasets.DatasetID]string
	opens atomic.Int32
}

func (f *fakeOpener) Open(_ context.Context, tenant string, id datasets.DatasetID) (*datasets.Dataset, io.ReadCloser, error) {
	body, ok := f.files[id]
	if !ok || tenant != "acme" {
		return nil, nil, ierr.NotFoundf("dataset %s not found", id)
	}
	f.opens.Add(1)
	ds := &datasets.Dataset{ID: id, TenantID: tenant, Filename: string(id) + ".csv"}
	return ds, io.NopCloser(strings.NewReader(body)), nil
}

const header = "buyer_gstin,seller_gstin,doc_date,doc_no,doc_type,amount,seller_name\n"

// S1: 2 INV 3 CRN (1.5 high), S2: 0 INV 1 CRN (undefined high),
// S3: 4 INV 1 CRN (0.25), S4: 3 INV 2 CRN (0.67 medium)
const ledger = header +
	"B1,S1,2024-01-01,A1,INV,100,Alpha\n" +
	"B1,S1,2024-01-01,A1,CRN,40,Alpha\n" +
	"B1,S1,2024-01-02,A2,INV,50,Alpha\n" +
	"B2,S1,2024-01-03,A3,CRN,10,Alpha\n" +
	"B2,S1,2024-01-04,A4,CRN,10,Alpha\n" +
	"B3,S2,2024-01-05,G1,CRN,99,Ghost\n" +
	"B4,S3,2024-01-06,C1,INV,1,Gamma\n" +
	"B4,S3,2024-01-06,C1,INV,1,Gamma\n" +
	"B4,S3,2024-01-06,C1,INV,1,Gamma\n" +
	"B4,S3,2024-01-07,C2,INV,1,Gamma\n" +
	"B4,S3,2024-01-08,C3,CRN,1,Gamma\n" +
	"B5,S4,2024-01-09,E1,INV,5,Delta\n" +
	"B5,S4,2024-01-10,E2,INV,5,Delta\n" +
	"B5,S4,2024-01-11,E3,CRN,5,Delta\n" +
	"B5,S4,2024-01-12,E4,CRN,5,Delta\n" +
	",S4,2024-01-12,E5,INV,5,Delta\n"

func newService() (*Service, *fakeOpener) {
	op := &fakeOpener{files: map[datasets.DatasetID]string{"d1": ledger}}
	return NewService(op, time.Minute, nil), op
}

func TestAnalyzeCachesPerDataset(t *testing.T) {
	svc, op := newService()
	ctx := context.Background()

	a, err := svc.Analyze(ctx, "acme", "d1")
	require.NoError(t, err)
	assert.Equal(t, 16, a.Rows)
	assert.Equal(t, 2, a.DuplicateStats.Groups)
	assert.Equal(t, 1, a.DuplicateStats.Skipped)
	assert.Equal(t, 4, a.RatioStats.Sellers)

	_, err = svc.Analyze(ctx, "acme", "d1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), op.opens.Load())

	svc.Invalidate("acme", "d1")
	_, err = svc.Analyze(ctx, "acme", "d1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), op.opens.Load())
}

func TestAnalyzeMissingDataset(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Analyze(context.Background(), "globex", "d1")
	assert.True(t, errors.Is(err, ierr.ErrNotFound))
}

func TestDuplicatesPaging(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	page, err := svc.Duplicates(ctx, "acme", "d1", PageQuery{Draw: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Draw)
	assert.Equal(t, 5, page.RecordsTotal)
	assert.Equal(t, 5, page.RecordsFiltered)
	require.Len(t, page.Data, 5)

	// largest group first
	first := page.Data[0]
	assert.Equal(t, 1, first.RowNum)
	assert.Equal(t, 1, first.GroupID)
	assert.Equal(t, 3, first.GroupSize)
	assert.Equal(t, "S3", first.SellerGSTIN)
	assert.Equal(t, "B4|S3|2024-01-06|C1", first.GroupKey)
	assert.Equal(t, "-", first.BuyerName)

	page, err = svc.Duplicates(ctx, "acme", "d1", PageQuery{Start: 3, Length: 1})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 4, page.Data[0].RowNum)
	assert.Equal(t, 2, page.Data[0].GroupID)

	page, err = svc.Duplicates(ctx, "acme", "d1", PageQuery{Search: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, 5, page.RecordsTotal)
	assert.Equal(t, 2, page.RecordsFiltered)

	page, err = svc.Duplicates(ctx, "acme", "d1", PageQuery{Start: 99})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.NotNil(t, page.Data)
}

func gstins(rows []RatioRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.SellerGSTIN
	}
	return out
}

func TestRatiosOrderingAndSearch(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	tests := []struct {
		name string
		q    PageQuery
		want []string
	}{
		{name: "natural order", q: PageQuery{OrderColumn: ColRowNum}, want: []string{"S2", "S1", "S4", "S3"}},
		{name: "ratio desc", q: PageQuery{OrderColumn: ColRatio, OrderDesc: true}, want: []string{"S2", "S1", "S4", "S3"}},
		{name: "ratio asc", q: PageQuery{OrderColumn: ColRatio}, want: []string{"S3", "S4", "S1", "S2"}},
		{name: "gstin asc", q: PageQuery{OrderColumn: ColGSTIN}, want: []string{"S1", "S2", "S3", "S4"}},
		{name: "invoice count desc", q: PageQuery{OrderColumn: ColInvCount, OrderDesc: true}, want: []string{"S3", "S4", "S1", "S2"}},
		{name: "credit value desc", q: PageQuery{OrderColumn: ColCrnValue, OrderDesc: true}, want: []string{"S2", "S1", "S4", "S3"}},
		{name: "search by name", q: PageQuery{Search: "GHO"}, want: []string{"S2"}},
		{name: "page window", q: PageQuery{Start: 1, Length: 2}, want: []string{"S1", "S4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.Ratios(ctx, "acme", "d1", tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, gstins(page.Data))
			assert.Equal(t, 4, page.RecordsTotal)
		})
	}

	page, err := svc.Ratios(ctx, "acme", "d1", PageQuery{Start: 1, Length: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Data[0].RowNum)
	assert.Equal(t, domain.RiskHigh, page.Data[0].Risk)
}

func TestRatiosDoNotMutateCache(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Ratios(ctx, "acme", "d1", PageQuery{OrderColumn: ColGSTIN})
	require.NoError(t, err)
	a, err := svc.Analyze(ctx, "acme", "d1")
	require.NoError(t, err)
	assert.Equal(t, "S2", a.Ratios[0].SellerGSTIN)
}

func TestPageWindowClampsLength(t *testing.T) {
	start, end := PageQuery{Length: 10_000}.window(2000, DefaultDuplicateLength)
	assert.Equal(t, 0, start)
	assert.Equal(t, MaxLength, end)

	start, end = PageQuery{Start: -4}.window(200, DefaultRatioLength)
	assert.Equal(t, 0, start)
	assert.Equal(t, DefaultRatioLength, end)
}

func TestExports(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, svc.ExportRatiosCSV(ctx, "acme", "d1", &buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"S2", "Ghost", "0", "1", "0", "0", "99", "undefined", "high"}, rows[1])

	buf.Reset()
	require.NoError(t, svc.ExportDuplicatesCSV(ctx, "acme", "d1", &buf))
	rows, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 6)

	buf.Reset()
	require.NoError(t, svc.ExportWorkbook(ctx, "acme", "d1", &buf))
	assert.NotZero(t, buf.Len())
}

func TestSeller(t *testing.T) {
	svc, _ := newService()

	ratio, groups, found, err := svc.Seller(context.Background(), "acme", "d1", "S1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1.5000", ratio.Ratio.String())
	require.Len(t, groups, 1)
	assert.Equal(t, "A1", groups[0].Key.DocNo)

	_, groups, found, err = svc.Seller(context.Background(), "acme", "d1", "NOPE")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, groups)
}

func TestParseHelpers(t *testing.T) {
	assert.True(t, ParseOrderDir("desc"))
	assert.True(t, ParseOrderDir(""))
	assert.False(t, ParseOrderDir("ASC"))
	assert.Equal(t, 7, AtoiDefault(" 7 ", 1))
	assert.Equal(t, 1, AtoiDefault("x", 1))
}
