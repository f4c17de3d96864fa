package audit

import (
	"context"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	domain "github.com/bryanwahyu/invoice-audit/internal/domain/audit"
	"github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	"github.com/bryanwahyu/invoice-audit/internal/infra/tabular"
	"github.com/bryanwahyu/invoice-audit/internal/logger"
)

// DatasetOpener loads a stored dataset file
type DatasetOpener interface {
	Open(ctx context.Context, tenant string, id datasets.DatasetID) (*datasets.Dataset, io.ReadCloser, error)
}

// Analysis is the full result of both aggregator passes over one dataset.
type Analysis struct {
	Dataset        *datasets.Dataset       `json:"dataset"`
	Rows           int                     `json:"rows"`
	Groups         []domain.DuplicateGroup `json:"-"`
	Ratios         []domain.SellerRatio    `json:"-"`
	DuplicateStats domain.DuplicateStats   `json:"duplicates"`
	RatioStats     domain.RatioStats       `json:"crn_ratio"`
	AnalyzedAt     time.Time               `json:"analyzed_at"`

	rows []DuplicateRow
}

// Service runs and caches dataset analyses. Safe for concurrent use.
type Service struct {
	Datasets DatasetOpener
	Log      *logger.Logger

	cache *cache.Cache
}

func NewService(ds DatasetOpener, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		Datasets: ds,
		Log:      log,
		cache:    cache.New(ttl, 2*ttl),
	}
}

func cacheKey(tenant string, id datasets.DatasetID) string {
	return tenant + "/" + string(id)
}

// Invalidate drops the cached analysis of a dataset.
func (s *Service) Invalidate(tenant string, id datasets.DatasetID) {
	s.cache.Delete(cacheKey(tenant, id))
}

// Analyze returns the cached analysis or computes it from the stored file.
func (s *Service) Analyze(ctx context.Context, tenant string, id datasets.DatasetID) (*Analysis, error) {
	key := cacheKey(tenant, id)
	if v, ok := s.cache.Get(key); ok {
		return v.(*Analysis), nil
	}

	ds, rc, err := s.Datasets.Open(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	started := time.Now()
	records, err := tabular.Decode(ds.Filename, rc)
	if err != nil {
		return nil, err
	}

	groups, dupSkipped := domain.FindDuplicates(records)
	ratios, ratioSkipped := domain.ComputeSellerRatios(records)

	a := &Analysis{
		Dataset:        ds,
		Rows:           len(records),
		Groups:         groups,
		Ratios:         ratios,
		DuplicateStats: domain.SummarizeDuplicates(groups, dupSkipped),
		RatioStats:     domain.SummarizeRatios(ratios, ratioSkipped),
		AnalyzedAt:     time.Now().UTC(),
		rows:           flatten(groups),
	}
	s.cache.SetDefault(key, a)

	s.Log.Infow("dataset analyzed",
		"tenant", tenant,
		"dataset", id,
		"rows", len(records),
		"groups", len(groups),
		"sellers", len(ratios),
		"skipped", dupSkipped,
		"took_ms", time.Since(started).Milliseconds(),
	)
	return a, nil
}

// Summary returns the analysis header with both stats blocks.
func (s *Service) Summary(ctx context.Context, tenant string, id datasets.DatasetID) (*Analysis, error) {
	return s.Analyze(ctx, tenant, id)
}

//
// ==== DataTables views ====
//

const (
	DefaultDuplicateLength = 100
	DefaultRatioLength     = 50
	MaxLength              = 500

	// ratio table columns, as numbered by the dashboard
	ColRowNum     = 0
	ColGSTIN      = 2
	ColName       = 3
	ColRatio      = 4
	ColInvCount   = 5
	ColCrnCount   = 6
	ColDbnCount   = 7
	ColInvValue   = 8
	ColCrnValue   = 9
	DefaultColumn = ColRatio
)

// PageQuery carries the DataTables server-side parameters.
type PageQuery struct {
	Draw        int
	Start       int
	Length      int
	Search      string
	OrderColumn int
	OrderDesc   bool
}

// Page is the DataTables server-side response envelope.
type Page[T any] struct {
	Draw            int `json:"draw"`
	RecordsTotal    int `json:"recordsTotal"`
	RecordsFiltered int `json:"recordsFiltered"`
	Data            []T `json:"data"`
}

func (q PageQuery) window(total, defaultLength int) (int, int) {
	length := q.Length
	if length <= 0 {
		length = defaultLength
	}
	if length > MaxLength {
		length = MaxLength
	}
	start := q.Start
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + length
	if end > total {
		end = total
	}
	return start, end
}

// DuplicateRow is one member of a duplicate group, flattened for a table.
// Empty text cells render as "-".
type DuplicateRow struct {
	RowNum      int    `json:"_row_num"`
	GroupID     int    `json:"_group_id"`
	GroupSize   int    `json:"_group_size"`
	GroupKey    string `json:"_group_key"`
	BuyerGSTIN  string `json:"buyer_gstin"`
	SellerGSTIN string `json:"seller_gstin"`
	DocDate     string `json:"doc_date"`
	DocNo       string `json:"doc_no"`
	DocType     string `json:"doc_type"`
	Amount      string `json:"amount"`
	SellerName  string `json:"seller_name"`
	BuyerName   string `json:"buyer_name"`
	SourceRow   int    `json:"source_row"`
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func flatten(groups []domain.DuplicateGroup) []DuplicateRow {
	var rows []DuplicateRow
	for _, g := range groups {
		for _, m := range g.Members {
			rows = append(rows, DuplicateRow{
				GroupID:     g.ID + 1,
				GroupSize:   g.Size(),
				GroupKey:    g.Key.String(),
				BuyerGSTIN:  dash(m.BuyerGSTIN),
				SellerGSTIN: dash(m.SellerGSTIN),
				DocDate:     dash(m.DateString()),
				DocNo:       dash(m.DocNo),
				DocType:     m.DocType.Code(),
				Amount:      m.Amount.String(),
				SellerName:  dash(m.SellerName),
				BuyerName:   dash(m.BuyerName),
				SourceRow:   m.Row,
			})
		}
	}
	return rows
}

func (r DuplicateRow) matches(needle string) bool {
	for _, v := range []string{r.BuyerGSTIN, r.SellerGSTIN, r.DocDate, r.DocNo, r.DocType, r.Amount, r.SellerName, r.BuyerName} {
		if v != "-" && strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// Duplicates pages over duplicate group members in group order.
func (s *Service) Duplicates(ctx context.Context, tenant string, id datasets.DatasetID, q PageQuery) (Page[DuplicateRow], error) {
	a, err := s.Analyze(ctx, tenant, id)
	if err != nil {
		return Page[DuplicateRow]{}, err
	}

	filtered := a.rows
	if needle := strings.ToLower(strings.TrimSpace(q.Search)); needle != "" {
		filtered = lo.Filter(a.rows, func(r DuplicateRow, _ int) bool { return r.matches(needle) })
	}

	start, end := q.window(len(filtered), DefaultDuplicateLength)
	data := make([]DuplicateRow, 0, end-start)
	for i, r := range filtered[start:end] {
		r.RowNum = start + i + 1
		data = append(data, r)
	}
	return Page[DuplicateRow]{
		Draw:            q.Draw,
		RecordsTotal:    len(a.rows),
		RecordsFiltered: len(filtered),
		Data:            data,
	}, nil
}

// RatioRow is a seller ratio with its position in the current view.
type RatioRow struct {
	RowNum int `json:"_row_num"`
	domain.SellerRatio
}

// Ratios pages over seller ratios. The default order (ratio, descending)
// is the aggregator's order; other columns sort stably on top of it.
func (s *Service) Ratios(ctx context.Context, tenant string, id datasets.DatasetID, q PageQuery) (Page[RatioRow], error) {
	a, err := s.Analyze(ctx, tenant, id)
	if err != nil {
		return Page[RatioRow]{}, err
	}

	// always a fresh slice: sortRatios must not reorder the cached analysis
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	filtered := lo.Filter(a.Ratios, func(r domain.SellerRatio, _ int) bool {
		return needle == "" ||
			strings.Contains(strings.ToLower(r.SellerGSTIN), needle) ||
			strings.Contains(strings.ToLower(r.SellerName), needle)
	})
	sortRatios(filtered, q.OrderColumn, q.OrderDesc)

	start, end := q.window(len(filtered), DefaultRatioLength)
	data := make([]RatioRow, 0, end-start)
	for i, r := range filtered[start:end] {
		data = append(data, RatioRow{RowNum: start + i + 1, SellerRatio: r})
	}
	return Page[RatioRow]{
		Draw:            q.Draw,
		RecordsTotal:    len(a.Ratios),
		RecordsFiltered: len(filtered),
		Data:            data,
	}, nil
}

// ratioSortValue places undefined-high first and undefined-normal last
// in descending order.
func ratioSortValue(r domain.SellerRatio) float64 {
	if v, ok := r.Ratio.Float(); ok {
		return v
	}
	if r.UndefinedHigh() {
		return math.Inf(1)
	}
	return -1
}

func sortRatios(rs []domain.SellerRatio, column int, desc bool) {
	if column == ColRowNum {
		return
	}
	var cmp func(a, b domain.SellerRatio) int
	switch column {
	case ColGSTIN:
		cmp = func(a, b domain.SellerRatio) int { return strings.Compare(a.SellerGSTIN, b.SellerGSTIN) }
	case ColName:
		cmp = func(a, b domain.SellerRatio) int { return strings.Compare(a.SellerName, b.SellerName) }
	case ColInvCount:
		cmp = func(a, b domain.SellerRatio) int { return a.InvoiceCount - b.InvoiceCount }
	case ColCrnCount:
		cmp = func(a, b domain.SellerRatio) int { return a.CreditNoteCount - b.CreditNoteCount }
	case ColDbnCount:
		cmp = func(a, b domain.SellerRatio) int { return a.DebitNoteCount - b.DebitNoteCount }
	case ColInvValue:
		cmp = func(a, b domain.SellerRatio) int { return a.TotalInvoiceValue.Cmp(b.TotalInvoiceValue) }
	case ColCrnValue:
		cmp = func(a, b domain.SellerRatio) int { return a.TotalCreditNoteValue.Cmp(b.TotalCreditNoteValue) }
	default:
		cmp = func(a, b domain.SellerRatio) int {
			va, vb := ratioSortValue(a), ratioSortValue(b)
			switch {
			case va < vb:
				return -1
			case va > vb:
				return 1
			}
			return 0
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if desc {
			return cmp(rs[i], rs[j]) > 0
		}
		return cmp(rs[i], rs[j]) < 0
	})
}

// ParseOrderDir maps the DataTables "asc"/"desc" value; anything else is desc.
func ParseOrderDir(dir string) bool {
	return !strings.EqualFold(strings.TrimSpace(dir), "asc")
}

// AtoiDefault parses a query value, falling back to def.
func AtoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

//
// ==== Exports ====
//

func (s *Service) ExportDuplicatesCSV(ctx context.Context, tenant string, id datasets.DatasetID, w io.Writer) error {
	a, err := s.Analyze(ctx, tenant, id)
	if err != nil {
		return err
	}
	return tabular.WriteDuplicatesCSV(w, a.Groups)
}

func (s *Service) ExportRatiosCSV(ctx context.Context, tenant string, id datasets.DatasetID, w io.Writer) error {
	a, err := s.Analyze(ctx, tenant, id)
	if err != nil {
		return err
	}
	return tabular.WriteRatiosCSV(w, a.Ratios)
}

func (s *Service) ExportWorkbook(ctx context.Context, tenant string, id datasets.DatasetID, w io.Writer) error {
	a, err := s.Analyze(ctx, tenant, id)
	if err != nil {
		return err
	}
	return tabular.WriteWorkbook(w, a.Groups, a.Ratios)
}

//
// ==== Seller lookups ====
//

// Seller returns the ratio row of one seller and the duplicate groups the
// seller appears in.
func (s *Service) Seller(ctx context.Context, tenant string, id datasets.DatasetID, gstin string) (domain.SellerRatio, []domain.DuplicateGroup, bool, error) {
	a, err := s.Analyze(ctx, tenant, id)
	if err != nil {
		return domain.SellerRatio{}, nil, false, err
	}
	ratio, found := lo.Find(a.Ratios, func(r domain.SellerRatio) bool { return r.SellerGSTIN == gstin })
	groups := lo.Filter(a.Groups, func(g domain.DuplicateGroup, _ int) bool { return g.Key.SellerGSTIN == gstin })
	return ratio, groups, found, nil
}
