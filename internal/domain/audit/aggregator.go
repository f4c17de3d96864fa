package audit

import (
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/bryanwahyu/invoice-audit/internal/domain/invoices"
)

// FindDuplicates partitions records by DuplicateKey and returns the
// partitions with two or more members, largest first, then by key.
// Records missing a key field are skipped; the second return counts them.
func FindDuplicates(records []invoices.Record) ([]DuplicateGroup, int) {
	valid := lo.Filter(records, func(r invoices.Record, _ int) bool {
		return hasDuplicateKey(r)
	})
	skipped := len(records) - len(valid)

	buckets := lo.GroupBy(valid, KeyOf)

	groups := make([]DuplicateGroup, 0)
	for key, members := range buckets {
		if len(members) < 2 {
			continue
		}
		groups = append(groups, DuplicateGroup{Key: key, Members: members})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Size() != groups[j].Size() {
			return groups[i].Size() > groups[j].Size()
		}
		return groups[i].Key.Less(groups[j].Key)
	})

	for i := range groups {
		groups[i].ID = i
		groups[i].Total = lo.Reduce(groups[i].Members, func(acc decimal.Decimal, r invoices.Record, _ int) decimal.Decimal {
			return acc.Add(r.Amount)
		}, decimal.Zero)
	}
	return groups, skipped
}

func hasDuplicateKey(r invoices.Record) bool {
	return strings.TrimSpace(r.BuyerGSTIN) != "" &&
		strings.TrimSpace(r.SellerGSTIN) != "" &&
		strings.TrimSpace(r.DocNo) != "" &&
		!r.DocDate.IsZero()
}

// ComputeSellerRatios counts credit notes against invoices per seller.
// Output is ordered by descending ratio with seller GSTIN breaking ties.
// Undefined ratios with credit notes rank above every defined ratio,
// undefined ratios without credit notes rank below. Records without a
// seller GSTIN are skipped and counted.
func ComputeSellerRatios(records []invoices.Record) ([]SellerRatio, int) {
	bySeller := make(map[string]*SellerRatio)
	skipped := 0

	for _, r := range records {
		gstin := strings.TrimSpace(r.SellerGSTIN)
		if gstin == "" {
			skipped++
			continue
		}
		s, ok := bySeller[gstin]
		if !ok {
			s = &SellerRatio{
				SellerGSTIN:          gstin,
				TotalInvoiceValue:    decimal.Zero,
				TotalCreditNoteValue: decimal.Zero,
			}
			bySeller[gstin] = s
		}
		if s.SellerName == "" {
			s.SellerName = strings.TrimSpace(r.SellerName)
		}
		switch r.DocType {
		case invoices.DocTypeInvoice:
			s.InvoiceCount++
			s.TotalInvoiceValue = s.TotalInvoiceValue.Add(r.Amount)
		case invoices.DocTypeCreditNote:
			s.CreditNoteCount++
			s.TotalCreditNoteValue = s.TotalCreditNoteValue.Add(r.Amount)
		case invoices.DocTypeDebitNote:
			s.DebitNoteCount++
		}
	}

	out := make([]SellerRatio, 0, len(bySeller))
	for _, s := range bySeller {
		s.Ratio = RatioOf(s.CreditNoteCount, s.InvoiceCount)
		s.Risk = TierOf(s.Ratio, s.CreditNoteCount)
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := ratioRank(out[i]), ratioRank(out[j])
		if ri != rj {
			return ri < rj
		}
		vi, _ := out[i].Ratio.Float()
		vj, _ := out[j].Ratio.Float()
		if vi != vj {
			return vi > vj
		}
		return out[i].SellerGSTIN < out[j].SellerGSTIN
	})
	return out, skipped
}

// ratioRank buckets sellers: undefined-high, defined, undefined-normal.
func ratioRank(s SellerRatio) int {
	switch {
	case s.UndefinedHigh():
		return 0
	case s.Ratio.Defined():
		return 1
	default:
		return 2
	}
}
