package audit

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bryanwahyu/invoice-audit/internal/domain/invoices"
)

// DuplicateKey is the exact-match identity of a document. Document type is
// not part of it: an invoice and a credit note sharing all four fields are
// reported together.
type DuplicateKey struct {
	BuyerGSTIN  string `json:"buyer_gstin"`
	SellerGSTIN string `json:"seller_gstin"`
	DocDate     string `json:"doc_date"` // YYYY-MM-DD
	DocNo       string `json:"doc_no"`
}

// KeyOf builds the composite key of a record. Text fields are trimmed.
func KeyOf(r invoices.Record) DuplicateKey {
	return DuplicateKey{
		BuyerGSTIN:  strings.TrimSpace(r.BuyerGSTIN),
		SellerGSTIN: strings.TrimSpace(r.SellerGSTIN),
		DocDate:     r.DateString(),
		DocNo:       strings.TrimSpace(r.DocNo),
	}
}

// String is the stable textual form used as a comment target key.
func (k DuplicateKey) String() string {
	return strings.Join([]string{k.BuyerGSTIN, k.SellerGSTIN, k.DocDate, k.DocNo}, "|")
}

// Less orders keys field by field. DocDate is ISO formatted so string
// order is chronological.
func (k DuplicateKey) Less(o DuplicateKey) bool {
	if k.BuyerGSTIN != o.BuyerGSTIN {
		return k.BuyerGSTIN < o.BuyerGSTIN
	}
	if k.SellerGSTIN != o.SellerGSTIN {
		return k.SellerGSTIN < o.SellerGSTIN
	}
	if k.DocDate != o.DocDate {
		return k.DocDate < o.DocDate
	}
	return k.DocNo < o.DocNo
}

// DuplicateGroup is a set of at least two records sharing one key.
type DuplicateGroup struct {
	ID      int               `json:"group_id"`
	Key     DuplicateKey      `json:"key"`
	Members []invoices.Record `json:"members"`
	Total   decimal.Decimal   `json:"total_amount"`
}

func (g DuplicateGroup) Size() int { return len(g.Members) }

// Ratio is credit notes over invoices. It is undefined when the seller
// has no invoices.
type Ratio struct {
	value   float64
	defined bool
}

// RatioOf divides creditNotes by invoices, returning the undefined
// sentinel when invoices is zero.
func RatioOf(creditNotes, invoices int) Ratio {
	if invoices == 0 {
		return Ratio{}
	}
	return Ratio{value: float64(creditNotes) / float64(invoices), defined: true}
}

// Float returns the value and whether it is defined.
func (r Ratio) Float() (float64, bool) { return r.value, r.defined }

func (r Ratio) Defined() bool { return r.defined }

func (r Ratio) String() string {
	if !r.defined {
		return "undefined"
	}
	return strconv.FormatFloat(r.value, 'f', 4, 64)
}

// MarshalJSON writes a number, or the string "undefined".
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.defined {
		return json.Marshal("undefined")
	}
	return json.Marshal(r.value)
}

// RiskTier enum
type RiskTier string

const (
	RiskHigh   RiskTier = "high"
	RiskMedium RiskTier = "medium"
	RiskNormal RiskTier = "normal"
)

// TierOf maps a ratio to its risk tier. An undefined ratio is high risk
// only when the seller issued credit notes.
func TierOf(r Ratio, creditNotes int) RiskTier {
	v, ok := r.Float()
	switch {
	case !ok && creditNotes > 0:
		return RiskHigh
	case !ok:
		return RiskNormal
	case v > 1.0:
		return RiskHigh
	case v > 0.5:
		return RiskMedium
	default:
		return RiskNormal
	}
}

// SellerRatio is the CRN/INV profile of one seller.
type SellerRatio struct {
	SellerGSTIN          string          `json:"gstin"`
	SellerName           string          `json:"name"`
	InvoiceCount         int             `json:"inv_count"`
	CreditNoteCount      int             `json:"crn_count"`
	DebitNoteCount       int             `json:"dbn_count"`
	TotalInvoiceValue    decimal.Decimal `json:"total_inv_val"`
	TotalCreditNoteValue decimal.Decimal `json:"total_crn_val"`
	Ratio                Ratio           `json:"crn_inv_ratio"`
	Risk                 RiskTier        `json:"risk"`
}

// UndefinedHigh reports the zero-invoice, nonzero-credit-note case.
func (s SellerRatio) UndefinedHigh() bool {
	return !s.Ratio.Defined() && s.CreditNoteCount > 0
}
