package invoices

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocType enum
type DocType string

const (
	DocTypeInvoice    DocType = "INVOICE"
	DocTypeCreditNote DocType = "CREDIT_NOTE"
	DocTypeDebitNote  DocType = "DEBIT_NOTE"
	DocTypeUnknown    DocType = "UNKNOWN"
)

// ParseDocType accepts the short e-invoice codes (INV, CRN, DBN) and the
// long names, case-insensitively.
func ParseDocType(s string) DocType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INV", "INVOICE":
		return DocTypeInvoice
	case "CRN", "CREDIT_NOTE", "CREDIT NOTE", "CREDITNOTE":
		return DocTypeCreditNote
	case "DBN", "DEBIT_NOTE", "DEBIT NOTE", "DEBITNOTE":
		return DocTypeDebitNote
	default:
		return DocTypeUnknown
	}
}

// Code returns the short code used in e-invoice exports. Unrecognised
// types render as UNKNOWN, which ParseDocType maps back.
func (t DocType) Code() string {
	switch t {
	case DocTypeInvoice:
		return "INV"
	case DocTypeCreditNote:
		return "CRN"
	case DocTypeDebitNote:
		return "DBN"
	default:
		return string(DocTypeUnknown)
	}
}

// Record is one e-invoice document row. Loaded once per analysis run and
// never mutated afterwards.
type Record struct {
	BuyerGSTIN  string          `json:"buyer_gstin"`
	SellerGSTIN string          `json:"seller_gstin"`
	DocDate     time.Time       `json:"doc_date"`
	DocNo       string          `json:"doc_no"`
	DocType     DocType         `json:"doc_type"`
	Amount      decimal.Decimal `json:"amount"`
	SellerName  string          `json:"seller_name,omitempty"`
	BuyerName   string          `json:"buyer_name,omitempty"`
	Row         int             `json:"row"` // 1-based data row in the source file
}

// DateString renders the document date as YYYY-MM-DD, empty when unset.
func (r Record) DateString() string {
	return FormatDate(r.DocDate)
}

const isoDate = "2006-01-02"

var dateLayouts = []string{
	"2/1/2006",
	isoDate,
	"2-1-2006",
	"2006/1/2",
	"02-Jan-2006",
	"2 Jan 2006",
}

// ParseDocDate parses the date formats seen in e-invoice exports. The
// second return is false when nothing matched.
func ParseDocDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// timestamps: keep the date part only
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders t as YYYY-MM-DD, empty for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(isoDate)
}
