package tabular

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/bryanwahyu/invoice-audit/internal/domain/invoices"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
)

// Format of a tabular file
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatOf picks the format from the file extension.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", ierr.Validationf("unsupported file type %q (allowed: .csv, .xlsx)", filepath.Ext(name))
	}
}

// ContentType for a format, used when storing objects.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

type field int

const (
	fieldBuyer field = iota
	fieldSeller
	fieldDate
	fieldNumber
	fieldType
	fieldAmount
	fieldSellerName
	fieldBuyerName
	fieldCount
)

var headerAliases = map[string]field{
	"buyer_gstin":       fieldBuyer,
	"buyerdtls_gstin":   fieldBuyer,
	"seller_gstin":      fieldSeller,
	"sellerdtls_gstin":  fieldSeller,
	"doc_date":          fieldDate,
	"docdtls_dt":        fieldDate,
	"doc_no":            fieldNumber,
	"docdtls_no":        fieldNumber,
	"doc_type":          fieldType,
	"docdtls_typ":       fieldType,
	"amount":            fieldAmount,
	"valdtls_totinvval": fieldAmount,
	"seller_name":       fieldSellerName,
	"sellerdtls_lglnm":  fieldSellerName,
	"buyer_name":        fieldBuyerName,
	"buyerdtls_lglnm":   fieldBuyerName,
}

var requiredFields = map[field]string{
	fieldBuyer:  "buyer_gstin",
	fieldSeller: "seller_gstin",
	fieldDate:   "doc_date",
	fieldNumber: "doc_no",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode reads every record of a CSV or XLSX file. Only a broken file or a
// missing key column fails; bad cell values degrade to zero values and are
// left for the aggregator to skip.
func Decode(name string, r io.Reader) ([]invoices.Record, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXLSX:
		return decodeXLSX(r)
	default:
		return decodeCSV(r)
	}
}

func decodeCSV(r io.Reader) ([]invoices.Record, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading csv")
	}
	content = bytes.TrimPrefix(content, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(content))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ierr.Validationf("empty file: header row required")
	}
	if err != nil {
		return nil, ierr.WrapValidation(err, "malformed csv header")
	}
	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	var out []invoices.Record
	for row := 1; ; row++ {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ierr.WrapValidation(err, "malformed csv at data row %d", row)
		}
		if blank(cells) {
			continue
		}
		out = append(out, cols.record(cells, row, textDate))
	}
	return out, nil
}

func decodeXLSX(r io.Reader) ([]invoices.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, ierr.WrapValidation(err, "malformed xlsx")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ierr.Validationf("xlsx has no sheets")
	}
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	sheetDate := func(s string) time.Time { return serialDate(s, date1904) }

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, ierr.WrapValidation(err, "reading sheet %s", sheets[0])
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.Validationf("empty file: header row required")
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, ierr.WrapValidation(err, "reading xlsx header")
	}
	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	var out []invoices.Record
	for row := 1; rows.Next(); row++ {
		// raw values: date cells come back as serials, not display text
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, ierr.WrapValidation(err, "reading xlsx data row %d", row)
		}
		if blank(cells) {
			continue
		}
		out = append(out, cols.record(cells, row, sheetDate))
	}
	return out, rows.Error()
}

type columns [fieldCount]int

func mapHeader(header []string) (columns, error) {
	var cols columns
	for i := range cols {
		cols[i] = -1
	}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, string(utf8BOM))))
		if f, ok := headerAliases[name]; ok && cols[f] < 0 {
			cols[f] = i
		}
	}

	var missing []string
	for f := fieldBuyer; f <= fieldNumber; f++ {
		if cols[f] < 0 {
			missing = append(missing, requiredFields[f])
		}
	}
	if len(missing) > 0 {
		return cols, ierr.Validationf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columns) cell(cells []string, f field) string {
	i := c[f]
	if i < 0 || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

func textDate(s string) time.Time {
	t, _ := invoices.ParseDocDate(s)
	return t
}

// serialDate reads an Excel date serial, falling back to the text layouts
// for cells typed as strings.
func serialDate(s string, date1904 bool) time.Time {
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial <= 0 {
		return textDate(s)
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return time.Time{}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (c columns) record(cells []string, row int, parseDate func(string) time.Time) invoices.Record {
	date := parseDate(c.cell(cells, fieldDate))
	amount, err := decimal.NewFromString(strings.ReplaceAll(c.cell(cells, fieldAmount), ",", ""))
	if err != nil {
		amount = decimal.Zero
	}
	return invoices.Record{
		BuyerGSTIN:  c.cell(cells, fieldBuyer),
		SellerGSTIN: c.cell(cells, fieldSeller),
		DocDate:     date,
		DocNo:       c.cell(cells, fieldNumber),
		DocType:     invoices.ParseDocType(c.cell(cells, fieldType)),
		Amount:      amount,
		SellerName:  c.cell(cells, fieldSellerName),
		BuyerName:   c.cell(cells, fieldBuyerName),
		Row:         row,
	}
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
