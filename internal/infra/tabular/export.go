package tabular

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"

	"github.com/bryanwahyu/invoice-audit/internal/domain/audit"
)

var (
	DuplicateColumns = []string{
		"buyer_gstin", "seller_gstin", "doc_date", "doc_no", "doc_type", "amount",
		"group_id", "group_size",
	}
	RatioColumns = []string{
		"seller_gstin", "seller_name", "invoice_count", "credit_note_count", "debit_note_count",
		"total_invoice_value", "total_credit_note_value", "crn_inv_ratio", "risk_tier",
	}
)

func duplicateRows(groups []audit.DuplicateGroup) [][]string {
	var rows [][]string
	for _, g := range groups {
		for _, m := range g.Members {
			rows = append(rows, []string{
				m.BuyerGSTIN,
				m.SellerGSTIN,
				m.DateString(),
				m.DocNo,
				m.DocType.Code(),
				m.Amount.String(),
				strconv.Itoa(g.ID + 1),
				strconv.Itoa(g.Size()),
			})
		}
	}
	return rows
}

func ratioRows(ratios []audit.SellerRatio) [][]string {
	rows := make([][]string, 0, len(ratios))
	for _, s := range ratios {
		rows = append(rows, []string{
			s.SellerGSTIN,
			s.SellerName,
			strconv.Itoa(s.InvoiceCount),
			strconv.Itoa(s.CreditNoteCount),
			strconv.Itoa(s.DebitNoteCount),
			s.TotalInvoiceValue.String(),
			s.TotalCreditNoteValue.String(),
			s.Ratio.String(),
			string(s.Risk),
		})
	}
	return rows
}

// WriteDuplicatesCSV writes one row per duplicate group member.
// group_id is 1-based in the export.
func WriteDuplicatesCSV(w io.Writer, groups []audit.DuplicateGroup) error {
	return writeCSV(w, DuplicateColumns, duplicateRows(groups))
}

// WriteRatiosCSV writes one row per seller.
func WriteRatiosCSV(w io.Writer, ratios []audit.SellerRatio) error {
	return writeCSV(w, RatioColumns, ratioRows(ratios))
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return errors.Wrap(err, "writing csv rows")
	}
	return nil
}

const (
	SheetDuplicates = "Duplicates"
	SheetRatios     = "CRN Ratio"
)

// WriteWorkbook writes both reports into one xlsx workbook.
func WriteWorkbook(w io.Writer, groups []audit.DuplicateGroup, ratios []audit.SellerRatio) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetDuplicates); err != nil {
		return errors.Wrap(err, "renaming default sheet")
	}
	if _, err := f.NewSheet(SheetRatios); err != nil {
		return errors.Wrap(err, "creating ratio sheet")
	}

	if err := fillSheet(f, SheetDuplicates, DuplicateColumns, duplicateRows(groups)); err != nil {
		return err
	}
	if err := fillSheet(f, SheetRatios, RatioColumns, ratioRows(ratios)); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}

func fillSheet(f *excelize.File, sheet string, header []string, rows [][]string) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNo int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return errors.Wrapf(err, "cell for row %d", rowNo)
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return errors.Wrapf(err, "writing %s row %d", sheet, rowNo)
	}
	return nil
}
