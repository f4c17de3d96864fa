package tabular

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bryanwahyu/invoice-audit/internal/domain/audit"
	"github.com/bryanwahyu/invoice-audit/internal/domain/invoices"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
)

const einvoiceCSV = "\xEF\xBB\xBFDocDtls_No,DocDtls_Dt,DocDtls_Typ,SellerDtls_Gstin,SellerDtls_LglNm,BuyerDtls_Gstin,ValDtls_TotInvVal\n" +
	"INV-1,05/03/2024,INV,29AAAAA0000A1Z5,Acme Traders,27BBBBB1111B1Z6,\"1,180.50\"\n" +
	"\n" +
	"CRN-1,06/03/2024,CRN,29AAAAA0000A1Z5,Acme Traders,27BBBBB1111B1Z6,200\n" +
	"BAD-1,not-a-date,???,29AAAAA0000A1Z5,,27BBBBB1111B1Z6,abc\n"

func TestDecodeCSVWithEInvoiceHeaders(t *testing.T) {
	records, err := Decode("feb.csv", strings.NewReader(einvoiceCSV))
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "INV-1", first.DocNo)
	assert.Equal(t, "2024-03-05", first.DateString())
	assert.Equal(t, invoices.DocTypeInvoice, first.DocType)
	assert.Equal(t, "29AAAAA0000A1Z5", first.SellerGSTIN)
	assert.Equal(t, "27BBBBB1111B1Z6", first.BuyerGSTIN)
	assert.Equal(t, "Acme Traders", first.SellerName)
	assert.True(t, decimal.RequireFromString("1180.50").Equal(first.Amount))
	assert.Equal(t, 1, first.Row)

	assert.Equal(t, invoices.DocTypeCreditNote, records[1].DocType)
	assert.Equal(t, 2, records[1].Row, "csv reader drops blank lines")

	bad := records[2]
	assert.True(t, bad.DocDate.IsZero())
	assert.True(t, bad.Amount.IsZero())
	assert.Equal(t, invoices.DocTypeUnknown, bad.DocType)
}

func TestDecodeCSVCanonicalHeadersCaseInsensitive(t *testing.T) {
	in := "Buyer_GSTIN,SELLER_GSTIN,doc_date,doc_no,doc_type,amount\nB1,S1,2024-01-01,D1,CREDIT_NOTE,10\n"

	records, err := Decode("x.CSV", strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, invoices.DocTypeCreditNote, records[0].DocType)
}

func TestDecodeRejectsStructuralProblems(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		msg  string
	}{
		{name: "missing columns", file: "a.csv", body: "buyer_gstin,amount\nB1,10\n", msg: "seller_gstin, doc_date, doc_no"},
		{name: "empty file", file: "a.csv", body: "", msg: "header row required"},
		{name: "unsupported extension", file: "a.json", body: "[]", msg: "unsupported file type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.file, strings.NewReader(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ierr.ErrValidation))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestDecodeXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"BuyerDtls_Gstin", "SellerDtls_Gstin", "DocDtls_Dt", "DocDtls_No", "DocDtls_Typ", "ValDtls_TotInvVal"},
		{"B1", "S1", "01/02/2024", "D1", "INV", "100"},
		{"B1", "S1", "01/02/2024", "D1", "DBN", "5"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	records, err := Decode("upload.xlsx", &buf)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-02-01", records[0].DateString())
	assert.Equal(t, invoices.DocTypeDebitNote, records[1].DocType)
}

func TestDecodeXLSXDateCells(t *testing.T) {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"BuyerDtls_Gstin", "SellerDtls_Gstin", "DocDtls_Dt", "DocDtls_No", "DocDtls_Typ", "ValDtls_TotInvVal"},
		{"B1", "S1", day, "D1", "INV", 1180.5},
		{"B1", "S1", day, "D1", "INV", 1180.5},
		{"B2", "S1", "15/02/2024", "D2", "CRN", 10},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	records, err := Decode("export.xlsx", &buf)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2024-02-01", records[0].DateString())
	assert.Equal(t, "2024-02-15", records[2].DateString(), "text dates still parse")
	assert.True(t, decimal.RequireFromString("1180.5").Equal(records[0].Amount))

	groups, skipped := audit.FindDuplicates(records)
	assert.Zero(t, skipped)
	require.Len(t, groups, 1)
	assert.Equal(t, "2024-02-01", groups[0].Key.DocDate)
}

func TestSerialDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "45323", want: "2024-02-01"},
		{in: "45323.75", want: "2024-02-01"},
		{in: "2024-02-01", want: "2024-02-01"},
		{in: "", want: ""},
		{in: "02-01-24", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, invoices.FormatDate(serialDate(tt.in, false)))
		})
	}
}

func TestDuplicatesCSVRoundTripsThroughDecode(t *testing.T) {
	in := "buyer_gstin,seller_gstin,doc_date,doc_no,doc_type,amount\n" +
		"B1,S1,2024-01-01,D1,INV,10\n" +
		"B1,S1,2024-01-01,D1,CRN,4\n" +
		"B2,S1,2024-01-01,D2,INV,1\n"
	records, err := Decode("in.csv", strings.NewReader(in))
	require.NoError(t, err)
	groups, _ := audit.FindDuplicates(records)

	var buf bytes.Buffer
	require.NoError(t, WriteDuplicatesCSV(&buf, groups))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(DuplicateColumns, ","), lines[0])
	assert.Equal(t, "B1,S1,2024-01-01,D1,INV,10,1,2", lines[1])

	again, err := Decode("again.csv", strings.NewReader(buf.String()))
	require.NoError(t, err)
	regrouped, _ := audit.FindDuplicates(again)
	require.Len(t, regrouped, 1)
	assert.Equal(t, groups[0].Key, regrouped[0].Key)
}

func TestWriteDuplicatesCSVKeepsUnknownType(t *testing.T) {
	in := "buyer_gstin,seller_gstin,doc_date,doc_no,doc_type,amount\n" +
		"B1,S1,2024-01-01,D1,???,10\n" +
		"B1,S1,2024-01-01,D1,INV,10\n"
	records, err := Decode("in.csv", strings.NewReader(in))
	require.NoError(t, err)
	groups, _ := audit.FindDuplicates(records)

	var buf bytes.Buffer
	require.NoError(t, WriteDuplicatesCSV(&buf, groups))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "B1,S1,2024-01-01,D1,UNKNOWN,10,1,2", lines[1])
}

func TestWriteRatiosCSVRendersUndefined(t *testing.T) {
	records := []invoices.Record{
		{SellerGSTIN: "S3", SellerName: "Ghost Co", DocType: invoices.DocTypeCreditNote, Amount: decimal.NewFromInt(9)},
	}
	ratios, _ := audit.ComputeSellerRatios(records)

	var buf bytes.Buffer
	require.NoError(t, WriteRatiosCSV(&buf, ratios))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "S3,Ghost Co,0,1,0,0,9,undefined,high", lines[1])
}

func TestWriteWorkbook(t *testing.T) {
	records := []invoices.Record{
		{BuyerGSTIN: "B", SellerGSTIN: "S", DocNo: "1", DocType: invoices.DocTypeInvoice, Amount: decimal.NewFromInt(1)},
	}
	ratios, _ := audit.ComputeSellerRatios(records)

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, nil, ratios))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetDuplicates, SheetRatios}, f.GetSheetList())

	header, err := f.GetCellValue(SheetDuplicates, "A1")
	require.NoError(t, err)
	assert.Equal(t, "buyer_gstin", header)

	gstin, err := f.GetCellValue(SheetRatios, "A2")
	require.NoError(t, err)
	assert.Equal(t, "S", gstin)
}
