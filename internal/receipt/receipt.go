// Package receipt renders proof-of-payment PDFs and archives them.
//
// Rendering is pure: the same Data always yields the same bytes, so a receipt
// can be re-issued later without storing the PDF.
package receipt

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

const (
	dateLayout      = "02 Jan 2006, 15:04 MST"
	pageMarginMM    = 20.0
	labelWidthMM    = 60.0
	valueWidthMM    = 110.0
	rowHeightMM     = 9.0
	defaultCurrency = "INR"
)

// Data is everything printed on a receipt.
type Data struct {
	ReceiptNumber     string
	TransactionID     string
	StudentName       string
	CourseName        string
	ApplicationNumber string
	Amount            decimal.Decimal
	Currency          string
	PaymentDate       time.Time
	PaymentMethod     string
	// GeneratedAt is printed in the footer and pinned as the PDF dates.
	GeneratedAt time.Time
}

func (d Data) validate() error {
	if d.ReceiptNumber == "" || d.TransactionID == "" {
		return errors.New("receipt number and transaction id are required")
	}
	if d.GeneratedAt.IsZero() {
		return errors.New("generation time is required")
	}
	return nil
}

// FormatAmount renders an amount as "INR 2500.00".
func FormatAmount(currency string, amount decimal.Decimal) string {
	if currency == "" {
		currency = defaultCurrency
	}
	return currency + " " + amount.StringFixed(2)
}

// FileName is the attachment and download name for a receipt.
func FileName(receiptNumber string) string {
	return "receipt_" + receiptNumber + ".pdf"
}

// Generator renders receipts on behalf of an issuing institution.
type Generator struct {
	issuer string
	loc    *time.Location
}

// NewGenerator builds a generator. Times are printed in loc; nil means UTC.
func NewGenerator(issuer string, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{issuer: issuer, loc: loc}
}

// Generate renders d as a single-page A4 PDF.
func (g *Generator) Generate(d Data) ([]byte, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	generated := d.GeneratedAt.In(g.loc)
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(generated)
	pdf.SetModificationDate(generated)
	pdf.SetCatalogSort(true)
	pdf.SetTitle("Payment Receipt "+d.ReceiptNumber, false)
	pdf.SetAuthor(g.issuer, false)
	pdf.SetCreator("admissions", false)
	pdf.SetMargins(pageMarginMM, pageMarginMM, pageMarginMM)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, g.issuer, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "PAYMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	rows := [][2]string{
		{"Receipt Number", d.ReceiptNumber},
		{"Transaction ID", d.TransactionID},
		{"Student Name", d.StudentName},
		{"Course", d.CourseName},
		{"Application Number", d.ApplicationNumber},
		{"Amount Paid", FormatAmount(d.Currency, d.Amount)},
		{"Payment Date", d.PaymentDate.In(g.loc).Format(dateLayout)},
		{"Payment Method", d.PaymentMethod},
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(labelWidthMM, rowHeightMM, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(valueWidthMM, rowHeightMM, row[1], "1", 1, "L", false, 0, "")
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(0, 128, 0)
	pdf.CellFormat(0, 8, "Payment Successful", "", 1, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 8, "Please keep this receipt for your records.", "", 1, "C", false, 0, "")

	pdf.SetY(-40)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 5, "This is a computer-generated receipt and does not require a signature.", "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, "Generated on: "+generated.Format(dateLayout), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", d.ReceiptNumber, err)
	}
	return buf.Bytes(), nil
}
