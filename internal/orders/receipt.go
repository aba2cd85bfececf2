package orders

import (
	"bytes"
	"fmt"

	"grouporder-services/internal/grouporder"
	"grouporder-services/internal/utils"

	"github.com/phpdave11/gofpdf"
)

type receiptLine struct {
	Quantity int
	Name     string
	Subtotal string
}

type receiptPerson struct {
	Name     string
	Lines    []receiptLine
	Subtotal string
}

type receiptData struct {
	Code           string
	PlacedAt       string
	People         []receiptPerson
	Shared         []receiptLine
	SharedSubtotal string
	Total          string
}

func buildReceiptData(sub grouporder.Submission, catalog grouporder.Catalog, timezone string) receiptData {
	totals := grouporder.ComputeTotals(grouporder.GroupOrder{
		Participants: sub.Participants,
		SharedItems:  sub.SharedItems,
	}, catalog)

	data := receiptData{
		Code:           sub.Code,
		PlacedAt:       utils.InTimezone(sub.PlacedAt, timezone).Format("2006-01-02 15:04"),
		SharedSubtotal: utils.FormatMinorUnits(totals.SharedSubtotal),
		Total:          utils.FormatMinorUnits(sub.Total),
	}
	for _, p := range totals.Participants {
		person := receiptPerson{Name: p.Name, Subtotal: utils.FormatMinorUnits(p.Subtotal)}
		for _, l := range p.Lines {
			person.Lines = append(person.Lines, toReceiptLine(l))
		}
		data.People = append(data.People, person)
	}
	for _, l := range totals.Shared {
		data.Shared = append(data.Shared, toReceiptLine(l))
	}
	return data
}

func toReceiptLine(l grouporder.LineTotal) receiptLine {
	subtotal := "n/a"
	if l.Resolved {
		subtotal = utils.FormatMinorUnits(l.Subtotal)
	}
	return receiptLine{Quantity: l.Quantity, Name: l.Name, Subtotal: subtotal}
}

// RenderReceipt draws the group order summary as an A4 PDF.
func RenderReceipt(sub grouporder.Submission, catalog grouporder.Catalog, timezone string) ([]byte, error) {
	data := buildReceiptData(sub, catalog, timezone)

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(12, 12, 12)
	pdf.SetCreationDate(sub.PlacedAt.UTC())
	pdf.SetModificationDate(sub.PlacedAt.UTC())
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("Group order %s", data.Code)), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Placed: %s", data.PlacedAt), "", 1, "C", false, 0, "")

	for _, person := range data.People {
		pdf.Ln(3)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, tr(person.Name), "B", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		if len(person.Lines) == 0 {
			pdf.CellFormat(0, 5, "No items", "", 1, "L", false, 0, "")
		}
		for _, line := range person.Lines {
			writeLine(pdf, tr, line)
		}
		pdf.CellFormat(0, 5, fmt.Sprintf("Subtotal: %s", person.Subtotal), "", 1, "R", false, 0, "")
	}

	if len(data.Shared) > 0 {
		pdf.Ln(3)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, "Shared", "B", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, line := range data.Shared {
			writeLine(pdf, tr, line)
		}
		pdf.CellFormat(0, 5, fmt.Sprintf("Subtotal: %s", data.SharedSubtotal), "", 1, "R", false, 0, "")
	}

	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Total: %s", data.Total), "T", 1, "R", false, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func writeLine(pdf *gofpdf.Fpdf, tr func(string) string, line receiptLine) {
	pdf.CellFormat(140, 5, tr(fmt.Sprintf("%dx %s", line.Quantity, line.Name)), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 5, line.Subtotal, "", 1, "R", false, 0, "")
}

func receiptKey(sessionID string) string {
	return "receipts/" + sessionID + ".pdf"
}
