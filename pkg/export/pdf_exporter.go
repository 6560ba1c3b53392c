package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidthLandscape = 277.0
	maxCellRunes       = 40
)

// PDFExporter renders datasets into a landscape tabular PDF.
type PDFExporter struct {
	now func() time.Time
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{now: time.Now}
}

// ContentType reports the MIME type of rendered output.
func (e *PDFExporter) ContentType() string {
	return "application/pdf"
}

// Render creates a PDF document with a title, generation stamp and table body.
// The header row is repeated on every page.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	widths := columnWidths(data)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	writeHeader := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], 7, tr(header), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			writeHeader()
		}
	})

	pdf.AddPage()
	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s - %d rows", e.now().UTC().Format(time.RFC3339), len(data.Rows)), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	writeHeader()

	for _, row := range data.Rows {
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], 6, tr(truncate(row[header], maxCellRunes)), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(data Dataset) []float64 {
	widths := make([]float64, len(data.Headers))
	if len(data.Weights) != len(data.Headers) {
		for i := range widths {
			widths[i] = pageWidthLandscape / float64(len(widths))
		}
		return widths
	}
	var total float64
	for _, w := range data.Weights {
		total += w
	}
	for i, w := range data.Weights {
		widths[i] = pageWidthLandscape * w / total
	}
	return widths
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "~"
}
