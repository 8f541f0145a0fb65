package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/careloop/visit-service/pkg/model"
	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"
)

// PDFGenerator renders printable service reports
type PDFGenerator struct {
	logger *zap.Logger
}

// NewPDFGenerator creates a new PDFGenerator
func NewPDFGenerator(logger *zap.Logger) *PDFGenerator {
	return &PDFGenerator{
		logger: logger,
	}
}

// Generate creates a PDF rendering of a service report
func (g *PDFGenerator) Generate(report *model.ServiceReport) ([]byte, error) {
	g.logger.Info("generating service report PDF",
		zap.String("report_id", report.ID),
		zap.String("booking_id", report.BookingID),
	)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	pdf.AddPage()

	g.addTitle(pdf, report)
	g.addAssessment(pdf, report)
	g.addItemSection(pdf, "Tasks", report.Tasks)
	g.addItemSection(pdf, "Medication", report.Medications)
	g.addItemSection(pdf, "Events", report.Events)
	g.addItemSection(pdf, "Goals", report.Goals)
	g.addItemSection(pdf, "Activities", report.Activities)
	g.addNotes(pdf, report)

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		g.logger.Error("failed to generate service report PDF", zap.Error(err))
		return nil, fmt.Errorf("failed to generate service report PDF: %w", err)
	}

	g.logger.Info("service report PDF generated successfully",
		zap.Int("size_bytes", buf.Len()),
	)

	return buf.Bytes(), nil
}

// addTitle adds the report title and visit header information
func (g *PDFGenerator) addTitle(pdf *gofpdf.Fpdf, report *model.ServiceReport) {
	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 10, "Service Report", "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Booking: %s", report.BookingID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Visit: %s to %s",
		report.VisitStartedAt.Format("2006-01-02 15:04"),
		report.VisitEndedAt.Format("15:04")), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(10)
}

// addSectionHeader adds a section header
func (g *PDFGenerator) addSectionHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(0, 10, title, "", 1, "L", true, 0, "")
	pdf.Ln(3)
	pdf.SetFont("Arial", "", 10)
}

// addAssessment adds the carer's assessment of the visit
func (g *PDFGenerator) addAssessment(pdf *gofpdf.Fpdf, report *model.ServiceReport) {
	g.addSectionHeader(pdf, "Assessment")

	pdf.CellFormat(0, 6, fmt.Sprintf("Summary: %s", report.Summary), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Mood: %s", report.Mood), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Engagement: %s", report.Engagement), "", 1, "L", false, 0, "")
	pdf.MultiCell(0, 6, fmt.Sprintf("Observations: %s", report.Observations), "", "L", false)

	if report.Feedback != "" {
		pdf.MultiCell(0, 6, fmt.Sprintf("Feedback: %s", report.Feedback), "", "L", false)
	}
	if report.NextVisitNotes != "" {
		pdf.MultiCell(0, 6, fmt.Sprintf("Next visit: %s", report.NextVisitNotes), "", "L", false)
	}
	pdf.Ln(5)
}

// addItemSection adds one snapshot collection section
func (g *PDFGenerator) addItemSection(pdf *gofpdf.Fpdf, title string, items []model.SnapshotItem) {
	g.addSectionHeader(pdf, title)

	if len(items) == 0 {
		pdf.CellFormat(0, 8, fmt.Sprintf("No %s recorded during this visit.", title), "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	for _, item := range items {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, item.Name, "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)

		if item.Description != "" {
			pdf.CellFormat(0, 5, fmt.Sprintf("  %s", item.Description), "", 1, "L", false, 0, "")
		}
		if item.Outcome != "" {
			pdf.CellFormat(0, 5, fmt.Sprintf("  Outcome: %s", item.Outcome), "", 1, "L", false, 0, "")
		}
		if item.RecordedAt != nil {
			pdf.CellFormat(0, 5, fmt.Sprintf("  Recorded: %s", item.RecordedAt.Format("15:04")), "", 1, "L", false, 0, "")
		}
		pdf.Ln(2)
	}
	pdf.Ln(5)
}

// addNotes adds the free-text visit notes section
func (g *PDFGenerator) addNotes(pdf *gofpdf.Fpdf, report *model.ServiceReport) {
	g.addSectionHeader(pdf, "Visit Notes")

	if report.Notes == "" {
		pdf.CellFormat(0, 8, "No notes recorded.", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	pdf.MultiCell(0, 6, report.Notes, "", "L", false)
	pdf.Ln(5)
}
