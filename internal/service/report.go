package service

import (
	"context"
	"fmt"

	"github.com/careloop/visit-service/pkg/model"
	"go.uber.org/zap"
)

// PDFStorage fetches rendered report PDFs from blob storage.
type PDFStorage interface {
	DownloadPDF(ctx context.Context, blobName string) ([]byte, error)
}

// ReportService serves finished service reports and their rendered PDFs.
type ReportService struct {
	reports ReportStore
	storage PDFStorage
	logger  *zap.Logger
}

// NewReportService creates a new ReportService
func NewReportService(reports ReportStore, storage PDFStorage, logger *zap.Logger) *ReportService {
	return &ReportService{
		reports: reports,
		storage: storage,
		logger:  logger,
	}
}

// GetByBooking retrieves the service report for a booking.
func (s *ReportService) GetByBooking(ctx context.Context, bookingID string) (*model.ServiceReport, error) {
	report, err := s.reports.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load service report: %w", err)
	}
	if report == nil {
		return nil, fmt.Errorf("no service report for booking: %s", bookingID)
	}
	return report, nil
}

// GetPDF retrieves the rendered PDF of a booking's service report. The PDF is
// rendered best-effort during completion, so a report can exist without one.
func (s *ReportService) GetPDF(ctx context.Context, bookingID string) ([]byte, error) {
	report, err := s.GetByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if report.PDFPath == nil || *report.PDFPath == "" {
		return nil, fmt.Errorf("no PDF rendered for booking: %s", bookingID)
	}

	data, err := s.storage.DownloadPDF(ctx, *report.PDFPath)
	if err != nil {
		s.logger.Error("failed to download report PDF",
			zap.Error(err),
			zap.String("booking_id", bookingID),
			zap.String("pdf_path", *report.PDFPath),
		)
		return nil, fmt.Errorf("download report PDF: %w", err)
	}

	return data, nil
}
