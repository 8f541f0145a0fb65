package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/careloop/visit-service/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ReportRepository manages service report documents. There is at most one
// report per booking; the existence check is the idempotency guard the
// completion pipeline relies on when a sequence is replayed.
type ReportRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewReportRepository creates a new ReportRepository
func NewReportRepository(db *pgxpool.Pool, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

// GetByBookingID retrieves the service report for a booking, or nil when no
// report exists yet.
func (r *ReportRepository) GetByBookingID(ctx context.Context, bookingID string) (*model.ServiceReport, error) {
	query := `
		SELECT id, booking_id, visit_id, client_id, staff_id, organization_id,
		       summary, notes, mood, engagement, observations, feedback, next_visit_notes,
		       collections, photo_urls, pdf_path, completion_key,
		       visit_started_at, visit_ended_at, created_at, updated_at
		FROM service_reports
		WHERE booking_id = $1
	`

	var report model.ServiceReport
	var collectionsJSON []byte
	err := r.db.QueryRow(ctx, query, bookingID).Scan(
		&report.ID,
		&report.BookingID,
		&report.VisitID,
		&report.ClientID,
		&report.StaffID,
		&report.OrganizationID,
		&report.Summary,
		&report.Notes,
		&report.Mood,
		&report.Engagement,
		&report.Observations,
		&report.Feedback,
		&report.NextVisitNotes,
		&collectionsJSON,
		&report.PhotoURLs,
		&report.PDFPath,
		&report.CompletionKey,
		&report.VisitStartedAt,
		&report.VisitEndedAt,
		&report.CreatedAt,
		&report.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get service report", zap.Error(err), zap.String("booking_id", bookingID))
		return nil, fmt.Errorf("failed to get service report: %w", err)
	}

	if len(collectionsJSON) > 0 {
		if err := decodeCollections(collectionsJSON, &report); err != nil {
			r.logger.Warn("failed to decode report collections", zap.Error(err), zap.String("report_id", report.ID))
		}
	}

	return &report, nil
}

// Insert saves a new service report
func (r *ReportRepository) Insert(ctx context.Context, report *model.ServiceReport) error {
	collectionsJSON, err := encodeCollections(report)
	if err != nil {
		return fmt.Errorf("failed to encode report collections: %w", err)
	}

	query := `
		INSERT INTO service_reports (
			id, booking_id, visit_id, client_id, staff_id, organization_id,
			summary, notes, mood, engagement, observations, feedback, next_visit_notes,
			collections, photo_urls, pdf_path, completion_key,
			visit_started_at, visit_ended_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, NOW(), NOW()
		)
	`

	_, err = r.db.Exec(ctx, query,
		report.ID,
		report.BookingID,
		report.VisitID,
		report.ClientID,
		report.StaffID,
		report.OrganizationID,
		report.Summary,
		report.Notes,
		report.Mood,
		report.Engagement,
		report.Observations,
		report.Feedback,
		report.NextVisitNotes,
		collectionsJSON,
		report.PhotoURLs,
		report.PDFPath,
		report.CompletionKey,
		report.VisitStartedAt,
		report.VisitEndedAt,
	)

	if err != nil {
		r.logger.Error("failed to insert service report",
			zap.Error(err),
			zap.String("report_id", report.ID),
			zap.String("booking_id", report.BookingID),
		)
		return fmt.Errorf("failed to insert service report: %w", err)
	}

	return nil
}

// Update replaces an existing service report in place, keyed by booking ID.
func (r *ReportRepository) Update(ctx context.Context, report *model.ServiceReport) error {
	collectionsJSON, err := encodeCollections(report)
	if err != nil {
		return fmt.Errorf("failed to encode report collections: %w", err)
	}

	query := `
		UPDATE service_reports
		SET visit_id = $1, summary = $2, notes = $3, mood = $4, engagement = $5,
		    observations = $6, feedback = $7, next_visit_notes = $8,
		    collections = $9, photo_urls = $10, pdf_path = $11, completion_key = $12,
		    visit_started_at = $13, visit_ended_at = $14, updated_at = NOW()
		WHERE booking_id = $15
	`

	result, err := r.db.Exec(ctx, query,
		report.VisitID,
		report.Summary,
		report.Notes,
		report.Mood,
		report.Engagement,
		report.Observations,
		report.Feedback,
		report.NextVisitNotes,
		collectionsJSON,
		report.PhotoURLs,
		report.PDFPath,
		report.CompletionKey,
		report.VisitStartedAt,
		report.VisitEndedAt,
		report.BookingID,
	)

	if err != nil {
		r.logger.Error("failed to update service report",
			zap.Error(err),
			zap.String("booking_id", report.BookingID),
		)
		return fmt.Errorf("failed to update service report: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("service report not found for booking: %s", report.BookingID)
	}

	return nil
}

// SetPDFPath records the blob path of the rendered report PDF.
func (r *ReportRepository) SetPDFPath(ctx context.Context, reportID, pdfPath string) error {
	query := `
		UPDATE service_reports
		SET pdf_path = $1, updated_at = NOW()
		WHERE id = $2
	`

	_, err := r.db.Exec(ctx, query, pdfPath, reportID)
	if err != nil {
		r.logger.Error("failed to set report pdf path", zap.Error(err), zap.String("report_id", reportID))
		return fmt.Errorf("failed to set report pdf path: %w", err)
	}

	return nil
}

// reportCollections is the jsonb shape of the snapshot collections column.
type reportCollections struct {
	Tasks       []model.SnapshotItem `json:"tasks,omitempty"`
	Medications []model.SnapshotItem `json:"medications,omitempty"`
	Events      []model.SnapshotItem `json:"events,omitempty"`
	Goals       []model.SnapshotItem `json:"goals,omitempty"`
	Activities  []model.SnapshotItem `json:"activities,omitempty"`
}

func encodeCollections(report *model.ServiceReport) ([]byte, error) {
	return json.Marshal(reportCollections{
		Tasks:       report.Tasks,
		Medications: report.Medications,
		Events:      report.Events,
		Goals:       report.Goals,
		Activities:  report.Activities,
	})
}

func decodeCollections(data []byte, report *model.ServiceReport) error {
	var collections reportCollections
	if err := json.Unmarshal(data, &collections); err != nil {
		return err
	}
	report.Tasks = collections.Tasks
	report.Medications = collections.Medications
	report.Events = collections.Events
	report.Goals = collections.Goals
	report.Activities = collections.Activities
	return nil
}
