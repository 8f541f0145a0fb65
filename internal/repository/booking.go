package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/careloop/visit-service/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// BookingRepository manages booking lookups and attendance status
type BookingRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *pgxpool.Pool, logger *zap.Logger) *BookingRepository {
	return &BookingRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(ctx context.Context, bookingID string) (*model.Booking, error) {
	query := `
		SELECT id, client_id, staff_id, branch_id, start_at, end_at, status
		FROM bookings
		WHERE id = $1
	`

	var booking model.Booking
	err := r.db.QueryRow(ctx, query, bookingID).Scan(
		&booking.ID,
		&booking.ClientID,
		&booking.StaffID,
		&booking.BranchID,
		&booking.StartAt,
		&booking.EndAt,
		&booking.Status,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking not found: %s", bookingID)
		}
		r.logger.Error("failed to get booking", zap.Error(err), zap.String("booking_id", bookingID))
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &booking, nil
}

// GetOrganizationID resolves the organization owning a booking via its branch.
func (r *BookingRepository) GetOrganizationID(ctx context.Context, bookingID string) (string, error) {
	query := `
		SELECT b.organization_id
		FROM bookings bk
		JOIN branches b ON b.id = bk.branch_id
		WHERE bk.id = $1
	`

	var orgID string
	err := r.db.QueryRow(ctx, query, bookingID).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("booking not found: %s", bookingID)
		}
		r.logger.Error("failed to resolve organization", zap.Error(err), zap.String("booking_id", bookingID))
		return "", fmt.Errorf("failed to resolve organization: %w", err)
	}

	return orgID, nil
}

// MarkAttendanceEnded sets the booking's attendance status to ended. The
// completion pipeline treats a failure here as secondary; the visit is still
// complete from the carer's perspective.
func (r *BookingRepository) MarkAttendanceEnded(ctx context.Context, bookingID string) error {
	query := `
		UPDATE bookings
		SET status = 'ended', attendance_ended_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, bookingID)
	if err != nil {
		r.logger.Error("failed to mark attendance ended", zap.Error(err), zap.String("booking_id", bookingID))
		return fmt.Errorf("failed to mark attendance ended: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("booking not found: %s", bookingID)
	}

	return nil
}

// NextForStaff looks up the next scheduled booking for the same staff member
// today. Returns nil when there is none; absence is not an error.
func (r *BookingRepository) NextForStaff(ctx context.Context, staffID string, afterBookingID string) (*model.NextBookingHint, error) {
	query := `
		SELECT bk.id, bk.client_id, COALESCE(c.full_name, ''), bk.start_at
		FROM bookings bk
		LEFT JOIN clients c ON c.id = bk.client_id
		WHERE bk.staff_id = $1
		  AND bk.id <> $2
		  AND bk.status = 'scheduled'
		  AND bk.start_at > NOW()
		  AND bk.start_at < date_trunc('day', NOW()) + interval '1 day'
		ORDER BY bk.start_at ASC
		LIMIT 1
	`

	var hint model.NextBookingHint
	err := r.db.QueryRow(ctx, query, staffID, afterBookingID).Scan(
		&hint.BookingID,
		&hint.ClientID,
		&hint.ClientName,
		&hint.StartAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to look up next booking", zap.Error(err), zap.String("staff_id", staffID))
		return nil, fmt.Errorf("failed to look up next booking: %w", err)
	}

	return &hint, nil
}
