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

// VisitRepository manages visit record data
type VisitRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewVisitRepository creates a new VisitRepository
func NewVisitRepository(db *pgxpool.Pool, logger *zap.Logger) *VisitRepository {
	return &VisitRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new visit record. Visits are auto-created when a carer
// opens the workflow for a booking.
func (r *VisitRepository) Create(ctx context.Context, visit *model.VisitRecord) error {
	query := `
		INSERT INTO visit_records (id, booking_id, client_id, staff_id, branch_id, started_at, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`

	_, err := r.db.Exec(ctx, query,
		visit.ID,
		visit.BookingID,
		visit.ClientID,
		visit.StaffID,
		visit.BranchID,
		visit.StartedAt,
		visit.Notes,
		visit.Status,
	)

	if err != nil {
		r.logger.Error("failed to create visit record", zap.Error(err), zap.String("visit_id", visit.ID))
		return fmt.Errorf("failed to create visit record: %w", err)
	}

	return nil
}

// GetByID retrieves a visit record by ID
func (r *VisitRepository) GetByID(ctx context.Context, visitID string) (*model.VisitRecord, error) {
	query := `
		SELECT id, booking_id, client_id, staff_id, branch_id, started_at, ended_at,
		       notes, summary, location_data->'draft_assessment', client_signature, carer_signature,
		       photo_urls, status, completion_key, created_at, updated_at
		FROM visit_records
		WHERE id = $1
	`

	var visit model.VisitRecord
	var draftJSON []byte
	err := r.db.QueryRow(ctx, query, visitID).Scan(
		&visit.ID,
		&visit.BookingID,
		&visit.ClientID,
		&visit.StaffID,
		&visit.BranchID,
		&visit.StartedAt,
		&visit.EndedAt,
		&visit.Notes,
		&visit.Summary,
		&draftJSON,
		&visit.ClientSig,
		&visit.CarerSig,
		&visit.PhotoURLs,
		&visit.Status,
		&visit.CompletionKey,
		&visit.CreatedAt,
		&visit.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("visit not found: %s", visitID)
		}
		r.logger.Error("failed to get visit record", zap.Error(err), zap.String("visit_id", visitID))
		return nil, fmt.Errorf("failed to get visit record: %w", err)
	}

	if len(draftJSON) > 0 {
		var draft model.DraftAssessment
		if err := json.Unmarshal(draftJSON, &draft); err != nil {
			r.logger.Warn("failed to decode draft assessment", zap.Error(err), zap.String("visit_id", visitID))
		} else {
			visit.Draft = &draft
		}
	}

	return &visit, nil
}

// UpdateDraft replaces the draft assessment sub-document of a visit whole.
// Partial field merges are never performed; the latest snapshot wins.
func (r *VisitRepository) UpdateDraft(ctx context.Context, visitID string, draft *model.DraftAssessment) error {
	draftJSON, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft assessment: %w", err)
	}

	query := `
		UPDATE visit_records
		SET location_data = jsonb_set(COALESCE(location_data, '{}'::jsonb), '{draft_assessment}', $1::jsonb),
		    updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Exec(ctx, query, draftJSON, visitID)
	if err != nil {
		r.logger.Error("failed to update draft assessment", zap.Error(err), zap.String("visit_id", visitID))
		return fmt.Errorf("failed to update draft assessment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("visit not found: %s", visitID)
	}

	return nil
}

// UpdateDetails saves the mutable mid-visit fields: notes, signature blob
// paths and the photo list. The draft assessment and completion fields are
// written by their own operations.
func (r *VisitRepository) UpdateDetails(ctx context.Context, visit *model.VisitRecord) error {
	query := `
		UPDATE visit_records
		SET notes = $1, client_signature = $2, carer_signature = $3,
		    photo_urls = $4, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.Exec(ctx, query,
		visit.Notes,
		visit.ClientSig,
		visit.CarerSig,
		visit.PhotoURLs,
		visit.ID,
	)

	if err != nil {
		r.logger.Error("failed to update visit details", zap.Error(err), zap.String("visit_id", visit.ID))
		return fmt.Errorf("failed to update visit details: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("visit not found: %s", visit.ID)
	}

	return nil
}

// Complete finalizes a visit record: signatures, notes, summary line, photo
// list, end timestamp and status. The completion key makes replays safe: when
// the stored key already matches, the write already landed (for example after
// a client-side timeout) and is skipped.
func (r *VisitRepository) Complete(ctx context.Context, visit *model.VisitRecord, completionKey string) error {
	query := `
		UPDATE visit_records
		SET ended_at = $1, notes = $2, summary = $3, client_signature = $4,
		    carer_signature = $5, photo_urls = $6, status = $7,
		    completion_key = $8, updated_at = NOW()
		WHERE id = $9 AND (completion_key IS NULL OR completion_key = $8)
	`

	result, err := r.db.Exec(ctx, query,
		visit.EndedAt,
		visit.Notes,
		visit.Summary,
		visit.ClientSig,
		visit.CarerSig,
		visit.PhotoURLs,
		model.VisitStatusCompleted,
		completionKey,
		visit.ID,
	)

	if err != nil {
		r.logger.Error("failed to complete visit record",
			zap.Error(err),
			zap.String("visit_id", visit.ID),
			zap.String("completion_key", completionKey),
		)
		return fmt.Errorf("failed to complete visit record: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the visit is missing or it was completed by a different run.
		existing, getErr := r.GetByID(ctx, visit.ID)
		if getErr != nil {
			return fmt.Errorf("visit not found: %s", visit.ID)
		}
		if existing.CompletionKey != nil && *existing.CompletionKey == completionKey {
			return nil
		}
		return fmt.Errorf("visit %s already completed by another run", visit.ID)
	}

	return nil
}

// GetSnapshot retrieves the collections gathered during a visit.
func (r *VisitRepository) GetSnapshot(ctx context.Context, visitID string) (*model.VisitSnapshot, error) {
	query := `
		SELECT id, visit_id, kind, name, description, outcome, recorded_at
		FROM visit_snapshot_items
		WHERE visit_id = $1
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.Query(ctx, query, visitID)
	if err != nil {
		r.logger.Error("failed to get visit snapshot", zap.Error(err), zap.String("visit_id", visitID))
		return nil, fmt.Errorf("failed to get visit snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := &model.VisitSnapshot{}
	for rows.Next() {
		var item model.SnapshotItem
		var itemVisitID, kind string
		err := rows.Scan(
			&item.ID,
			&itemVisitID,
			&kind,
			&item.Name,
			&item.Description,
			&item.Outcome,
			&item.RecordedAt,
		)
		if err != nil {
			r.logger.Error("failed to scan snapshot item", zap.Error(err))
			continue
		}

		switch kind {
		case "task":
			snapshot.Tasks = append(snapshot.Tasks, item)
		case "medication":
			snapshot.Medications = append(snapshot.Medications, item)
		case "event":
			snapshot.Events = append(snapshot.Events, item)
		case "goal":
			snapshot.Goals = append(snapshot.Goals, item)
		case "activity":
			snapshot.Activities = append(snapshot.Activities, item)
		default:
			r.logger.Warn("unknown snapshot item kind", zap.String("kind", kind), zap.String("item_id", item.ID))
		}
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating snapshot items", zap.Error(err))
		return nil, fmt.Errorf("error iterating snapshot items: %w", err)
	}

	return snapshot, nil
}
