package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/careloop/visit-service/internal/identity"
	"github.com/careloop/visit-service/pkg/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VisitRecordStore is the slice of the visit repository the service needs.
type VisitRecordStore interface {
	Create(ctx context.Context, visit *model.VisitRecord) error
	GetByID(ctx context.Context, visitID string) (*model.VisitRecord, error)
	UpdateDraft(ctx context.Context, visitID string, draft *model.DraftAssessment) error
	UpdateDetails(ctx context.Context, visit *model.VisitRecord) error
}

// BookingReader resolves the booking a visit is started against.
type BookingReader interface {
	GetByID(ctx context.Context, bookingID string) (*model.Booking, error)
}

// ImageStore persists signature images and visit photos.
type ImageStore interface {
	UploadImage(ctx context.Context, filename string, imageStream io.Reader) (string, error)
	DeleteImage(ctx context.Context, blobName string) error
}

// ErrVisitCompleted is returned when a mutation targets a visit that has
// already been finalized.
var ErrVisitCompleted = errors.New("visit already completed")

// VisitService coordinates the visit workflow: record lifecycle, debounced
// draft autosave and the completion pipeline.
type VisitService struct {
	visits   VisitRecordStore
	bookings BookingReader
	sessions identity.Provider
	images   ImageStore
	manager  *CompletionManager
	queue    *WriteQueue
	logger   *zap.Logger

	debounceInterval time.Duration

	mu         sync.Mutex
	schedulers map[string]*DraftScheduler
}

// NewVisitService creates a new VisitService
func NewVisitService(
	visits VisitRecordStore,
	bookings BookingReader,
	sessions identity.Provider,
	images ImageStore,
	manager *CompletionManager,
	queue *WriteQueue,
	debounceInterval time.Duration,
	logger *zap.Logger,
) *VisitService {
	return &VisitService{
		visits:           visits,
		bookings:         bookings,
		sessions:         sessions,
		images:           images,
		manager:          manager,
		queue:            queue,
		logger:           logger,
		debounceInterval: debounceInterval,
		schedulers:       make(map[string]*DraftScheduler),
	}
}

// StartVisit creates a visit record against a booking. The record is created
// as soon as the carer opens the workflow; nothing else depends on it having
// any content yet.
func (s *VisitService) StartVisit(ctx context.Context, bookingID string) (*model.VisitRecord, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("resolve booking: %w", err)
	}

	visit := &model.VisitRecord{
		ID:        uuid.New().String(),
		BookingID: booking.ID,
		ClientID:  booking.ClientID,
		StaffID:   booking.StaffID,
		BranchID:  booking.BranchID,
		StartedAt: time.Now(),
		Status:    model.VisitStatusInProgress,
	}

	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, fmt.Errorf("create visit record: %w", err)
	}

	s.logger.Info("visit started",
		zap.String("visit_id", visit.ID),
		zap.String("booking_id", booking.ID),
		zap.String("staff_id", booking.StaffID),
	)

	return visit, nil
}

// GetVisit retrieves a visit record by ID.
func (s *VisitService) GetVisit(ctx context.Context, visitID string) (*model.VisitRecord, error) {
	return s.visits.GetByID(ctx, visitID)
}

// VisitUpdate carries the mutable mid-visit fields. Nil pointers leave the
// stored value untouched; a nil photo list does too.
type VisitUpdate struct {
	Notes           *string
	ClientSignature *string
	CarerSignature  *string
	PhotoURLs       []string
}

// UpdateVisit saves notes, signatures and the photo list on an in-progress
// visit. Signatures submitted as data URLs are decoded and stored as image
// blobs; the record keeps the blob path.
func (s *VisitService) UpdateVisit(ctx context.Context, visitID string, update VisitUpdate) (*model.VisitRecord, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("load visit: %w", err)
	}

	if visit.Status == model.VisitStatusCompleted {
		return nil, ErrVisitCompleted
	}

	if update.Notes != nil {
		visit.Notes = *update.Notes
	}
	if update.PhotoURLs != nil {
		visit.PhotoURLs = update.PhotoURLs
	}

	if update.ClientSignature != nil {
		stored, err := s.storeSignature(ctx, visitID, "client", visit.ClientSig, *update.ClientSignature)
		if err != nil {
			return nil, fmt.Errorf("store client signature: %w", err)
		}
		visit.ClientSig = stored
	}
	if update.CarerSignature != nil {
		stored, err := s.storeSignature(ctx, visitID, "carer", visit.CarerSig, *update.CarerSignature)
		if err != nil {
			return nil, fmt.Errorf("store carer signature: %w", err)
		}
		visit.CarerSig = stored
	}

	err = s.queue.Do(visitID, func() error {
		return s.visits.UpdateDetails(ctx, visit)
	})
	if err != nil {
		return nil, fmt.Errorf("update visit details: %w", err)
	}

	s.logger.Info("visit details updated",
		zap.String("visit_id", visitID),
		zap.Bool("carer_signed", visit.CarerSig != nil),
		zap.Bool("client_signed", visit.ClientSig != nil),
	)

	return visit, nil
}

// storeSignature uploads a data-URL signature as an image blob and returns
// the blob path. Values that are not data URLs (an already-stored path, or
// anything when no image store is configured) pass through unchanged. An
// empty value clears the signature. The previous blob is deleted best-effort
// when replaced.
func (s *VisitService) storeSignature(ctx context.Context, visitID, kind string, previous *string, value string) (*string, error) {
	if value == "" {
		s.deleteSignatureBlob(ctx, previous)
		return nil, nil
	}

	data, ok := decodeDataURL(value)
	if !ok || s.images == nil {
		return &value, nil
	}

	filename := fmt.Sprintf("%s_%s_signature.png", visitID, kind)
	blobPath, err := s.images.UploadImage(ctx, filename, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if previous != nil && *previous != blobPath {
		s.deleteSignatureBlob(ctx, previous)
	}

	return &blobPath, nil
}

// deleteSignatureBlob removes a stored signature image. Best-effort: a failed
// delete only leaves an orphaned blob behind.
func (s *VisitService) deleteSignatureBlob(ctx context.Context, blobPath *string) {
	if s.images == nil || blobPath == nil || !strings.HasPrefix(*blobPath, "images/") {
		return
	}

	if err := s.images.DeleteImage(ctx, *blobPath); err != nil {
		s.logger.Warn("failed to delete replaced signature image",
			zap.Error(err),
			zap.String("blob_path", *blobPath),
		)
	}
}

// decodeDataURL decodes a base64 image data URL. Returns false for anything
// that is not one.
func decodeDataURL(value string) ([]byte, bool) {
	if !strings.HasPrefix(value, "data:image/") {
		return nil, false
	}

	idx := strings.Index(value, ";base64,")
	if idx < 0 {
		return nil, false
	}

	data, err := base64.StdEncoding.DecodeString(value[idx+len(";base64,"):])
	if err != nil {
		return nil, false
	}
	return data, true
}

// ScheduleDraft records a draft assessment edit for an existing visit. The
// write is debounced; only the latest snapshot inside a window is persisted.
// The visit is resolved first so unknown IDs are rejected instead of growing
// the scheduler registry.
func (s *VisitService) ScheduleDraft(ctx context.Context, visitID string, draft model.DraftAssessment) error {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return fmt.Errorf("load visit: %w", err)
	}
	if visit.Status == model.VisitStatusCompleted {
		return ErrVisitCompleted
	}

	s.schedulerFor(visitID).Schedule(draft)
	return nil
}

// schedulerFor returns the per-visit draft scheduler, creating it lazily. All
// schedulers share the write queue with the completion pipeline so draft and
// completion writes to the same visit never interleave.
func (s *VisitService) schedulerFor(visitID string) *DraftScheduler {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedulers[visitID]
	if !ok {
		sched = NewDraftScheduler(s.visits, s.queue, visitID, s.debounceInterval, s.logger)
		s.schedulers[visitID] = sched
	}
	return sched
}

// ValidationError carries the unmet completion preconditions.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("visit not ready for completion: %d unmet preconditions", len(e.Reasons))
}

// Complete runs the validation gate and, when it passes, starts the
// completion pipeline for the visit. A *ValidationError is returned when
// preconditions are unmet so the handler can list them.
func (s *VisitService) Complete(ctx context.Context, visitID string) error {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return fmt.Errorf("load visit: %w", err)
	}

	var session *identity.Session
	if s.sessions != nil {
		session = s.sessions.CurrentSession()
	}

	if reasons := Readiness(visit, visit.Draft, session); len(reasons) > 0 {
		s.logger.Info("visit completion blocked by validation gate",
			zap.String("visit_id", visitID),
			zap.Strings("reasons", reasons),
		)
		return &ValidationError{Reasons: reasons}
	}

	in := CompletionInput{
		Visit:         visit,
		Draft:         visit.Draft,
		Drafts:        s.schedulerFor(visitID),
		CompletionKey: uuid.New().String(),
	}

	if err := s.manager.Start(in); err != nil {
		return err
	}

	s.logger.Info("visit completion started",
		zap.String("visit_id", visitID),
		zap.String("completion_key", in.CompletionKey),
	)
	return nil
}

// CompletionState returns the observer snapshot for a visit's completion run.
func (s *VisitService) CompletionState(visitID string) model.CompletionState {
	return s.manager.State(visitID)
}

// RetryCompletion re-runs a failed completion.
func (s *VisitService) RetryCompletion(visitID string) error {
	return s.manager.Retry(visitID)
}

// DismissCompletion acknowledges a resolved completion run and releases its
// state. The draft scheduler for the visit is stopped and forgotten too; a
// dismissed visit is done from the carer's perspective.
func (s *VisitService) DismissCompletion(visitID string) error {
	if err := s.manager.Dismiss(visitID); err != nil {
		return err
	}

	s.mu.Lock()
	sched, ok := s.schedulers[visitID]
	if ok {
		delete(s.schedulers, visitID)
	}
	s.mu.Unlock()

	if ok {
		sched.Stop()
	}
	s.queue.Forget(visitID)

	return nil
}
