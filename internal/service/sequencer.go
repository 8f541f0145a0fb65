package service

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop/visit-service/internal/identity"
	"github.com/careloop/visit-service/pkg/model"
	"go.uber.org/zap"
)

// VisitStore is the slice of the visit repository the sequencer needs.
type VisitStore interface {
	Complete(ctx context.Context, visit *model.VisitRecord, completionKey string) error
	GetSnapshot(ctx context.Context, visitID string) (*model.VisitSnapshot, error)
}

// ReportStore is the slice of the report repository the sequencer needs.
type ReportStore interface {
	GetByBookingID(ctx context.Context, bookingID string) (*model.ServiceReport, error)
	Insert(ctx context.Context, report *model.ServiceReport) error
	Update(ctx context.Context, report *model.ServiceReport) error
	SetPDFPath(ctx context.Context, reportID, pdfPath string) error
}

// BookingStore is the slice of the booking repository the sequencer needs.
type BookingStore interface {
	GetOrganizationID(ctx context.Context, bookingID string) (string, error)
	MarkAttendanceEnded(ctx context.Context, bookingID string) error
	NextForStaff(ctx context.Context, staffID string, afterBookingID string) (*model.NextBookingHint, error)
}

// SummaryGenerator produces the one-line visit summary. Optional.
type SummaryGenerator interface {
	SummarizeVisit(ctx context.Context, notes, mood, engagement, observations string) (string, error)
}

// ReportRenderer renders a service report to PDF. Optional.
type ReportRenderer interface {
	Generate(report *model.ServiceReport) ([]byte, error)
}

// ReportUploader stores rendered report PDFs. Optional.
type ReportUploader interface {
	UploadPDF(ctx context.Context, filename string, data []byte) (string, error)
}

// Flusher persists any pending draft edits before the sequence starts.
type Flusher interface {
	Flush(ctx context.Context) error
}

// SequencerConfig holds the per-step deadlines of the completion pipeline.
// Read-only lookups get short deadlines; writes get longer ones, matching
// their expected latency and criticality.
type SequencerConfig struct {
	SaveTimeout      time.Duration
	LookupTimeout    time.Duration
	ReportTimeout    time.Duration
	HintTimeout      time.Duration
	RefreshThreshold time.Duration
}

// Progress reports a step boundary to the observer. Percentages are
// monotonically non-decreasing within a run.
type Progress func(step string, percent int)

// CompletionInput carries everything one completion run needs.
type CompletionInput struct {
	Visit         *model.VisitRecord
	Draft         *model.DraftAssessment
	Drafts        Flusher
	CompletionKey string
}

// Sequencer executes the ordered completion steps. Required steps abort the
// run on failure; best-effort steps only log. Later steps depend on data
// produced by earlier ones, so execution is strictly sequential.
type Sequencer struct {
	visits     VisitStore
	reports    ReportStore
	bookings   BookingStore
	sessions   identity.Provider
	summarizer SummaryGenerator
	renderer   ReportRenderer
	uploader   ReportUploader
	queue      *WriteQueue
	logger     *zap.Logger
	cfg        SequencerConfig
}

// NewSequencer creates a new Sequencer. summarizer, renderer and uploader
// may be nil; the pipeline falls back to the deterministic summary and skips
// PDF rendering.
func NewSequencer(
	visits VisitStore,
	reports ReportStore,
	bookings BookingStore,
	sessions identity.Provider,
	summarizer SummaryGenerator,
	renderer ReportRenderer,
	uploader ReportUploader,
	queue *WriteQueue,
	cfg SequencerConfig,
	logger *zap.Logger,
) *Sequencer {
	return &Sequencer{
		visits:     visits,
		reports:    reports,
		bookings:   bookings,
		sessions:   sessions,
		summarizer: summarizer,
		renderer:   renderer,
		uploader:   uploader,
		queue:      queue,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run executes the completion sequence once. It returns the next-booking
// hint on success. On a required step's failure the run aborts and no later
// step executes.
func (s *Sequencer) Run(ctx context.Context, in CompletionInput, report Progress) (*model.NextBookingHint, error) {
	visit := in.Visit

	// Step 1: flush pending drafts so no edit is lost to last-write-wins
	// between the autosave scheduler and the completion writes. Best-effort.
	report("Saving draft", 10)
	if in.Drafts != nil {
		if err := in.Drafts.Flush(ctx); err != nil {
			s.logger.Warn("draft flush failed, continuing",
				zap.Error(err),
				zap.String("visit_id", visit.ID),
			)
		}
	}

	// Step 2: refresh a stale session token. Best-effort.
	report("Checking session", 20)
	s.refreshStaleSession(ctx, visit.ID)

	// Step 3: persist the visit as completed. Required.
	report("Saving visit record", 40)
	summary := s.summarize(ctx, visit, in.Draft)
	now := time.Now()
	visit.EndedAt = &now
	visit.Summary = &summary
	if visit.Draft == nil {
		visit.Draft = in.Draft
	}

	err := withTimeoutErr(ctx, s.cfg.SaveTimeout, "Saving the visit record timed out. Please try again.", func(ctx context.Context) error {
		return s.queue.Do(visit.ID, func() error {
			return s.visits.Complete(ctx, visit, in.CompletionKey)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("save visit record: %w", err)
	}

	// Step 4: fetch the identifiers and collections the report needs. Required.
	report("Preparing report", 55)
	orgID, err := withTimeout(ctx, s.cfg.LookupTimeout, "Looking up visit details timed out. Please try again.", func(ctx context.Context) (string, error) {
		return s.bookings.GetOrganizationID(ctx, visit.BookingID)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve organization: %w", err)
	}

	snapshot, err := withTimeout(ctx, s.cfg.LookupTimeout, "Loading visit details timed out. Please try again.", func(ctx context.Context) (*model.VisitSnapshot, error) {
		return s.visits.GetSnapshot(ctx, visit.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("load visit snapshot: %w", err)
	}

	// Step 6: idempotency check, then insert or update. Required. (Step 5,
	// building the payload, is pure and happens inline.)
	report("Saving service report", 70)
	serviceReport, err := withTimeout(ctx, s.cfg.ReportTimeout, "Saving the service report timed out. Please try again.", func(ctx context.Context) (*model.ServiceReport, error) {
		existing, err := s.reports.GetByBookingID(ctx, visit.BookingID)
		if err != nil {
			return nil, err
		}

		existingID := ""
		if existing != nil {
			existingID = existing.ID
		}
		payload := BuildServiceReport(visit, snapshot, in.Draft, orgID, summary, in.CompletionKey, existingID)

		if existing != nil {
			if existing.CompletionKey == in.CompletionKey {
				// This run's earlier attempt already landed the report,
				// likely after a client-side timeout. Nothing to redo.
				return existing, nil
			}
			return payload, s.reports.Update(ctx, payload)
		}
		return payload, s.reports.Insert(ctx, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("save service report: %w", err)
	}

	// Render and upload the printable report. Best-effort.
	report("Rendering report", 85)
	s.renderAndUpload(ctx, serviceReport)

	// Step 7: mark attendance ended. Best-effort: the visit is complete from
	// the carer's perspective even when this secondary side effect fails.
	report("Updating attendance", 95)
	err = withTimeoutErr(ctx, s.cfg.LookupTimeout, "attendance update timed out", func(ctx context.Context) error {
		return s.bookings.MarkAttendanceEnded(ctx, visit.BookingID)
	})
	if err != nil {
		s.logger.Warn("failed to mark attendance ended, continuing",
			zap.Error(err),
			zap.String("booking_id", visit.BookingID),
		)
	}

	// Step 8: next-booking hint. Best-effort; absence is not an error.
	hint, err := withTimeout(ctx, s.cfg.HintTimeout, "next booking lookup timed out", func(ctx context.Context) (*model.NextBookingHint, error) {
		return s.bookings.NextForStaff(ctx, visit.StaffID, visit.BookingID)
	})
	if err != nil {
		s.logger.Warn("next booking lookup failed",
			zap.Error(err),
			zap.String("staff_id", visit.StaffID),
		)
		hint = nil
	}

	report("Done", 100)

	s.logger.Info("visit completion sequence finished",
		zap.String("visit_id", visit.ID),
		zap.String("booking_id", visit.BookingID),
		zap.String("report_id", serviceReport.ID),
		zap.Bool("next_booking_found", hint != nil),
	)

	return hint, nil
}

// refreshStaleSession refreshes the auth token when it is older than the
// configured threshold. Failures are logged and ignored.
func (s *Sequencer) refreshStaleSession(ctx context.Context, visitID string) {
	if s.sessions == nil {
		return
	}

	session := s.sessions.CurrentSession()
	if session == nil || session.Age() < s.cfg.RefreshThreshold {
		return
	}

	if err := s.sessions.Refresh(ctx); err != nil {
		s.logger.Warn("session refresh failed, continuing",
			zap.Error(err),
			zap.String("visit_id", visitID),
		)
	}
}

// summarize computes the visit summary line, falling back to the
// deterministic template when no generator is configured or it fails.
func (s *Sequencer) summarize(ctx context.Context, visit *model.VisitRecord, draft *model.DraftAssessment) string {
	if s.summarizer == nil {
		return FallbackSummary(visit, draft)
	}

	mood, engagement, observations := "", "", ""
	if draft != nil {
		mood, engagement, observations = draft.Mood, draft.Engagement, draft.Observations
	}

	summary, err := withTimeout(ctx, s.cfg.HintTimeout, "summary generation timed out", func(ctx context.Context) (string, error) {
		return s.summarizer.SummarizeVisit(ctx, visit.Notes, mood, engagement, observations)
	})
	if err != nil || summary == "" {
		s.logger.Warn("summary generation failed, using fallback",
			zap.Error(err),
			zap.String("visit_id", visit.ID),
		)
		return FallbackSummary(visit, draft)
	}

	return summary
}

// renderAndUpload renders the report PDF and stores it. Best-effort.
func (s *Sequencer) renderAndUpload(ctx context.Context, report *model.ServiceReport) {
	if s.renderer == nil || s.uploader == nil {
		return
	}

	pdfBytes, err := s.renderer.Generate(report)
	if err != nil {
		s.logger.Warn("report PDF rendering failed, continuing",
			zap.Error(err),
			zap.String("report_id", report.ID),
		)
		return
	}

	filename := fmt.Sprintf("%s_%s.pdf", report.ID, time.Now().Format("20060102"))
	blobPath, err := withTimeout(ctx, s.cfg.ReportTimeout, "report PDF upload timed out", func(ctx context.Context) (string, error) {
		return s.uploader.UploadPDF(ctx, filename, pdfBytes)
	})
	if err != nil {
		s.logger.Warn("report PDF upload failed, continuing",
			zap.Error(err),
			zap.String("report_id", report.ID),
		)
		return
	}

	if err := s.reports.SetPDFPath(ctx, report.ID, blobPath); err != nil {
		s.logger.Warn("failed to record report PDF path",
			zap.Error(err),
			zap.String("report_id", report.ID),
		)
	}
}
