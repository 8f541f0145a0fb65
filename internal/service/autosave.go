package service

import (
	"context"
	"sync"
	"time"

	"github.com/careloop/visit-service/pkg/model"
	"go.uber.org/zap"
)

// DraftStore persists the draft assessment sub-document of a visit.
type DraftStore interface {
	UpdateDraft(ctx context.Context, visitID string, draft *model.DraftAssessment) error
}

// DraftScheduler debounces draft assessment edits and persists the latest
// snapshot. Each Schedule call replaces the pending snapshot and re-arms the
// timer, so only the last snapshot inside a debounce window is written.
// Drafts are best-effort: a failed write is logged and swallowed, never
// surfaced to the carer.
type DraftScheduler struct {
	store    DraftStore
	queue    *WriteQueue
	logger   *zap.Logger
	visitID  string
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending *model.DraftAssessment
	stopped bool
}

// NewDraftScheduler creates a new DraftScheduler for one visit
func NewDraftScheduler(store DraftStore, queue *WriteQueue, visitID string, interval time.Duration, logger *zap.Logger) *DraftScheduler {
	return &DraftScheduler{
		store:    store,
		queue:    queue,
		logger:   logger,
		visitID:  visitID,
		interval: interval,
	}
}

// Schedule records the latest draft snapshot and re-arms the debounce timer.
// Any pending timer is cancelled; only the snapshot present when the timer
// fires is persisted.
func (s *DraftScheduler) Schedule(draft model.DraftAssessment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	snapshot := draft
	s.pending = &snapshot

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.interval, s.fire)
}

// fire persists the pending snapshot when the debounce timer elapses. The
// write is skipped when every tracked field is empty.
func (s *DraftScheduler) fire() {
	s.mu.Lock()
	draft := s.pending
	s.timer = nil
	s.mu.Unlock()

	if draft == nil || draft.IsEmpty() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.write(ctx, draft)
}

// Flush cancels any pending timer and persists the latest snapshot
// immediately, regardless of emptiness. The completion pipeline calls this
// before finalizing so no pending edit is lost.
func (s *DraftScheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	draft := s.pending
	s.mu.Unlock()

	if draft == nil {
		return nil
	}

	return s.write(ctx, draft)
}

// write pushes the snapshot through the serialized per-visit write queue.
func (s *DraftScheduler) write(ctx context.Context, draft *model.DraftAssessment) error {
	err := s.queue.Do(s.visitID, func() error {
		return s.store.UpdateDraft(ctx, s.visitID, draft)
	})

	if err != nil {
		s.logger.Warn("draft autosave failed",
			zap.Error(err),
			zap.String("visit_id", s.visitID),
		)
		return err
	}

	s.logger.Debug("draft autosave persisted", zap.String("visit_id", s.visitID))
	return nil
}

// Stop cancels any pending timer and prevents further scheduling.
func (s *DraftScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
