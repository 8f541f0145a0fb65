package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/careloop/visit-service/pkg/model"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// SequenceRunner abstracts the step sequencer so the manager can be tested
// with a scripted runner.
type SequenceRunner interface {
	Run(ctx context.Context, in CompletionInput, report Progress) (*model.NextBookingHint, error)
}

// CompletionConfig tunes the retry controller and the global wall clock.
type CompletionConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	GlobalTimeout  time.Duration
}

// completionRun is the in-memory state machine for one visit's completion.
// States: idle -> completing -> (success | error); error -> completing only
// via explicit retry. Terminal states are exited only by retry or dismissal.
type completionRun struct {
	mu    sync.Mutex
	state model.CompletionState
	input CompletionInput
}

// snapshot returns an immutable copy for observers.
func (r *completionRun) snapshot() model.CompletionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// setProgress records a step boundary, clamped so progress never decreases
// within a run, including across automatic replays.
func (r *completionRun) setProgress(step string, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Step = step
	if percent > r.state.Progress {
		r.state.Progress = percent
	}
}

// CompletionManager owns one completion run per visit. It enforces the
// single in-flight guard, drives the retry controller, and bounds the whole
// run with a global wall-clock timeout so the carer is never left in an
// indeterminate "completing forever" state.
type CompletionManager struct {
	runner SequenceRunner
	logger *zap.Logger
	cfg    CompletionConfig

	mu   sync.Mutex
	runs map[string]*completionRun
}

// NewCompletionManager creates a new CompletionManager
func NewCompletionManager(runner SequenceRunner, cfg CompletionConfig, logger *zap.Logger) *CompletionManager {
	return &CompletionManager{
		runner: runner,
		logger: logger,
		cfg:    cfg,
		runs:   make(map[string]*completionRun),
	}
}

// Start begins a completion run for a visit. Returns an error when a run is
// already in flight; only one transition out of idle may occur until the run
// resolves.
func (m *CompletionManager) Start(in CompletionInput) error {
	visitID := in.Visit.ID

	m.mu.Lock()
	existing, ok := m.runs[visitID]
	if ok {
		status := existing.snapshot().Status
		if status == model.CompletionStatusCompleting {
			m.mu.Unlock()
			return fmt.Errorf("completion already in progress for visit %s", visitID)
		}
		if status == model.CompletionStatusSuccess {
			m.mu.Unlock()
			return fmt.Errorf("visit %s already completed", visitID)
		}
	}

	run := &completionRun{
		input: in,
		state: model.CompletionState{
			VisitID: visitID,
			Status:  model.CompletionStatusCompleting,
			Attempt: 1,
		},
	}
	m.runs[visitID] = run
	m.mu.Unlock()

	go m.drive(run)
	return nil
}

// State returns the observer snapshot for a visit's run. A visit with no run
// is idle.
func (m *CompletionManager) State(visitID string) model.CompletionState {
	m.mu.Lock()
	run, ok := m.runs[visitID]
	m.mu.Unlock()

	if !ok {
		return model.CompletionState{
			VisitID: visitID,
			Status:  model.CompletionStatusIdle,
		}
	}
	return run.snapshot()
}

// Retry re-enters completing from the error state. Only a user-visible
// error state can be retried; success and in-flight runs are rejected.
// The check-and-transition happens under the manager lock, the same lock
// Start takes, so a concurrent Start cannot replace the run and leave two
// drives in flight for one visit.
func (m *CompletionManager) Retry(visitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[visitID]
	if !ok {
		return fmt.Errorf("no completion run for visit %s", visitID)
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.state.Status != model.CompletionStatusError {
		return fmt.Errorf("completion run for visit %s is %s, not retryable", visitID, run.state.Status)
	}
	run.state.Status = model.CompletionStatusCompleting
	run.state.Error = ""
	run.state.Attempt++

	go m.drive(run)
	return nil
}

// Dismiss removes a resolved run, releasing its state. In-flight runs
// cannot be dismissed; the progress modal stays up until resolution.
func (m *CompletionManager) Dismiss(visitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[visitID]
	if !ok {
		return nil
	}

	if run.snapshot().Status == model.CompletionStatusCompleting {
		return fmt.Errorf("completion still in progress for visit %s", visitID)
	}

	delete(m.runs, visitID)
	return nil
}

// drive executes the sequence with automatic replay on transient failures.
// The global timeout spans all attempts combined; it stops the client from
// waiting further but does not abort in-flight remote calls.
func (m *CompletionManager) drive(run *completionRun) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.GlobalTimeout)
	defer cancel()

	visitID := run.input.Visit.ID

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.InitialBackoff
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	progress := func(step string, percent int) {
		run.setProgress(step, percent)
	}

	var lastErr error
	for {
		attempt := run.snapshot().Attempt

		hint, err := m.runner.Run(ctx, run.input, progress)
		if err == nil {
			m.resolve(run, model.CompletionStatusSuccess, "", hint)
			m.logger.Info("visit completion succeeded",
				zap.String("visit_id", visitID),
				zap.Int("attempt", attempt),
			)
			return
		}

		lastErr = err
		m.logger.Error("visit completion attempt failed",
			zap.Error(err),
			zap.String("visit_id", visitID),
			zap.Int("attempt", attempt),
			zap.String("class", string(Classify(err))),
		)

		if ctx.Err() != nil {
			m.resolve(run, model.CompletionStatusError,
				"Completing the visit took too long. Please try again.", nil)
			return
		}

		if !Retryable(err) || attempt >= m.cfg.MaxAttempts {
			m.resolve(run, model.CompletionStatusError, UserMessage(lastErr), nil)
			return
		}

		wait := bo.NextBackOff()
		m.logger.Info("retrying visit completion",
			zap.String("visit_id", visitID),
			zap.Int("next_attempt", attempt+1),
			zap.Duration("backoff", wait),
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			m.resolve(run, model.CompletionStatusError,
				"Completing the visit took too long. Please try again.", nil)
			return
		}

		run.mu.Lock()
		run.state.Attempt++
		run.mu.Unlock()
	}
}

// resolve moves the run to a terminal state, releasing the in-flight guard
// on both the success and the error path.
func (m *CompletionManager) resolve(run *completionRun, status model.CompletionStatus, message string, hint *model.NextBookingHint) {
	run.mu.Lock()
	defer run.mu.Unlock()

	run.state.Status = status
	run.state.Error = message
	run.state.NextBooking = hint
	if status == model.CompletionStatusSuccess {
		run.state.Progress = 100
		run.state.Step = "Done"
	}
}
