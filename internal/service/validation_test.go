package service

import (
	"strings"
	"testing"
	"time"

	"github.com/careloop/visit-service/internal/identity"
	"github.com/careloop/visit-service/pkg/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func readyVisit() *model.VisitRecord {
	sig := "data:image/png;base64,AAAA"
	return &model.VisitRecord{
		ID:        "visit-1",
		BookingID: "booking-1",
		StartedAt: time.Now(),
		CarerSig:  &sig,
		Status:    model.VisitStatusInProgress,
	}
}

func readyDraft() *model.DraftAssessment {
	return &model.DraftAssessment{
		Mood:         "settled",
		Engagement:   "engaged",
		Observations: "Client ate well and enjoyed the afternoon walk.",
	}
}

func activeSession() *identity.Session {
	return &identity.Session{
		AccessToken: "token",
		StaffID:     "staff-1",
		IssuedAt:    time.Now(),
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name     string
		visit    *model.VisitRecord
		draft    *model.DraftAssessment
		session  *identity.Session
		expected []string
	}{
		{
			name:     "all preconditions met",
			visit:    readyVisit(),
			draft:    readyDraft(),
			session:  activeSession(),
			expected: nil,
		},
		{
			name:     "visit not loaded",
			visit:    nil,
			draft:    readyDraft(),
			session:  activeSession(),
			expected: []string{ReasonVisitNotLoaded},
		},
		{
			name:     "identity not loaded",
			visit:    readyVisit(),
			draft:    readyDraft(),
			session:  nil,
			expected: []string{ReasonIdentityNotLoaded},
		},
		{
			name:     "neither loaded reports only loading reasons",
			visit:    nil,
			draft:    nil,
			session:  nil,
			expected: []string{ReasonVisitNotLoaded, ReasonIdentityNotLoaded},
		},
		{
			name: "missing carer signature",
			visit: func() *model.VisitRecord {
				v := readyVisit()
				v.CarerSig = nil
				return v
			}(),
			draft:    readyDraft(),
			session:  activeSession(),
			expected: []string{ReasonCarerSignature},
		},
		{
			name: "empty carer signature",
			visit: func() *model.VisitRecord {
				v := readyVisit()
				empty := ""
				v.CarerSig = &empty
				return v
			}(),
			draft:    readyDraft(),
			session:  activeSession(),
			expected: []string{ReasonCarerSignature},
		},
		{
			name:  "missing mood",
			visit: readyVisit(),
			draft: func() *model.DraftAssessment {
				d := readyDraft()
				d.Mood = "   "
				return d
			}(),
			session:  activeSession(),
			expected: []string{ReasonMood},
		},
		{
			name:  "missing engagement",
			visit: readyVisit(),
			draft: func() *model.DraftAssessment {
				d := readyDraft()
				d.Engagement = ""
				return d
			}(),
			session:  activeSession(),
			expected: []string{ReasonEngagement},
		},
		{
			name:  "observations too short",
			visit: readyVisit(),
			draft: func() *model.DraftAssessment {
				d := readyDraft()
				d.Observations = "All fine."
				return d
			}(),
			session:  activeSession(),
			expected: []string{ReasonObservations},
		},
		{
			name:  "whitespace padding does not count toward observations length",
			visit: readyVisit(),
			draft: func() *model.DraftAssessment {
				d := readyDraft()
				d.Observations = "   short note       "
				return d
			}(),
			session:  activeSession(),
			expected: []string{ReasonObservations},
		},
		{
			name:     "no draft at all",
			visit:    readyVisit(),
			draft:    nil,
			session:  activeSession(),
			expected: []string{ReasonMood, ReasonEngagement, ReasonObservations},
		},
		{
			name: "every precondition unmet, reasons in order",
			visit: func() *model.VisitRecord {
				v := readyVisit()
				v.CarerSig = nil
				return v
			}(),
			draft:    &model.DraftAssessment{},
			session:  activeSession(),
			expected: []string{ReasonCarerSignature, ReasonMood, ReasonEngagement, ReasonObservations},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Readiness(tt.visit, tt.draft, tt.session))
		})
	}
}

func TestReady(t *testing.T) {
	assert.True(t, Ready(readyVisit(), readyDraft(), activeSession()))
	assert.False(t, Ready(nil, readyDraft(), activeSession()))
	assert.False(t, Ready(readyVisit(), nil, activeSession()))
}

func TestProperty_ObservationsLengthBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Observations gate depends only on trimmed length", prop.ForAll(
		func(length int, padding int) bool {
			draft := readyDraft()
			draft.Observations = strings.Repeat(" ", padding) + strings.Repeat("a", length) + strings.Repeat(" ", padding)

			reasons := Readiness(readyVisit(), draft, activeSession())
			blocked := false
			for _, r := range reasons {
				if r == ReasonObservations {
					blocked = true
				}
			}

			if length >= MinObservationsLength {
				return !blocked
			}
			return blocked
		},
		gen.IntRange(0, 100),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
