package service

import (
	"strings"

	"github.com/careloop/visit-service/internal/identity"
	"github.com/careloop/visit-service/pkg/model"
)

// Named reasons surfaced by the validation gate so the UI can explain
// exactly what is missing instead of a generic disabled state.
const (
	ReasonVisitNotLoaded    = "Visit record still loading"
	ReasonIdentityNotLoaded = "User identity still loading"
	ReasonCarerSignature    = "Carer signature required"
	ReasonMood              = "Mood assessment required"
	ReasonEngagement        = "Engagement assessment required"
	ReasonObservations      = "Observations must be at least 20 characters"
)

// MinObservationsLength is the minimum length of the observations field
// before a visit may be completed.
const MinObservationsLength = 20

// Readiness checks whether the completion pipeline may start. It returns the
// ordered list of unmet preconditions; an empty list means ready.
func Readiness(visit *model.VisitRecord, draft *model.DraftAssessment, session *identity.Session) []string {
	var reasons []string

	if visit == nil {
		reasons = append(reasons, ReasonVisitNotLoaded)
	}
	if session == nil {
		reasons = append(reasons, ReasonIdentityNotLoaded)
	}
	if visit == nil || session == nil {
		return reasons
	}

	if visit.CarerSig == nil || *visit.CarerSig == "" {
		reasons = append(reasons, ReasonCarerSignature)
	}

	if draft == nil || strings.TrimSpace(draft.Mood) == "" {
		reasons = append(reasons, ReasonMood)
	}
	if draft == nil || strings.TrimSpace(draft.Engagement) == "" {
		reasons = append(reasons, ReasonEngagement)
	}
	if draft == nil || len(strings.TrimSpace(draft.Observations)) < MinObservationsLength {
		reasons = append(reasons, ReasonObservations)
	}

	return reasons
}

// Ready reports whether every precondition is satisfied.
func Ready(visit *model.VisitRecord, draft *model.DraftAssessment, session *identity.Session) bool {
	return len(Readiness(visit, draft, session)) == 0
}
