package service

import (
	"fmt"

	"github.com/careloop/visit-service/pkg/model"
	"github.com/google/uuid"
)

// BuildServiceReport merges a completed visit, the collections gathered
// during it and the assessment fields into a service report payload. Pure:
// no I/O. Pass the existing report's ID when the idempotency check found one
// so the row is updated in place instead of duplicated.
func BuildServiceReport(
	visit *model.VisitRecord,
	snapshot *model.VisitSnapshot,
	draft *model.DraftAssessment,
	organizationID string,
	summary string,
	completionKey string,
	existingID string,
) *model.ServiceReport {
	reportID := existingID
	if reportID == "" {
		reportID = uuid.New().String()
	}

	report := &model.ServiceReport{
		ID:             reportID,
		BookingID:      visit.BookingID,
		VisitID:        visit.ID,
		ClientID:       visit.ClientID,
		StaffID:        visit.StaffID,
		OrganizationID: organizationID,
		Summary:        summary,
		Notes:          visit.Notes,
		PhotoURLs:      visit.PhotoURLs,
		CompletionKey:  completionKey,
		VisitStartedAt: visit.StartedAt,
	}

	if visit.EndedAt != nil {
		report.VisitEndedAt = *visit.EndedAt
	}

	if draft != nil {
		report.Mood = draft.Mood
		report.Engagement = draft.Engagement
		report.Observations = draft.Observations
		report.Feedback = draft.Feedback
		report.NextVisitNotes = draft.NextVisitNotes
	}

	if snapshot != nil {
		report.Tasks = dedupeItems(snapshot.Tasks)
		report.Medications = dedupeItems(snapshot.Medications)
		report.Events = dedupeItems(snapshot.Events)
		report.Goals = dedupeItems(snapshot.Goals)
		report.Activities = dedupeItems(snapshot.Activities)
	}

	return report
}

// dedupeItems drops duplicate snapshot items, keyed on the stable ID
// assigned at creation time. The first occurrence wins. Name-based matching
// is deliberately not used: case and whitespace variance make it unreliable.
func dedupeItems(items []model.SnapshotItem) []model.SnapshotItem {
	if len(items) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(items))
	result := make([]model.SnapshotItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		result = append(result, item)
	}
	return result
}

// FallbackSummary produces the deterministic one-line summary used when no
// summary generator is configured or the generator fails.
func FallbackSummary(visit *model.VisitRecord, draft *model.DraftAssessment) string {
	mood := "not recorded"
	engagement := "not recorded"
	if draft != nil && draft.Mood != "" {
		mood = draft.Mood
	}
	if draft != nil && draft.Engagement != "" {
		engagement = draft.Engagement
	}

	return fmt.Sprintf("Visit completed on %s; client mood %s, engagement %s.",
		visit.StartedAt.Format("2006-01-02"), mood, engagement)
}
