package model

import "time"

// VisitStatus represents the lifecycle status of a care visit
type VisitStatus string

const (
	VisitStatusInProgress VisitStatus = "in_progress"
	VisitStatusCompleted  VisitStatus = "completed"
)

// VisitRecord represents one in-progress-or-completed care visit.
// It is created when a visit starts, mutated throughout the visit, and
// finalized exactly once by the completion pipeline.
type VisitRecord struct {
	ID            string           `json:"id"`
	BookingID     string           `json:"booking_id"`
	ClientID      string           `json:"client_id"`
	StaffID       string           `json:"staff_id"`
	BranchID      string           `json:"branch_id"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
	Notes         string           `json:"notes"`
	Summary       *string          `json:"summary,omitempty"`
	Draft         *DraftAssessment `json:"draft,omitempty"`
	ClientSig     *string          `json:"client_signature,omitempty"`
	CarerSig      *string          `json:"carer_signature,omitempty"`
	PhotoURLs     []string         `json:"photo_urls,omitempty"`
	Status        VisitStatus      `json:"status"`
	CompletionKey *string          `json:"completion_key,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// DraftAssessment is the in-progress assessment parked on the visit record
// while the carer is still on site. It is always written as a whole object,
// never merged field by field.
type DraftAssessment struct {
	Mood           string `json:"mood"`
	Engagement     string `json:"engagement"`
	Activities     string `json:"activities"`
	Observations   string `json:"observations"`
	Feedback       string `json:"feedback"`
	NextVisitNotes string `json:"next_visit_notes"`
}

// IsEmpty reports whether every tracked draft field is empty.
func (d *DraftAssessment) IsEmpty() bool {
	if d == nil {
		return true
	}
	return d.Mood == "" && d.Engagement == "" && d.Activities == "" &&
		d.Observations == "" && d.Feedback == "" && d.NextVisitNotes == ""
}

// SnapshotItem is one task, medication administration, event, goal or
// activity captured during a visit. IDs are assigned at creation time and are
// the only deduplication key when collections are merged into a report.
type SnapshotItem struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Outcome     string     `json:"outcome,omitempty"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty"`
}

// VisitSnapshot holds the collections gathered over the course of a visit.
type VisitSnapshot struct {
	Tasks       []SnapshotItem `json:"tasks,omitempty"`
	Medications []SnapshotItem `json:"medications,omitempty"`
	Events      []SnapshotItem `json:"events,omitempty"`
	Goals       []SnapshotItem `json:"goals,omitempty"`
	Activities  []SnapshotItem `json:"activities,omitempty"`
}

// ServiceReport is the document derived from a completed visit. There is at
// most one per booking; completing the same booking again updates it in
// place.
type ServiceReport struct {
	ID             string         `json:"id"`
	BookingID      string         `json:"booking_id"`
	VisitID        string         `json:"visit_id"`
	ClientID       string         `json:"client_id"`
	StaffID        string         `json:"staff_id"`
	OrganizationID string         `json:"organization_id"`
	Summary        string         `json:"summary"`
	Notes          string         `json:"notes"`
	Mood           string         `json:"mood"`
	Engagement     string         `json:"engagement"`
	Observations   string         `json:"observations"`
	Feedback       string         `json:"feedback,omitempty"`
	NextVisitNotes string         `json:"next_visit_notes,omitempty"`
	Tasks          []SnapshotItem `json:"tasks,omitempty"`
	Medications    []SnapshotItem `json:"medications,omitempty"`
	Events         []SnapshotItem `json:"events,omitempty"`
	Goals          []SnapshotItem `json:"goals,omitempty"`
	Activities     []SnapshotItem `json:"activities,omitempty"`
	PhotoURLs      []string       `json:"photo_urls,omitempty"`
	PDFPath        *string        `json:"pdf_path,omitempty"`
	CompletionKey  string         `json:"completion_key"`
	VisitStartedAt time.Time      `json:"visit_started_at"`
	VisitEndedAt   time.Time      `json:"visit_ended_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Booking represents a scheduled visit slot.
type Booking struct {
	ID       string    `json:"id"`
	ClientID string    `json:"client_id"`
	StaffID  string    `json:"staff_id"`
	BranchID string    `json:"branch_id"`
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
	Status   string    `json:"status"`
}

// NextBookingHint is the best-effort lookup of the carer's next scheduled
// booking today. Absence is not an error.
type NextBookingHint struct {
	BookingID  string    `json:"booking_id"`
	ClientID   string    `json:"client_id"`
	ClientName string    `json:"client_name,omitempty"`
	StartAt    time.Time `json:"start_at"`
}

// CompletionStatus is the state of one completion run.
type CompletionStatus string

const (
	CompletionStatusIdle       CompletionStatus = "idle"
	CompletionStatusCompleting CompletionStatus = "completing"
	CompletionStatusSuccess    CompletionStatus = "success"
	CompletionStatusError      CompletionStatus = "error"
)

// CompletionState is the snapshot handed to the presentation layer while a
// visit is being finalized. Progress is monotonically non-decreasing within
// a run.
type CompletionState struct {
	VisitID     string           `json:"visit_id"`
	Status      CompletionStatus `json:"status"`
	Step        string           `json:"step"`
	Progress    int              `json:"progress"`
	Error       string           `json:"error,omitempty"`
	Attempt     int              `json:"attempt"`
	NextBooking *NextBookingHint `json:"next_booking,omitempty"`
}
