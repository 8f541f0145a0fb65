package pdf

import (
	"testing"
	"time"

	"github.com/careloop/visit-service/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerate(t *testing.T) {
	generator := NewPDFGenerator(zap.NewNop())

	started := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	report := &model.ServiceReport{
		ID:             "report-1",
		BookingID:      "booking-1",
		Summary:        "Calm and productive visit.",
		Notes:          "Routine morning visit.",
		Mood:           "settled",
		Engagement:     "engaged",
		Observations:   "Client ate well and enjoyed the afternoon walk.",
		Tasks:          []model.SnapshotItem{{ID: "t1", Name: "Prepare breakfast", Outcome: "done"}},
		Medications:    []model.SnapshotItem{{ID: "m1", Name: "Paracetamol 500mg", Outcome: "taken"}},
		VisitStartedAt: started,
		VisitEndedAt:   started.Add(45 * time.Minute),
	}

	data, err := generator.Generate(report)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestGenerate_EmptyCollections(t *testing.T) {
	generator := NewPDFGenerator(zap.NewNop())

	report := &model.ServiceReport{
		ID:             "report-1",
		BookingID:      "booking-1",
		Summary:        "Quiet visit.",
		VisitStartedAt: time.Now(),
		VisitEndedAt:   time.Now(),
	}

	data, err := generator.Generate(report)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
