package service

import (
	"context"
	"testing"

	"github.com/careloop/visit-service/internal/azure"
	"github.com/careloop/visit-service/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReportService_GetByBooking(t *testing.T) {
	reports := new(MockReportStore)
	report := &model.ServiceReport{ID: "report-1", BookingID: "booking-1", Summary: "All tasks completed."}
	reports.On("GetByBookingID", mock.Anything, "booking-1").Return(report, nil)

	svc := NewReportService(reports, azure.NewMockBlobStorageClient(zap.NewNop()), zap.NewNop())

	got, err := svc.GetByBooking(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.Equal(t, report, got)
}

func TestReportService_GetByBooking_NoReport(t *testing.T) {
	reports := new(MockReportStore)
	reports.On("GetByBookingID", mock.Anything, "booking-1").Return(nil, nil)

	svc := NewReportService(reports, azure.NewMockBlobStorageClient(zap.NewNop()), zap.NewNop())

	_, err := svc.GetByBooking(context.Background(), "booking-1")
	assert.Error(t, err)
}

func TestReportService_GetPDF(t *testing.T) {
	storage := azure.NewMockBlobStorageClient(zap.NewNop())
	blobPath, err := storage.UploadPDF(context.Background(), "report-1.pdf", []byte("%PDF-1.4 test"))
	require.NoError(t, err)

	reports := new(MockReportStore)
	reports.On("GetByBookingID", mock.Anything, "booking-1").Return(&model.ServiceReport{
		ID:        "report-1",
		BookingID: "booking-1",
		PDFPath:   &blobPath,
	}, nil)

	svc := NewReportService(reports, storage, zap.NewNop())

	data, err := svc.GetPDF(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 test"), data)
}

func TestReportService_GetPDF_NotRendered(t *testing.T) {
	// A report exists but its PDF render failed during completion.
	reports := new(MockReportStore)
	reports.On("GetByBookingID", mock.Anything, "booking-1").Return(&model.ServiceReport{
		ID:        "report-1",
		BookingID: "booking-1",
	}, nil)

	svc := NewReportService(reports, azure.NewMockBlobStorageClient(zap.NewNop()), zap.NewNop())

	_, err := svc.GetPDF(context.Background(), "booking-1")
	assert.Error(t, err)
}
