package handler

import (
	"net/http"

	"github.com/careloop/visit-service/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReportHandler serves finished service reports and their rendered PDFs
type ReportHandler struct {
	service *service.ReportService
	logger  *zap.Logger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(service *service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		logger:  logger,
	}
}

// GetBookingReport returns the service report for a booking
func (h *ReportHandler) GetBookingReport(c *gin.Context) {
	bookingID := c.Param("id")

	report, err := h.service.GetByBooking(c.Request.Context(), bookingID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Service report not found",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetBookingReportPDF streams the rendered PDF of a booking's service report
func (h *ReportHandler) GetBookingReportPDF(c *gin.Context) {
	bookingID := c.Param("id")

	data, err := h.service.GetPDF(c.Request.Context(), bookingID)
	if err != nil {
		h.logger.Warn("report PDF not available",
			zap.Error(err),
			zap.String("booking_id", bookingID),
		)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Report PDF not available",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.Header("Content-Disposition", "attachment; filename=service-report-"+bookingID+".pdf")
	c.Data(http.StatusOK, "application/pdf", data)
}
