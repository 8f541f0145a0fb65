package handler

import (
	"errors"
	"net/http"

	"github.com/careloop/visit-service/internal/service"
	"github.com/careloop/visit-service/pkg/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VisitHandler implements the visit workflow API endpoints
type VisitHandler struct {
	service *service.VisitService
	logger  *zap.Logger
}

// NewVisitHandler creates a new VisitHandler
func NewVisitHandler(service *service.VisitService, logger *zap.Logger) *VisitHandler {
	return &VisitHandler{
		service: service,
		logger:  logger,
	}
}

// StartVisitRequest is the body of POST /api/v1/visits.
type StartVisitRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
}

// PostVisit creates a visit record for a booking
func (h *VisitHandler) PostVisit(c *gin.Context) {
	var req StartVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	visit, err := h.service.StartVisit(c.Request.Context(), req.BookingID)
	if err != nil {
		h.logger.Error("failed to start visit",
			zap.Error(err),
			zap.String("booking_id", req.BookingID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to start visit",
			Details: stringPtr(err.Error()),
		})
		return
	}

	h.logger.Info("visit started",
		zap.String("visit_id", visit.ID),
		zap.String("booking_id", req.BookingID),
	)

	c.JSON(http.StatusCreated, visit)
}

// GetVisit retrieves a visit record by ID
func (h *VisitHandler) GetVisit(c *gin.Context) {
	visitID := c.Param("id")

	visit, err := h.service.GetVisit(c.Request.Context(), visitID)
	if err != nil {
		h.logger.Error("failed to get visit",
			zap.Error(err),
			zap.String("visit_id", visitID),
		)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Visit not found",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, visit)
}

// UpdateVisitRequest is the body of PUT /api/v1/visits/:id. Omitted fields
// are left untouched; signatures may be data URLs, which are stored as image
// blobs.
type UpdateVisitRequest struct {
	Notes           *string  `json:"notes"`
	ClientSignature *string  `json:"client_signature"`
	CarerSignature  *string  `json:"carer_signature"`
	PhotoURLs       []string `json:"photo_urls"`
}

// PutVisit saves notes, signatures and the photo list on an in-progress visit
func (h *VisitHandler) PutVisit(c *gin.Context) {
	visitID := c.Param("id")

	var req UpdateVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	visit, err := h.service.UpdateVisit(c.Request.Context(), visitID, service.VisitUpdate{
		Notes:           req.Notes,
		ClientSignature: req.ClientSignature,
		CarerSignature:  req.CarerSignature,
		PhotoURLs:       req.PhotoURLs,
	})
	if err != nil {
		if errors.Is(err, service.ErrVisitCompleted) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Code:    "CONFLICT",
				Message: "Visit is already completed",
			})
			return
		}

		h.logger.Error("failed to update visit",
			zap.Error(err),
			zap.String("visit_id", visitID),
		)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Visit not found",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, visit)
}

// PutVisitDraft records a draft assessment edit. The write is debounced
// server-side; the endpoint acknowledges as soon as the edit is scheduled.
func (h *VisitHandler) PutVisitDraft(c *gin.Context) {
	visitID := c.Param("id")

	var draft model.DraftAssessment
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.service.ScheduleDraft(c.Request.Context(), visitID, draft); err != nil {
		if errors.Is(err, service.ErrVisitCompleted) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Code:    "CONFLICT",
				Message: "Visit is already completed",
			})
			return
		}

		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Visit not found",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"visit_id": visitID,
		"status":   "scheduled",
	})
}

// CompletionBlockedResponse lists the unmet preconditions when the
// validation gate rejects a completion attempt.
type CompletionBlockedResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Reasons []string `json:"reasons"`
}

// PostVisitComplete starts the completion pipeline for a visit
func (h *VisitHandler) PostVisitComplete(c *gin.Context) {
	visitID := c.Param("id")

	err := h.service.Complete(c.Request.Context(), visitID)
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, CompletionBlockedResponse{
				Code:    "NOT_READY",
				Message: "Visit is not ready for completion",
				Reasons: validationErr.Reasons,
			})
			return
		}

		h.logger.Error("failed to start completion",
			zap.Error(err),
			zap.String("visit_id", visitID),
		)
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "CONFLICT",
			Message: "Completion could not be started",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusAccepted, h.service.CompletionState(visitID))
}

// GetVisitCompletion returns the completion progress snapshot for a visit
func (h *VisitHandler) GetVisitCompletion(c *gin.Context) {
	visitID := c.Param("id")
	c.JSON(http.StatusOK, h.service.CompletionState(visitID))
}

// PostVisitCompletionRetry re-runs a failed completion
func (h *VisitHandler) PostVisitCompletionRetry(c *gin.Context) {
	visitID := c.Param("id")

	if err := h.service.RetryCompletion(visitID); err != nil {
		h.logger.Error("failed to retry completion",
			zap.Error(err),
			zap.String("visit_id", visitID),
		)
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "CONFLICT",
			Message: "Completion cannot be retried",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusAccepted, h.service.CompletionState(visitID))
}

// DeleteVisitCompletion dismisses a resolved completion run
func (h *VisitHandler) DeleteVisitCompletion(c *gin.Context) {
	visitID := c.Param("id")

	if err := h.service.DismissCompletion(visitID); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "CONFLICT",
			Message: "Completion cannot be dismissed while in progress",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.Status(http.StatusNoContent)
}
