package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/careloop/visit-service/internal/azure"
	"github.com/careloop/visit-service/internal/identity"
	"github.com/careloop/visit-service/internal/service"
	"github.com/careloop/visit-service/pkg/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeVisitStore is an in-memory visit record store.
type fakeVisitStore struct {
	visits map[string]*model.VisitRecord
}

func (s *fakeVisitStore) Create(ctx context.Context, visit *model.VisitRecord) error {
	s.visits[visit.ID] = visit
	return nil
}

func (s *fakeVisitStore) GetByID(ctx context.Context, visitID string) (*model.VisitRecord, error) {
	visit, ok := s.visits[visitID]
	if !ok {
		return nil, fmt.Errorf("visit not found: %s", visitID)
	}
	return visit, nil
}

func (s *fakeVisitStore) UpdateDraft(ctx context.Context, visitID string, draft *model.DraftAssessment) error {
	visit, ok := s.visits[visitID]
	if !ok {
		return fmt.Errorf("visit not found: %s", visitID)
	}
	visit.Draft = draft
	return nil
}

func (s *fakeVisitStore) UpdateDetails(ctx context.Context, visit *model.VisitRecord) error {
	if _, ok := s.visits[visit.ID]; !ok {
		return fmt.Errorf("visit not found: %s", visit.ID)
	}
	s.visits[visit.ID] = visit
	return nil
}

// fakeBookingReader resolves every booking to a fixed record.
type fakeBookingReader struct{}

func (f *fakeBookingReader) GetByID(ctx context.Context, bookingID string) (*model.Booking, error) {
	return &model.Booking{
		ID:       bookingID,
		ClientID: "client-1",
		StaffID:  "staff-1",
		BranchID: "branch-1",
		StartAt:  time.Now(),
		Status:   "scheduled",
	}, nil
}

// instantRunner resolves every completion immediately.
type instantRunner struct{}

func (r *instantRunner) Run(ctx context.Context, in service.CompletionInput, report service.Progress) (*model.NextBookingHint, error) {
	report("Done", 100)
	return nil, nil
}

type fixedSessionProvider struct {
	session *identity.Session
}

func (p *fixedSessionProvider) CurrentSession() *identity.Session { return p.session }
func (p *fixedSessionProvider) Refresh(ctx context.Context) error { return nil }

func newTestRouter(store *fakeVisitStore) *gin.Engine {
	r, _ := newTestRouterWithImages(store)
	return r
}

func newTestRouterWithImages(store *fakeVisitStore) (*gin.Engine, *azure.MockBlobStorageClient) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	sessions := &fixedSessionProvider{session: &identity.Session{
		AccessToken: "token",
		StaffID:     "staff-1",
		IssuedAt:    time.Now(),
	}}

	manager := service.NewCompletionManager(&instantRunner{}, service.CompletionConfig{
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Millisecond,
		GlobalTimeout:  time.Second,
	}, logger)

	images := azure.NewMockBlobStorageClient(logger)
	visitService := service.NewVisitService(store, &fakeBookingReader{}, sessions, images, manager, service.NewWriteQueue(), 10*time.Millisecond, logger)
	visitHandler := NewVisitHandler(visitService, logger)

	r := gin.New()
	v1 := r.Group("/api/v1")
	{
		v1.POST("/visits", visitHandler.PostVisit)
		v1.GET("/visits/:id", visitHandler.GetVisit)
		v1.PUT("/visits/:id", visitHandler.PutVisit)
		v1.PUT("/visits/:id/draft", visitHandler.PutVisitDraft)
		v1.POST("/visits/:id/complete", visitHandler.PostVisitComplete)
		v1.GET("/visits/:id/completion", visitHandler.GetVisitCompletion)
		v1.POST("/visits/:id/completion/retry", visitHandler.PostVisitCompletionRetry)
		v1.DELETE("/visits/:id/completion", visitHandler.DeleteVisitCompletion)
	}
	return r, images
}

func seedVisit(store *fakeVisitStore, ready bool) *model.VisitRecord {
	visit := &model.VisitRecord{
		ID:        "visit-1",
		BookingID: "booking-1",
		ClientID:  "client-1",
		StaffID:   "staff-1",
		StartedAt: time.Now(),
		Status:    model.VisitStatusInProgress,
	}
	if ready {
		sig := "data:image/png;base64,AAAA"
		visit.CarerSig = &sig
		visit.Draft = &model.DraftAssessment{
			Mood:         "settled",
			Engagement:   "engaged",
			Observations: "Client ate well and enjoyed the afternoon walk.",
		}
	}
	store.visits[visit.ID] = visit
	return visit
}

func TestPostVisit(t *testing.T) {
	store := &fakeVisitStore{visits: map[string]*model.VisitRecord{}}
	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits", strings.NewReader(`{"booking_id":"booking-1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var visit model.VisitRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &visit))
	assert.Equal(t, "booking-1", visit.BookingID)
	assert.Equal(t, model.VisitStatusInProgress, visit.Status)
	assert.Contains(t, store.visits, visit.ID)
}

func TestPostVisit_MissingBookingID(t *testing.T) {
	router := newTestRouter(&fakeVisitStore{visits: map[string]*model.VisitRecord{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPutVisitDraft(t *testing.T) {
	store := &fakeVisitStore{visits: map[string]*model.VisitRecord{}}
	seedVisit(store, false)
	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/visits/visit-1/draft",
		strings.NewReader(`{"mood":"settled","engagement":"engaged","observations":"Client ate well today."}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	// The write is debounced; it lands shortly after acknowledgement.
	assert.Eventually(t, func() bool {
		return store.visits["visit-1"].Draft != nil
	}, time.Second, 5*time.Millisecond)
}

func TestPutVisitDraft_UnknownVisit(t *testing.T) {
	router := newTestRouter(&fakeVisitStore{visits: map[string]*model.VisitRecord{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/visits/visit-x/draft",
		strings.NewReader(`{"mood":"settled"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutVisit_StoresSignature(t *testing.T) {
	store := &fakeVisitStore{visits: map[string]*model.VisitRecord{}}
	seedVisit(store, false)
	router, images := newTestRouterWithImages(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/visits/visit-1",
		strings.NewReader(`{"notes":"All tasks done.","carer_signature":"data:image/png;base64,c3Ryb2tlcw=="}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var visit model.VisitRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &visit))
	require.NotNil(t, visit.CarerSig)
	assert.Equal(t, "images/visit-1_carer_signature.png", *visit.CarerSig)
	assert.Equal(t, "All tasks done.", visit.Notes)
	assert.Equal(t, []byte("strokes"), images.Storage["images/visit-1_carer_signature.png"])
}

func TestPutVisit_UnknownVisit(t *testing.T) {
	router := newTestRouter(&fakeVisitStore{visits: map[string]*model.VisitRecord{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/visits/visit-x",
		strings.NewReader(`{"notes":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutVisit_CompletedVisitConflicts(t *testing.T) {
	store := &fakeVisitStore{visits: map[string]*model.VisitRecord{}}
	visit := seedVisit(store, false)
	visit.Status = model.VisitStatusCompleted

	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/visits/visit-1",
		strings.NewReader(`{"notes":"too late"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

// TestVisitWorkflow drives a visit through the whole API surface: create it,
// autosave an assessment draft, sign it, then complete it.
func TestVisitWorkflow(t *testing.T) {
	store := &fakeVisitStore{visits: map[string]*model.VisitRecord{}}
	router, images := newTestRouterWithImages(store)

	// Create the visit.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits", strings.NewReader(`{"booking_id":"booking-1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var visit model.VisitRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &visit))
	visitID := visit.ID

	// Autosave the assessment draft and wait for the debounced write.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/v1/visits/"+visitID+"/draft",
		strings.NewReader(`{"mood":"settled","engagement":"engaged","observations":"Client ate well and enjoyed the afternoon walk."}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		return store.visits[visitID].Draft != nil
	}, time.Second, 5*time.Millisecond)

	// Completing without a signature is blocked by the readiness gate.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/visits/"+visitID+"/complete", nil))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var blocked CompletionBlockedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &blocked))
	assert.Equal(t, []string{service.ReasonCarerSignature}, blocked.Reasons)

	// Sign the visit; the signature lands in blob storage.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/v1/visits/"+visitID,
		strings.NewReader(`{"carer_signature":"data:image/png;base64,c3Ryb2tlcw=="}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, images.Storage, "images/"+visitID+"_carer_signature.png")

	// Now completion goes through.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/visits/"+visitID+"/complete", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/visits/"+visitID+"/completion", nil))
		var state model.CompletionState
		if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
			return false
		}
		return state.Status == model.CompletionStatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPostVisitComplete_NotReady(t *testing.T) {
	store := &fakeVisitStore{visits: map[string]*model.VisitRecord{}}
	seedVisit(store, false)
	router := newTestRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits/visit-1/complete", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp CompletionBlockedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_READY", resp.Code)
	assert.Equal(t, []string{
		service.ReasonCarerSignature,
		service.ReasonMood,
		service.ReasonEngagement,
		service.ReasonObservations,
	}, resp.Reasons)
}

func TestCompletionLifecycle(t *testing.T) {
	store := &fakeVisitStore{visits: map[string]*model.VisitRecord{}}
	seedVisit(store, true)
	router := newTestRouter(store)

	// Start the completion.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/visits/visit-1/complete", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	// Poll until it resolves.
	assert.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/visits/visit-1/completion", nil))
		var state model.CompletionState
		if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
			return false
		}
		return state.Status == model.CompletionStatusSuccess && state.Progress == 100
	}, 2*time.Second, 10*time.Millisecond)

	// A second completion attempt conflicts.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/visits/visit-1/complete", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	// Retrying a successful run conflicts too.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/visits/visit-1/completion/retry", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	// Dismiss releases the run.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/visits/visit-1/completion", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/visits/visit-1/completion", nil))
	var state model.CompletionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, model.CompletionStatusIdle, state.Status)
}
