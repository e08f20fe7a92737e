package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	"saubio/pkg/logger"
	"saubio/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockBookingService struct {
	createFunc       func(ctx context.Context, actorID string, booking *model.Booking) (*model.Booking, error)
	findByIDFunc     func(ctx context.Context, id string) (*model.Booking, error)
	transitionFunc   func(ctx context.Context, actorID, id string, to model.BookingStatus) (*model.Booking, error)
	cancelFunc       func(ctx context.Context, actorID, id string) (*model.Booking, error)
	requestMatchFunc func(ctx context.Context, actorID, id string) error
}

func (m *mockBookingService) Create(ctx context.Context, actorID string, booking *model.Booking) (*model.Booking, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, actorID, booking)
	}
	return booking, nil
}

func (m *mockBookingService) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, apperrors.NotFoundWithID("Booking", id)
}

func (m *mockBookingService) FindByClient(_ context.Context, _ string, _ int, _ int64) ([]*model.Booking, int64, error) {
	return []*model.Booking{}, 0, nil
}

func (m *mockBookingService) List(_ context.Context, _ model.BookingFilter, _ int, _ int64) ([]*model.Booking, int64, error) {
	return []*model.Booking{}, 0, nil
}

func (m *mockBookingService) Update(_ context.Context, _, _ string, _ *model.BookingUpdate) (*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingService) Transition(ctx context.Context, actorID, id string, to model.BookingStatus) (*model.Booking, error) {
	if m.transitionFunc != nil {
		return m.transitionFunc(ctx, actorID, id, to)
	}
	return nil, nil
}

func (m *mockBookingService) Cancel(ctx context.Context, actorID, id string) (*model.Booking, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, actorID, id)
	}
	return nil, nil
}

func (m *mockBookingService) RequestMatch(ctx context.Context, actorID, id string) error {
	if m.requestMatchFunc != nil {
		return m.requestMatchFunc(ctx, actorID, id)
	}
	return nil
}

func (m *mockBookingService) AuditTrail(_ context.Context, _ string) ([]*model.AuditEntry, error) {
	return []*model.AuditEntry{}, nil
}

type mockAssigner struct {
	assignFunc func(ctx context.Context, actorID, bookingID, teamID string) (*model.Booking, error)
}

func (m *mockAssigner) AssignTeam(ctx context.Context, actorID, bookingID, teamID string) (*model.Booking, error) {
	if m.assignFunc != nil {
		return m.assignFunc(ctx, actorID, bookingID, teamID)
	}
	return &model.Booking{ID: bookingID, AssignedTeamID: teamID}, nil
}

func newRouter(svc *mockBookingService, assigner *mockAssigner) *httprouter.Router {
	cfg := &config.Config{
		Log: logger.New(logger.Config{Level: logger.ERROR, Service: "test"}),
	}
	router := httprouter.New()
	NewBookingHandler(svc, assigner, cfg).RegisterRoutes(router)
	return router
}

func TestCreateBooking_InvalidJSON(t *testing.T) {
	router := newRouter(&mockBookingService{}, &mockAssigner{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreateBooking_PassesActorHeader(t *testing.T) {
	var receivedActor string
	svc := &mockBookingService{
		createFunc: func(_ context.Context, actorID string, booking *model.Booking) (*model.Booking, error) {
			receivedActor = actorID
			booking.ID = "b1"
			return booking, nil
		},
	}
	router := newRouter(svc, &mockAssigner{})

	body := `{"client_id":"c1","address":"12 Rue de la Paix","service_category":"home_cleaning","required_providers":1,"mode":"manual"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
	req.Header.Set("X-Actor-ID", "client:c1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if receivedActor != "client:c1" {
		t.Errorf("expected actor from header, got %q", receivedActor)
	}
}

func TestCreateBooking_DefaultsSystemActor(t *testing.T) {
	var receivedActor string
	svc := &mockBookingService{
		createFunc: func(_ context.Context, actorID string, booking *model.Booking) (*model.Booking, error) {
			receivedActor = actorID
			return booking, nil
		},
	}
	router := newRouter(svc, &mockAssigner{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if receivedActor != "system:api" {
		t.Errorf("expected system:api fallback, got %q", receivedActor)
	}
}

func TestTransitionBooking_MissingStatus(t *testing.T) {
	router := newRouter(&mockBookingService{}, &mockAssigner{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/status", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestTransitionBooking_ConflictSurfaces409(t *testing.T) {
	svc := &mockBookingService{
		transitionFunc: func(_ context.Context, _, _ string, _ model.BookingStatus) (*model.Booking, error) {
			return nil, apperrors.Conflict("Transition from completed to confirmed is not allowed")
		},
	}
	router := newRouter(svc, &mockAssigner{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/status",
		strings.NewReader(`{"status":"confirmed"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error payload: %v", err)
	}
	if resp["code"] != apperrors.CodeConflict {
		t.Errorf("expected CONFLICT code in body, got %v", resp["code"])
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	router := newRouter(&mockBookingService{}, &mockAssigner{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRequestMatch_ReturnsAccepted(t *testing.T) {
	router := newRouter(&mockBookingService{}, &mockAssigner{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/match", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestAssignFallbackTeam(t *testing.T) {
	var received struct{ actor, booking, team string }
	assigner := &mockAssigner{
		assignFunc: func(_ context.Context, actorID, bookingID, teamID string) (*model.Booking, error) {
			received.actor = actorID
			received.booking = bookingID
			received.team = teamID
			now := time.Now().UTC()
			return &model.Booking{
				ID:                  bookingID,
				Status:              model.StatusConfirmed,
				AssignedTeamID:      teamID,
				FallbackEscalatedAt: &now,
			}, nil
		},
	}
	router := newRouter(&mockBookingService{}, assigner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/fallback/assign",
		strings.NewReader(`{"teamId":"t1"}`))
	req.Header.Set("X-Actor-ID", "provider:owner-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if received.actor != "provider:owner-1" || received.booking != "b1" || received.team != "t1" {
		t.Errorf("unexpected assign call: %+v", received)
	}
}

func TestAssignFallbackTeam_MissingTeamID(t *testing.T) {
	router := newRouter(&mockBookingService{}, &mockAssigner{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/fallback/assign",
		strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestAssignFallbackTeam_IneligibleSurfaces422(t *testing.T) {
	assigner := &mockAssigner{
		assignFunc: func(_ context.Context, _, _, _ string) (*model.Booking, error) {
			return nil, apperrors.TeamIneligible("Team does not serve the booking's category", nil)
		},
	}
	router := newRouter(&mockBookingService{}, assigner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/fallback/assign",
		strings.NewReader(`{"teamId":"t1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestListBookings_InvalidMinRetryCount(t *testing.T) {
	router := newRouter(&mockBookingService{}, &mockAssigner{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings?minRetryCount=nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
