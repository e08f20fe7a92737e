package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"saubio/internal/bookings/service"
	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	httputil "saubio/pkg/http"
	"saubio/pkg/middleware"
	"saubio/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// FallbackAssigner is implemented by the fallback escalator; the assign
// endpoint lives on the booking resource.
type FallbackAssigner interface {
	AssignTeam(ctx context.Context, actorID, bookingID, teamID string) (*model.Booking, error)
}

type BookingHandler struct {
	service  service.BookingService
	fallback FallbackAssigner
	cfg      *config.Config
}

func NewBookingHandler(svc service.BookingService, fallback FallbackAssigner, cfg *config.Config) *BookingHandler {
	return &BookingHandler{service: svc, fallback: fallback, cfg: cfg}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.CreateBooking)
	router.GET("/api/v1/bookings", h.ListBookings)
	router.GET("/api/v1/bookings/:id", h.GetBooking)
	router.PATCH("/api/v1/bookings/:id", h.UpdateBooking)
	router.POST("/api/v1/bookings/:id/status", h.TransitionBooking)
	router.POST("/api/v1/bookings/:id/cancel", h.CancelBooking)
	router.POST("/api/v1/bookings/:id/match", h.RequestMatch)
	router.GET("/api/v1/bookings/:id/audit", h.GetAuditTrail)
	router.POST("/api/v1/bookings/:id/fallback/assign", h.AssignFallbackTeam)
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var booking model.Booking
	if err := json.NewDecoder(r.Body).Decode(&booking); err != nil {
		h.writeServiceError(w, r, apperrors.InvalidInput("Invalid JSON request body"))
		return
	}

	created, err := h.service.Create(r.Context(), h.actor(r), &booking)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if writeErr := httputil.WriteCreated(w, created); writeErr != nil {
		h.cfg.Log.Error("Failed to write booking response", "error", writeErr)
	}
}

func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	filter, err := h.extractFilter(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	query := r.URL.Query()
	if clientID := query.Get("clientId"); clientID != "" {
		bookings, total, err := h.service.FindByClient(r.Context(), clientID, limit, offset)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if writeErr := httputil.WritePaginated(w, bookings, total, limit, offset); writeErr != nil {
			h.cfg.Log.Error("Failed to write booking list response", "error", writeErr)
		}
		return
	}

	bookings, total, err := h.service.List(r.Context(), filter, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if writeErr := httputil.WritePaginated(w, bookings, total, limit, offset); writeErr != nil {
		h.cfg.Log.Error("Failed to write booking list response", "error", writeErr)
	}
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.FindByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if writeErr := httputil.WriteSuccess(w, booking); writeErr != nil {
		h.cfg.Log.Error("Failed to write booking response", "error", writeErr)
	}
}

func (h *BookingHandler) UpdateBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var update model.BookingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeServiceError(w, r, apperrors.InvalidInput("Invalid JSON request body"))
		return
	}

	booking, err := h.service.Update(r.Context(), h.actor(r), ps.ByName("id"), &update)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if writeErr := httputil.WriteSuccess(w, booking); writeErr != nil {
		h.cfg.Log.Error("Failed to write booking response", "error", writeErr)
	}
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (h *BookingHandler) TransitionBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeServiceError(w, r, apperrors.InvalidInput("Invalid JSON request body"))
		return
	}
	if req.Status == "" {
		h.writeServiceError(w, r, apperrors.InvalidInput("Target status is required"))
		return
	}

	booking, err := h.service.Transition(r.Context(), h.actor(r), ps.ByName("id"), model.BookingStatus(req.Status))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if writeErr := httputil.WriteSuccess(w, booking); writeErr != nil {
		h.cfg.Log.Error("Failed to write booking response", "error", writeErr)
	}
}

func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.Cancel(r.Context(), h.actor(r), ps.ByName("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if writeErr := httputil.WriteSuccess(w, booking); writeErr != nil {
		h.cfg.Log.Error("Failed to write booking response", "error", writeErr)
	}
}

func (h *BookingHandler) RequestMatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.RequestMatch(r.Context(), h.actor(r), ps.ByName("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *BookingHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	entries, err := h.service.AuditTrail(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if writeErr := httputil.WriteSuccess(w, entries); writeErr != nil {
		h.cfg.Log.Error("Failed to write audit response", "error", writeErr)
	}
}

type fallbackAssignRequest struct {
	TeamID string `json:"teamId"`
}

func (h *BookingHandler) AssignFallbackTeam(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req fallbackAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeServiceError(w, r, apperrors.InvalidInput("Invalid JSON request body"))
		return
	}
	if req.TeamID == "" {
		h.writeServiceError(w, r, apperrors.InvalidInput("Team ID is required"))
		return
	}

	booking, err := h.fallback.AssignTeam(r.Context(), h.actor(r), ps.ByName("id"), req.TeamID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if writeErr := httputil.WriteSuccess(w, booking); writeErr != nil {
		h.cfg.Log.Error("Failed to write booking response", "error", writeErr)
	}
}

func (h *BookingHandler) extractFilter(r *http.Request) (model.BookingFilter, error) {
	query := r.URL.Query()
	filter := model.BookingFilter{
		Status: model.BookingStatus(query.Get("status")),
		Mode:   model.BookingMode(query.Get("mode")),
	}

	fallbackRequested, err := httputil.ExtractBoolFlag(r, "fallbackRequested")
	if err != nil {
		return filter, err
	}
	filter.FallbackRequested = fallbackRequested

	fallbackEscalated, err := httputil.ExtractBoolFlag(r, "fallbackEscalated")
	if err != nil {
		return filter, err
	}
	filter.FallbackEscalated = fallbackEscalated

	if s := query.Get("minRetryCount"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return filter, apperrors.InvalidInput("invalid minRetryCount parameter: " + s)
		}
		filter.MinRetryCount = v
	}
	return filter, nil
}

// actor derives the caller identity from the request; identity always
// arrives as an explicit header, never ambient state.
func (h *BookingHandler) actor(r *http.Request) string {
	if actor := r.Header.Get("X-Actor-ID"); actor != "" {
		return actor
	}
	return "system:api"
}

func (h *BookingHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.AsAppError(err)

	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.cfg.Log.Error("Booking request failed",
			"request_id", middleware.RequestID(r.Context()),
			"error", err,
		)
	}

	if writeErr := httputil.WriteError(w, appErr); writeErr != nil {
		h.cfg.Log.Error("Failed to write error response", "error", writeErr)
	}
}
