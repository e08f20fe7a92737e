package handler

import (
	"encoding/json"
	"net/http"

	"saubio/internal/locks/service"
	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	httputil "saubio/pkg/http"
	"saubio/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type LockHandler struct {
	service service.LockService
	cfg     *config.Config
}

func NewLockHandler(svc service.LockService, cfg *config.Config) *LockHandler {
	return &LockHandler{service: svc, cfg: cfg}
}

func (h *LockHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/bookings/:id/locks", h.ListLocks)
	router.POST("/api/v1/bookings/:id/locks/confirm", h.ConfirmLocks)
	router.POST("/api/v1/bookings/:id/locks/release", h.ReleaseLocks)
}

func (h *LockHandler) ListLocks(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookingID := ps.ByName("id")

	locks, err := h.service.ListForBooking(r.Context(), bookingID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if writeErr := httputil.WriteSuccess(w, locks); writeErr != nil {
		h.cfg.Log.Error("Failed to write lock list response", "error", writeErr)
	}
}

type lockSelectionRequest struct {
	LockIDs []string `json:"lockIds"`
}

func (h *LockHandler) ConfirmLocks(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookingID := ps.ByName("id")

	req, err := h.decodeSelection(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	lockIDs, err := h.resolveSelection(r, bookingID, req.LockIDs, true)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	confirmed := make([]any, 0, len(lockIDs))
	for _, lockID := range lockIDs {
		lock, err := h.service.Confirm(r.Context(), h.actor(r), lockID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		confirmed = append(confirmed, lock)
	}

	if writeErr := httputil.WriteSuccess(w, confirmed); writeErr != nil {
		h.cfg.Log.Error("Failed to write confirm response", "error", writeErr)
	}
}

func (h *LockHandler) ReleaseLocks(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookingID := ps.ByName("id")

	req, err := h.decodeSelection(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if len(req.LockIDs) == 0 {
		released, err := h.service.ReleaseForBooking(r.Context(), h.actor(r), bookingID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if writeErr := httputil.WriteSuccess(w, released); writeErr != nil {
			h.cfg.Log.Error("Failed to write release response", "error", writeErr)
		}
		return
	}

	lockIDs, err := h.resolveSelection(r, bookingID, req.LockIDs, false)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	released := make([]any, 0, len(lockIDs))
	for _, lockID := range lockIDs {
		lock, err := h.service.Release(r.Context(), h.actor(r), lockID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		released = append(released, lock)
	}

	if writeErr := httputil.WriteSuccess(w, released); writeErr != nil {
		h.cfg.Log.Error("Failed to write release response", "error", writeErr)
	}
}

// resolveSelection expands an empty selection to every active lock on the
// booking and rejects any explicit lock id that belongs to a different
// booking.
func (h *LockHandler) resolveSelection(r *http.Request, bookingID string, lockIDs []string, activeOnly bool) ([]string, error) {
	owned, err := h.service.ListForBooking(r.Context(), bookingID)
	if err != nil {
		return nil, err
	}

	if len(lockIDs) == 0 {
		for _, l := range owned {
			if !activeOnly || l.Status.Active() {
				lockIDs = append(lockIDs, l.ID)
			}
		}
		return lockIDs, nil
	}

	ownedIDs := make(map[string]bool, len(owned))
	for _, l := range owned {
		ownedIDs[l.ID] = true
	}
	for _, lockID := range lockIDs {
		if !ownedIDs[lockID] {
			return nil, apperrors.InvalidInput("Lock does not belong to the booking").WithDetails(map[string]any{
				"lock_id":    lockID,
				"booking_id": bookingID,
			})
		}
	}
	return lockIDs, nil
}

func (h *LockHandler) decodeSelection(r *http.Request) (*lockSelectionRequest, error) {
	req := &lockSelectionRequest{}
	if r.Body == nil || r.ContentLength == 0 {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return nil, apperrors.InvalidInput("Invalid JSON request body")
	}
	return req, nil
}

func (h *LockHandler) actor(r *http.Request) string {
	if actor := r.Header.Get("X-Actor-ID"); actor != "" {
		return actor
	}
	return "system:api"
}

func (h *LockHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.AsAppError(err)

	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.cfg.Log.Error("Lock request failed",
			"request_id", middleware.RequestID(r.Context()),
			"error", err,
		)
	}

	if writeErr := httputil.WriteError(w, appErr); writeErr != nil {
		h.cfg.Log.Error("Failed to write error response", "error", writeErr)
	}
}
