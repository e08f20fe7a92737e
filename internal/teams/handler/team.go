package handler

import (
	"net/http"
	"time"

	"saubio/internal/teams/service"
	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	httputil "saubio/pkg/http"
	"saubio/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type TeamHandler struct {
	service service.TeamService
	cfg     *config.Config
}

func NewTeamHandler(svc service.TeamService, cfg *config.Config) *TeamHandler {
	return &TeamHandler{service: svc, cfg: cfg}
}

func (h *TeamHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/admin/providers/teams/:id/plan", h.GetPlan)
}

func (h *TeamHandler) GetPlan(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	teamID := ps.ByName("id")
	query := r.URL.Query()

	start, err := parseDay(query.Get("start"))
	if err != nil {
		h.writeServiceError(w, r, apperrors.InvalidInput("Invalid start parameter, expected YYYY-MM-DD"))
		return
	}
	end, err := parseDay(query.Get("end"))
	if err != nil {
		h.writeServiceError(w, r, apperrors.InvalidInput("Invalid end parameter, expected YYYY-MM-DD"))
		return
	}

	plan, err := h.service.Plan(r.Context(), teamID, start, end)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if writeErr := httputil.WriteSuccess(w, plan); writeErr != nil {
		h.cfg.Log.Error("Failed to write plan response", "error", writeErr)
	}
}

func parseDay(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func (h *TeamHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.AsAppError(err)

	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.cfg.Log.Error("Team request failed",
			"request_id", middleware.RequestID(r.Context()),
			"error", err,
		)
	}

	if writeErr := httputil.WriteError(w, appErr); writeErr != nil {
		h.cfg.Log.Error("Failed to write error response", "error", writeErr)
	}
}
