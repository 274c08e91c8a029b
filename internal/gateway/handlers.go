package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calderaops/meterbill/internal/metering"
	"github.com/calderaops/meterbill/internal/wage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Handler exposes the metering core and the wage calculator over JSON/HTTP.
// This is the surface the UI collaborator talks to; toasts and banners react
// to the typed error codes returned here.
type Handler struct {
	app *metering.App
}

func NewHandler(app *metering.App) *Handler {
	return &Handler{app: app}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, metering.ErrResourceBusy):
		writeJSON(w, http.StatusConflict, errorResponse{"resource_busy", err.Error()})
	case errors.Is(err, metering.ErrInvalidDuration):
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid_duration", err.Error()})
	case errors.Is(err, metering.ErrUnknownSession):
		writeJSON(w, http.StatusNotFound, errorResponse{"unknown_session", err.Error()})
	case errors.Is(err, metering.ErrUnknownResource):
		writeJSON(w, http.StatusNotFound, errorResponse{"unknown_resource", err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, errorResponse{"backend_error", err.Error()})
	}
}

func (h *Handler) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	var req metering.StartTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"bad_request", "invalid JSON body"})
		return
	}

	sessionID, err := h.app.StartTimer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID.String()})
}

func (h *Handler) handleListTimers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.ListSessionViews())
}

func (h *Handler) handleGetTimer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"bad_request", "invalid session id"})
		return
	}
	view, err := h.app.GetSessionView(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleStopTimer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"bad_request", "invalid session id"})
		return
	}
	final, err := h.app.StopTimer(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, final)
}

func (h *Handler) handlePauseTimer(w http.ResponseWriter, r *http.Request) {
	h.handlePauseResume(w, r, h.app.PauseTimer)
}

func (h *Handler) handleResumeTimer(w http.ResponseWriter, r *http.Request) {
	h.handlePauseResume(w, r, h.app.ResumeTimer)
}

func (h *Handler) handlePauseResume(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"bad_request", "invalid session id"})
		return
	}
	if err := op(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type computeWageRequest struct {
	Revenue decimal.Decimal `json:"revenue"`
	Rate    decimal.Decimal `json:"rate"`
	Cap     decimal.Decimal `json:"cap"`
}

func (h *Handler) handleComputeWage(w http.ResponseWriter, r *http.Request) {
	var req computeWageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"bad_request", "invalid JSON body"})
		return
	}
	result, err := wage.Compute(req.Revenue, req.Rate, req.Cap)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid_input", err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleComputePayout(w http.ResponseWriter, r *http.Request) {
	var req wage.PayoutInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"bad_request", "invalid JSON body"})
		return
	}
	payout, err := wage.ComputePayout(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid_input", err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, payout)
}
