package handler

import (
	"net/http"

	"ecoaction/internal/httputil"
	"ecoaction/internal/model"
	"ecoaction/internal/service"
)

type ActionHandler struct {
	ledgerService *service.LedgerService
}

func NewActionHandler(ledgerService *service.LedgerService) *ActionHandler {
	return &ActionHandler{ledgerService: ledgerService}
}

// Log handles POST /actions
func (h *ActionHandler) Log(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.LogActionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	action, err := h.ledgerService.LogAction(r.Context(), userID, req.ActionType, *req.Points, req.Timestamp)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Action logged",
		"action":  action,
	})
}

// Recent handles GET /actions/recent?limit=
func (h *ActionHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", model.DefaultRecentLimit)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	actions, err := h.ledgerService.Recent(r.Context(), limit)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// DailySummary handles GET /users/{id}/activity
func (h *ActionHandler) DailySummary(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	summary, err := h.ledgerService.DailySummary(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"daily":   summary,
	})
}

// Count handles GET /users/{id}/actions/count
func (h *ActionHandler) Count(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	count, err := h.ledgerService.CountForUser(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"count":   count,
	})
}
