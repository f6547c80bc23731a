package handler

import (
	"net/http"
	"strconv"

	"ecoaction/internal/apperror"
	"ecoaction/internal/httputil"
	"ecoaction/internal/model"
	"ecoaction/internal/service"
)

type FriendshipHandler struct {
	friendshipService *service.FriendshipService
}

func NewFriendshipHandler(friendshipService *service.FriendshipService) *FriendshipHandler {
	return &FriendshipHandler{friendshipService: friendshipService}
}

// List handles GET /friends?accepted_only=true
func (h *FriendshipHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	acceptedOnly := false
	if raw := r.URL.Query().Get("accepted_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteAppError(w, r, apperror.ValidationFailed("accepted_only", "accepted_only must be true or false"))
			return
		}
		acceptedOnly = v
	}

	friends, err := h.friendshipService.ListFriends(r.Context(), userID, acceptedOnly)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"friends": friends})
}

// ListRequests handles GET /friends/requests
func (h *FriendshipHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	requests, err := h.friendshipService.ListRequests(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// Send handles POST /friends/requests
func (h *FriendshipHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.SendFriendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	f, err := h.friendshipService.SendRequest(r.Context(), userID, req.FriendID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"message":    "Friend request sent",
		"friendship": f,
	})
}

// Accept handles POST /friends/requests/{id}/accept
func (h *FriendshipHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	friendshipID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	f, err := h.friendshipService.Accept(r.Context(), userID, friendshipID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message":    "Friend request accepted",
		"friendship": f,
	})
}

// Deny handles POST /friends/requests/{id}/deny
func (h *FriendshipHandler) Deny(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	friendshipID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.friendshipService.Deny(r.Context(), userID, friendshipID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteMessage(w, "Friend request denied")
}

// Unfriend handles DELETE /friends/{friendID}
func (h *FriendshipHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	friendID, err := pathID(r, "friendID")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.friendshipService.Unfriend(r.Context(), userID, friendID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteMessage(w, "Friend removed")
}
