package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"ecoaction/internal/apperror"
	"ecoaction/internal/httputil"
	"ecoaction/internal/model"
	"ecoaction/internal/service"
)

type UserHandler struct {
	userService  *service.UserService
	mediaService *service.MediaService
}

func NewUserHandler(userService *service.UserService, mediaService *service.MediaService) *UserHandler {
	return &UserHandler{userService: userService, mediaService: mediaService}
}

// List handles GET /users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

// Get handles GET /users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	profile, err := h.userService.GetUser(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

// ChangeProfile handles PATCH /me
func (h *UserHandler) ChangeProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.ChangeProfileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	profile, err := h.userService.ChangeProfile(r.Context(), userID, req.Username, req.Icon)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated",
		"user":    profile,
	})
}

// UpdatePoints handles PUT /me/points
func (h *UserHandler) UpdatePoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.UpdatePointsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	profile, err := h.userService.UpdatePoints(r.Context(), userID, *req.Points)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Points updated",
		"user":    profile,
	})
}

// UploadAvatar handles POST /me/avatar (multipart field "avatar")
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !h.mediaService.Enabled() {
		httputil.WriteAppError(w, r, apperror.Unavailable("avatar storage is not configured"))
		return
	}

	maxFormSize := int64(model.MaxAvatarSizeBytes) + 1024*1024 // allow form overhead
	file, header, err := formFile(w, r, "avatar", maxFormSize)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	defer file.Close()

	res, err := h.mediaService.UploadAvatar(r.Context(), userID, file, header)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Avatar updated",
		"icon":    res.URL,
	})
}

// Leaderboard handles GET /leaderboard?limit=
func (h *UserHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultLeaderboardLimit)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	entries, err := h.userService.Leaderboard(r.Context(), limit)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

// RegisterDevice handles POST /me/devices
func (h *UserHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.RegisterTokenRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.userService.RegisterDevice(r.Context(), userID, req.Token, req.Platform); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.MessageResponse{Message: "Device registered"})
}

// UnregisterDevice handles DELETE /me/devices
func (h *UserHandler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.UnregisterTokenRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.userService.UnregisterDevice(r.Context(), userID, req.Token); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteMessage(w, "Device removed")
}

// formFile parses a multipart body capped at maxFormSize and returns field.
func formFile(w http.ResponseWriter, r *http.Request, field string, maxFormSize int64) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, apperror.ValidationFailed(field, "Content-Type must be multipart/form-data")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, nil, model.ErrFileTooLarge
		}
		return nil, nil, apperror.ValidationFailed(field, "invalid form data")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, apperror.ValidationFailed(field, field+" file is required")
	}
	return file, header, nil
}
