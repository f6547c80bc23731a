package handler

import (
	"net/http"
	"strconv"
	"strings"

	"ecoaction/internal/apperror"
	"ecoaction/internal/httputil"
	"ecoaction/internal/model"
	"ecoaction/internal/service"
)

type ImageHandler struct {
	imageService  *service.ImageService
	ledgerService *service.LedgerService
}

func NewImageHandler(imageService *service.ImageService, ledgerService *service.LedgerService) *ImageHandler {
	return &ImageHandler{imageService: imageService, ledgerService: ledgerService}
}

// Upload handles POST /images: a multipart photo ("image") plus the
// "action_type" and base "points" it verifies.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	maxFormSize := int64(model.MaxPhotoSizeBytes) + 1024*1024 // allow form overhead
	file, header, err := formFile(w, r, "image", maxFormSize)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	defer file.Close()

	actionType := strings.TrimSpace(r.FormValue("action_type"))
	points, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("points")), 10, 64)
	if err != nil {
		httputil.WriteAppError(w, r, apperror.ValidationFailed("points", "points must be an integer"))
		return
	}

	res, err := h.ledgerService.UploadPhoto(r.Context(), userID, actionType, points, file, header)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"message":       "Photo uploaded",
		"image_id":      res.ImageID,
		"action_id":     res.ActionID,
		"action_points": res.ActionPoints,
	})
}

// Get handles GET /images/{id} and streams the stored bytes.
func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	imageID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	img, err := h.imageService.Fetch(r.Context(), imageID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	writeImage(w, img.Mimetype, img.Data)
}

// Thumbnail handles GET /images/{id}/thumbnail?size=
func (h *ImageHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	imageID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	size, err := queryInt(r, "size", model.ThumbnailSize)
	if err != nil || size <= 0 || size > 1024 {
		httputil.WriteAppError(w, r, apperror.ValidationFailed("size", "size must be between 1 and 1024"))
		return
	}

	thumb, err := h.imageService.Thumbnail(r.Context(), imageID, size)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	writeImage(w, model.ContentTypeJPEG, thumb)
}

// ListForUser handles GET /users/{id}/photos
func (h *ImageHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	images, err := h.imageService.ListForUser(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"photos": images})
}

func writeImage(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
