package model

import (
	"errors"
	"slices"
)

// Upload limits. Photos back an action, avatars replace the profile icon.
const (
	MaxPhotoSizeBytes  = 10 << 20
	MaxAvatarSizeBytes = 5 << 20

	ThumbnailSize = 200
	AvatarWidth   = 200
	AvatarHeight  = 200
)

// Avatar objects live under avatars/{user_id}/{uuid}.jpg and never change
// once written, so they can be cached for a year.
const (
	AvatarFolder       = "avatars"
	AvatarExt          = ".jpg"
	AvatarCacheControl = "public, max-age=31536000"
)

const ContentTypeJPEG = "image/jpeg"

// UploadImageTypes lists the content types accepted for photos and avatars.
var UploadImageTypes = []string{ContentTypeJPEG, "image/png", "image/gif", "image/webp"}

const (
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeInvalidImageType = "INVALID_IMAGE_TYPE"
)

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrInvalidImageType = errors.New("invalid image type")
)

// UploadResult is where an object landed in the bucket.
type UploadResult struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func IsAllowedImageType(contentType string) bool {
	return slices.Contains(UploadImageTypes, contentType)
}
