package model

import (
	"time"
)

// Image is an uploaded photo stored as a blob.
type Image struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Filename   string    `db:"filename" json:"filename"`
	Mimetype   string    `db:"mimetype" json:"mimetype"`
	Data       []byte    `db:"data" json:"-"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// ImageMeta is an image listing row without the payload.
type ImageMeta struct {
	ID         int64     `db:"id" json:"id"`
	Filename   string    `db:"filename" json:"filename"`
	Mimetype   string    `db:"mimetype" json:"mimetype"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}
