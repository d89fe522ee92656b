package plugin

import (
	"context"
	"time"
)

// ImageMeta describes a single image offered by an image source.
type ImageMeta struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Path     string    `json:"path,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
	Size     int64     `json:"size,omitempty"`
	TakenAt  time.Time `json:"taken_at,omitempty"`
	Source   string    `json:"source"`
}

// ImageSource is the contract image-category plugins satisfy.
type ImageSource interface {
	Plugin
	// Images returns the currently known image set.
	Images(ctx context.Context) ([]ImageMeta, error)
	// Image returns metadata for one image, or nil when unknown.
	Image(ctx context.Context, id string) (*ImageMeta, error)
	// ImageData returns the raw bytes of one image, or nil when unknown.
	ImageData(ctx context.Context, id string) ([]byte, error)
	// Scan refreshes the source's view of its backing store and
	// returns the new image set.
	Scan(ctx context.Context) ([]ImageMeta, error)
}

// ImageUploader is the optional upload capability of an image source.
type ImageUploader interface {
	UploadImage(ctx context.Context, data []byte, filename string) (*ImageMeta, error)
}

// ImageDeleter is the optional delete capability of an image source.
type ImageDeleter interface {
	DeleteImage(ctx context.Context, id string) (bool, error)
}

// UploadImage uploads through the source when it supports uploads and
// reports ErrUnsupported otherwise.
func UploadImage(ctx context.Context, src ImageSource, data []byte, filename string) (*ImageMeta, error) {
	if up, ok := src.(ImageUploader); ok {
		return up.UploadImage(ctx, data, filename)
	}
	return nil, ErrUnsupported
}

// DeleteImage deletes through the source when it supports deletion and
// reports false otherwise.
func DeleteImage(ctx context.Context, src ImageSource, id string) (bool, error) {
	if del, ok := src.(ImageDeleter); ok {
		return del.DeleteImage(ctx, id)
	}
	return false, nil
}
