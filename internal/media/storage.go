// Package media stores visitor images and renders QR codes and visitor cards.
package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("media object not found")
	ErrUnsupportedImage = errors.New("image must be a jpg, jpeg, png or webp file")
	ErrInvalidKey       = errors.New("invalid media key")
)

// Object describes a stored blob.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Storage is the blob store behind profile photos, face captures, QR codes
// and visitor cards.
type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// ValidateImageName checks the upload's extension and returns it normalized,
// along with its content type.
func ValidateImageName(name string) (string, string, error) {
	ext := strings.ToLower(path.Ext(name))
	ct, ok := imageTypes[ext]
	if !ok {
		return "", "", ErrUnsupportedImage
	}
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return ext, ct, nil
}

// NewKey returns a unique date-partitioned key such as
// "faces/2024/5/1/<uuid>.jpg".
func NewKey(prefix, ext string) string {
	d := time.Now()
	return fmt.Sprintf("%s/%d/%d/%d/%s%s", prefix, d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
