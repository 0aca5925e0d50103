package media

import (
	"context"
	"errors"
	"path"
	"strings"

	"gatepass/internal/cloudinary"
)

type cloudinaryAPI interface {
	Upload(ctx context.Context, data []byte, filename, publicID string) (*cloudinary.UploadResult, error)
	Fetch(ctx context.Context, publicID, format string) ([]byte, error)
	Destroy(ctx context.Context, publicID string) error
}

// Cloudinary adapts the Cloudinary client to Storage. The stored key is the
// asset's public id with its format appended.
type Cloudinary struct {
	client cloudinaryAPI
}

func NewCloudinary(c *cloudinary.Client) *Cloudinary {
	return &Cloudinary{client: c}
}

func (c *Cloudinary) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	if err := checkKey(key); err != nil {
		return Object{}, err
	}
	ext := path.Ext(key)
	res, err := c.client.Upload(ctx, data, path.Base(key), strings.TrimSuffix(key, ext))
	if err != nil {
		return Object{}, err
	}
	stored := res.PublicID
	if res.Format != "" {
		stored += "." + res.Format
	}
	return Object{Key: stored, URL: res.SecureURL, ContentType: contentType, Size: len(data)}, nil
}

func (c *Cloudinary) Get(ctx context.Context, key string) ([]byte, error) {
	ext := path.Ext(key)
	data, err := c.client.Fetch(ctx, strings.TrimSuffix(key, ext), strings.TrimPrefix(ext, "."))
	if errors.Is(err, cloudinary.ErrNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func (c *Cloudinary) Delete(ctx context.Context, key string) error {
	return c.client.Destroy(ctx, strings.TrimSuffix(key, path.Ext(key)))
}
