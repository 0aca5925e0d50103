package media

import (
	"context"
	"fmt"

	"gatepass/internal/cloudinary"
)

type Config struct {
	Backend string // local, s3 or cloudinary
	Dir     string
	BaseURL string
	S3      S3Config

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

// Open builds the configured storage backend.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.Dir, cfg.BaseURL)
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("media: s3 bucket not configured")
		}
		return NewS3(ctx, cfg.S3)
	case "cloudinary":
		if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
			return nil, fmt.Errorf("media: cloudinary credentials not configured")
		}
		return NewCloudinary(cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)), nil
	default:
		return nil, fmt.Errorf("media: unknown backend %q", cfg.Backend)
	}
}
