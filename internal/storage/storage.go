package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"listingfix/internal/infra"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("storage: object not found")

// ImageStore holds original and candidate image bytes.
type ImageStore interface {
	Write(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// Config selects and configures a driver.
type Config struct {
	Driver string

	Path string

	MinIO S3Config

	AzureAccount   string
	AzureKey       string
	AzureContainer string
}

// New builds the ImageStore named by cfg.Driver (fs, minio or azure).
func New(cfg Config) (ImageStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "fs", "filesystem":
		return NewFileStore(cfg.Path)
	case "minio", "s3":
		return NewS3Store(cfg.MinIO)
	case "azure", "azblob":
		return NewAzureStore(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

// AssetKey builds the object key for one variant of an asset image.
func AssetKey(assetID, variant, contentType string) string {
	return "assets/" + assetID + "/" + variant + Extension(contentType)
}

// Extension returns the file extension for an image MIME type.
func Extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// FromConfig maps the application configuration onto a driver Config.
func FromConfig(cfg *infra.Config) Config {
	return Config{
		Driver: cfg.StorageDriver,
		Path:   cfg.StoragePath,
		MinIO: S3Config{
			Endpoint:  cfg.MinIOEndpoint,
			Region:    cfg.MinIORegion,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		},
		AzureAccount:   cfg.AzureAccount,
		AzureKey:       cfg.AzureKey,
		AzureContainer: cfg.AzureContainer,
	}
}
