// Package storage archives generated reports to object storage.
package storage

import (
	"context"
	"io"
)

// Archive stores immutable report objects.
type Archive interface {
	// Put stores the object at key.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// Exists reports whether an object is already stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns a human-facing location for key.
	URL(key string) string
}

// Config selects and configures the archive backend.
type Config struct {
	Backend     string // "s3" or "local"
	LocalPath   string
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// New builds the archive selected by cfg.Backend.
func New(cfg Config) (Archive, error) {
	if cfg.Backend == "s3" {
		return NewS3Archive(cfg)
	}
	return NewLocalArchive(cfg.LocalPath)
}
