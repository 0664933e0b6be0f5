// Package storage abstracts where scan exports are read from and where artifacts are written to.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
)

// BlobStore defines the interface for abstract storage backends.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Location is a parsed storage address.
type Location struct {
	Bucket string // empty for local paths
	Prefix string
}

// IsS3 reports whether the address points at an S3 bucket.
func IsS3(addr string) bool {
	return strings.HasPrefix(addr, "s3://")
}

// ParseS3URL splits "s3://bucket/prefix" into its parts.
func ParseS3URL(addr string) (Location, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return Location{}, fmt.Errorf("invalid s3 url %q: %w", addr, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return Location{}, fmt.Errorf("invalid s3 url %q: expected s3://bucket/prefix", addr)
	}
	return Location{Bucket: u.Host, Prefix: strings.TrimPrefix(u.Path, "/")}, nil
}

// Open returns a store for the address together with the key prefix inside it.
// Local paths are rooted at the path itself.
func Open(ctx context.Context, addr string) (BlobStore, string, error) {
	if !IsS3(addr) {
		return NewLocalStore(addr), "", nil
	}

	loc, err := ParseS3URL(addr)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewS3Store(cfg, loc.Bucket), loc.Prefix, nil
}
