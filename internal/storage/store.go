// Package storage uploads and fetches objects in a bucket addressed by URI:
// s3://bucket/prefix, gs://bucket/prefix or a local directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrObjectNotFound is returned by Download when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is a bucket rooted at a prefix. Keys are slash-separated and
// relative to that prefix.
type ObjectStore interface {
	// Upload copies the local file to key and returns the object URI.
	Upload(ctx context.Context, localPath, key string) (string, error)
	// Download copies key to localPath, or fails with ErrObjectNotFound.
	Download(ctx context.Context, key, localPath string) error
	Exists(ctx context.Context, key string) (bool, error)
	URI(key string) string
}

// Scheme identifies a storage backend.
type Scheme string

const (
	SchemeS3    Scheme = "s3"
	SchemeGCS   Scheme = "gs"
	SchemeLocal Scheme = "file"
)

// Location is a parsed bucket URI.
type Location struct {
	Scheme Scheme
	Bucket string // bucket name, or the absolute directory for local stores
	Prefix string // key prefix without leading or trailing slash
}

// ParseLocation accepts s3://bucket[/prefix], gs://bucket[/prefix],
// file:///dir or a bare directory path.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, errors.New("empty bucket uri")
	}
	if !strings.Contains(raw, "://") {
		return localLocation(raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse bucket uri %q: %w", raw, err)
	}
	switch Scheme(strings.ToLower(u.Scheme)) {
	case SchemeS3, SchemeGCS:
		if u.Host == "" {
			return Location{}, fmt.Errorf("bucket uri %q has no bucket name", raw)
		}
		return Location{
			Scheme: Scheme(strings.ToLower(u.Scheme)),
			Bucket: u.Host,
			Prefix: strings.Trim(u.Path, "/"),
		}, nil
	case SchemeLocal:
		return localLocation(u.Path)
	default:
		return Location{}, fmt.Errorf("unsupported bucket scheme %q", u.Scheme)
	}
}

func localLocation(dir string) (Location, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Location{}, fmt.Errorf("resolve %s: %w", dir, err)
	}
	return Location{Scheme: SchemeLocal, Bucket: abs}, nil
}

// Key joins the location prefix and key.
func (l Location) Key(key string) string {
	key = strings.TrimLeft(key, "/")
	if l.Prefix == "" {
		return key
	}
	return l.Prefix + "/" + key
}

// URI renders key as a full object URI.
func (l Location) URI(key string) string {
	if l.Scheme == SchemeLocal {
		return "file://" + filepath.ToSlash(filepath.Join(l.Bucket, filepath.FromSlash(key)))
	}
	return string(l.Scheme) + "://" + l.Bucket + "/" + l.Key(key)
}

// Options configures remote backends.
type Options struct {
	Region   string
	Endpoint string // custom S3 endpoint, e.g. MinIO
}

// Open returns the store for bucketURI.
func Open(ctx context.Context, bucketURI string, opts Options) (ObjectStore, error) {
	loc, err := ParseLocation(bucketURI)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case SchemeS3:
		return NewS3Store(ctx, loc, opts)
	case SchemeGCS:
		return openGCS(ctx, loc)
	default:
		return NewLocalStore(loc.Bucket)
	}
}
