// Package storage defines the export destinations for audit-log CSV files.
//
// Backends implement Storage and register with the factory from an init()
// function in their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.ExportConfig) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The command packages import each backend with a blank import to trigger init().
//
// An Upload either stores the complete object or nothing: callers never see a
// truncated export at the destination.
package storage

import (
	"context"
	"io"
	"strings"
)

// Storage defines the interface for all export backends
type Storage interface {
	// Upload stores the content of reader at path, replacing any existing object.
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Exists checks if an object exists at path
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the object at path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// Location describes where path is stored, for user-facing output
	// (a file path, s3://, gs:// or https:// URL).
	Location(path string) string
}

// UploadResult contains information about an uploaded file
type UploadResult struct {
	// Path is the storage path where the file was stored
	Path string

	// Size is the file size in bytes
	Size int64

	// Checksum is the SHA256 hash of the file contents
	Checksum string
}

// WithPrefix returns a Storage that places every path under prefix.
func WithPrefix(s Storage, prefix string) Storage {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return s
	}
	return &prefixed{inner: s, prefix: prefix + "/"}
}

type prefixed struct {
	inner  Storage
	prefix string
}

func (p *prefixed) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error) {
	return p.inner.Upload(ctx, p.prefix+path, reader, size)
}

func (p *prefixed) Exists(ctx context.Context, path string) (bool, error) {
	return p.inner.Exists(ctx, p.prefix+path)
}

func (p *prefixed) Delete(ctx context.Context, path string) error {
	return p.inner.Delete(ctx, p.prefix+path)
}

func (p *prefixed) Location(path string) string {
	return p.inner.Location(p.prefix + path)
}
