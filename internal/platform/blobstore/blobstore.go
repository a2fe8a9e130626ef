// Package blobstore stores uploaded analysis files. It defines the Store
// contract, a disk implementation used in deployments and an in-memory
// implementation for tests.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("invalid file type, only PDF, JPG, PNG and DICOM files are allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// DefaultMaxFileSize is the upload limit when none is configured (10 MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes lists the accepted analysis file MIME types.
var AllowedContentTypes = map[string]bool{
	"application/pdf":   true,
	"image/jpeg":        true,
	"image/jpg":         true,
	"image/png":         true,
	"application/dicom": true,
	"image/dicom":       true,
}

// Object describes a stored file.
type Object struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the contract for file storage backends.
type Store interface {
	Save(ctx context.Context, obj Object, content io.Reader) (*Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// ValidateUpload checks name, type and declared size before any bytes are stored.
func ValidateUpload(fileName, contentType string, size, maxSize int64) error {
	if strings.TrimSpace(fileName) == "" {
		return ErrMissingFileName
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if !AllowedContentTypes[mediaType] {
		return ErrInvalidContentType
	}
	if maxSize > 0 && size > maxSize {
		return ErrFileTooLarge
	}
	return nil
}

// FormatSize renders a byte count the way analyses display it, e.g. "2.4 MB".
func FormatSize(size int64) string {
	return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
}

// objectKey builds "analysis-<unix-ms>-<suffix><ext>" from the original name.
func objectKey(fileName string, now time.Time, suffix string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(fileName)))
	return fmt.Sprintf("analysis-%d-%s%s", now.UnixMilli(), suffix, ext)
}
