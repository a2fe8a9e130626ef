package blobstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskStore keeps files in a single directory on the local filesystem.
type DiskStore struct {
	dir     string
	maxSize int64
}

func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, maxSize: maxSize}, nil
}

// Save streams content into a new file. A partial file is removed when the
// size limit is exceeded or the copy fails.
func (s *DiskStore) Save(_ context.Context, obj Object, content io.Reader) (*Object, error) {
	if obj.FileName == "" {
		return nil, ErrMissingFileName
	}

	now := time.Now().UTC()
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return nil, fmt.Errorf("generate file suffix: %w", err)
	}
	key := objectKey(obj.FileName, now, hex.EncodeToString(suffix))
	path := filepath.Join(s.dir, key)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", key, err)
	}

	h := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(f, h), io.LimitReader(content, s.maxSize+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		os.Remove(path)
		return nil, fmt.Errorf("write %s: %w", key, copyErr)
	case closeErr != nil:
		os.Remove(path)
		return nil, fmt.Errorf("close %s: %w", key, closeErr)
	case n > s.maxSize:
		os.Remove(path)
		return nil, ErrFileTooLarge
	}

	obj.Key = key
	obj.Size = n
	obj.Hash = hex.EncodeToString(h.Sum(nil))
	obj.CreatedAt = now
	return &obj, nil
}

func (s *DiskStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

func (s *DiskStore) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *DiskStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// path resolves key inside the store directory and rejects traversal.
func (s *DiskStore) path(key string) (string, error) {
	clean := filepath.Base(key)
	if key == "" || clean != key || strings.HasPrefix(clean, ".") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}
