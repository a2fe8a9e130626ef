package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

type storedBlob struct {
	object  Object
	content []byte
}

// InMemoryStore is a thread-safe Store for tests and local demos. DeleteErr,
// when set, is returned by Delete to simulate a failing backend.
type InMemoryStore struct {
	mu        sync.RWMutex
	blobs     map[string]*storedBlob
	maxSize   int64
	DeleteErr error
}

func NewInMemoryStore(maxSize int64) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &InMemoryStore{blobs: make(map[string]*storedBlob), maxSize: maxSize}
}

func (s *InMemoryStore) Save(_ context.Context, obj Object, content io.Reader) (*Object, error) {
	if obj.FileName == "" {
		return nil, ErrMissingFileName
	}

	data, err := io.ReadAll(io.LimitReader(content, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, ErrFileTooLarge
	}

	now := time.Now().UTC()
	obj.Key = objectKey(obj.FileName, now, uuid.NewString()[:8])
	obj.Size = int64(len(data))
	obj.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	obj.CreatedAt = now

	s.mu.Lock()
	s.blobs[obj.Key] = &storedBlob{object: obj, content: data}
	s.mu.Unlock()

	out := obj
	return &out, nil
}

func (s *InMemoryStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(blob.content)), nil
}

func (s *InMemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len reports how many blobs are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
