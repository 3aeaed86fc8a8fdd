package storage

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// StubObjectStorage keeps objects in memory and hands out fake download
// URLs. It is used when no object storage is configured.
type StubObjectStorage struct {
	// BaseURL prefixes generated download URLs
	BaseURL string

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewStubObjectStorage creates a new StubObjectStorage
func NewStubObjectStorage() *StubObjectStorage {
	return &StubObjectStorage{
		BaseURL: "https://storage.example.com",
		objects: make(map[string][]byte),
	}
}

// Upload keeps a copy of data in memory.
func (s *StubObjectStorage) Upload(_ context.Context, name string, data []byte, _ string) error {
	if name == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	s.objects[name] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

// GenerateDownloadURL returns a URL under BaseURL.
func (s *StubObjectStorage) GenerateDownloadURL(_ context.Context, name string, expiresIn time.Duration) (string, time.Time, error) {
	if name == "" {
		return "", time.Time{}, ErrEmptyKey
	}
	if expiresIn <= 0 {
		expiresIn = defaultPresignExpiration
	}
	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/download/" + url.PathEscape(name) + "?expires=" + url.QueryEscape(expiresAt.Format(time.RFC3339)), expiresAt, nil
}

// DeleteObject forgets the object.
func (s *StubObjectStorage) DeleteObject(_ context.Context, name string) error {
	if name == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	delete(s.objects, name)
	s.mu.Unlock()
	return nil
}

// Object returns a stored object.
func (s *StubObjectStorage) Object(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[name]
	return data, ok
}
