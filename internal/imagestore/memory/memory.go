// Package memory keeps session images in process memory. Images are lost on
// restart.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/vbonduro/pillpal/internal/imagestore"
)

type entry struct {
	data     []byte
	mimeType string
}

type Store struct {
	mu     sync.RWMutex
	images map[string]entry
}

func New() *Store {
	return &Store{images: make(map[string]entry)}
}

func (s *Store) Save(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	key := prefix + "_" + uuid.NewString()

	s.mu.Lock()
	s.images[key] = entry{data: data, mimeType: mimeType}
	s.mu.Unlock()
	return key, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	e, ok := s.images[key]
	s.mu.RUnlock()
	if !ok {
		return nil, "", imagestore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(e.data)), e.mimeType, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[key]; !ok {
		return imagestore.ErrNotFound
	}
	delete(s.images, key)
	return nil
}

// Len reports how many images are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}
