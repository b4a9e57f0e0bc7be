// Package local stores session images as files under a base directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vbonduro/pillpal/internal/imagestore"
)

// ErrInvalidKey is returned for keys that resolve outside the base directory.
var ErrInvalidKey = errors.New("invalid image key")

var extByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Store struct {
	basePath string
}

func New(basePath string) (*Store, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid image directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &Store{basePath: abs}, nil
}

// Save writes r to a temporary file and renames it into place, so a
// concurrent Get never sees a partial image.
func (s *Store) Save(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	ext, ok := extByMIME[mimeType]
	if !ok {
		ext = ".jpg"
	}
	key := prefix + "_" + uuid.NewString() + ext
	dst, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return key, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", imagestore.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	return f, mimeForPath(path), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return imagestore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// resolve maps key to a file directly inside the base directory.
func (s *Store) resolve(key string) (string, error) {
	path := filepath.Join(s.basePath, key)
	if filepath.Dir(path) != s.basePath {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path, nil
}

func mimeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	for mimeType, e := range extByMIME {
		if e == ext {
			return mimeType
		}
	}
	return "image/jpeg"
}
