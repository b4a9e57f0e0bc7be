// Package imagestore holds the image a session has selected so that the
// preview and result pages can serve it back.
package imagestore

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("image not found")

type Store interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (key string, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}
