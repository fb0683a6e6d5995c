package photostore

import (
	"context"
	"io"
)

// PhotoStore persists analyzed meal photos. Keys are opaque to callers and
// stored on the meal record.
type PhotoStore interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (storageKey string, err error)
	Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storageKey string) error
}
