package storage

import "context"

// ObjectStorage persists uploaded document bytes and returns them later by path.
type ObjectStorage interface {
	Save(ctx context.Context, path string, data []byte, contentType string) error
	Load(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}
