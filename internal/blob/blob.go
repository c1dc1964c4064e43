package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written or was deleted.
var ErrNotFound = errors.New("blob: key not found")

// Store: хранилище "ключ -> JSON-blob" с явными read/write/delete.
// Гостевые отчёты живут в двух слотах на токен (reports + expiry).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
