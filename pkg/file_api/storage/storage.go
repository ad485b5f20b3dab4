package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Delete when the ref has no backing blob.
// Callers decide whether that is a failure: the reaper treats it as success.
var ErrNotFound = errors.New("blob not found")

// Blob is the stored payload plus the metadata needed to serve it back.
type Blob struct {
	Data        []byte
	ContentType string
	DisplayName string
}

// BlobStore is the byte storage shared by the registry, invoker, token service
// and reaper. Refs are opaque; clients never see them directly.
type BlobStore interface {
	Put(ctx context.Context, displayName, contentType string, data []byte) (ref string, err error)
	Get(ctx context.Context, ref string) (*Blob, error)
	Delete(ctx context.Context, ref string) error
	Exists(ctx context.Context, ref string) (bool, error)
}
