// Package storage provides the object store for message and order
// attachments.
package storage

import "context"

// ObjectStore persists attachment payloads outside the database. Put
// returns the public URL persisted on the attachment reference; Delete
// is best-effort on message removal.
type ObjectStore interface {
	Put(ctx context.Context, filename, mime string, data []byte) (url string, err error)
	Delete(ctx context.Context, url string) error
}
