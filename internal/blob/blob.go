// Package blob defines the object store the pipeline stages share.
package blob

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when the named object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAlreadyExists is returned by PutIfAbsent when the name is taken.
	ErrAlreadyExists = errors.New("object already exists")
)

// Store is the subset of object storage every stage needs. Names are full
// object keys; listing is by plain string prefix and returns names in
// lexicographic order.
type Store interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, name string) ([]byte, error)
	Download(ctx context.Context, name string, w io.Writer) error
	Put(ctx context.Context, name string, r io.Reader, contentType string) error
	PutIfAbsent(ctx context.Context, name string, r io.Reader, contentType string) error
	Delete(ctx context.Context, name string) error
}
