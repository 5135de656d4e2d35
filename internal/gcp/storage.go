package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/attachmentflow/internal/blob"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Ensure GCSStore implements the interface.
var _ blob.Store = (*GCSStore)(nil)

const (
	uploadMaxRetries = 4
	uploadTimeout    = 50 * time.Second
)

// GCSStore is the blob.Store backed by a single Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a storage client bound to bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a GCS store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) handle() *storage.BucketHandle {
	return s.client.Bucket(s.bucket)
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.handle().Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", s.bucket, prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (s *GCSStore) Get(ctx context.Context, name string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Download(ctx, name, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Download streams an object into w.
func (s *GCSStore) Download(ctx context.Context, name string, w io.Writer) error {
	gcsReader, err := s.handle().Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: gs://%s/%s", blob.ErrNotFound, s.bucket, name)
		}
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", s.bucket, name, err)
	}
	defer gcsReader.Close()
	if _, err := io.Copy(w, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object gs://%s/%s: %w", s.bucket, name, err)
	}
	return nil
}

// Put writes an object, retrying with exponential backoff.
func (s *GCSStore) Put(ctx context.Context, name string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to buffer upload for %s: %w", name, err)
	}

	backoff := 1 * time.Second
	var lastErr error
	for i := 0; i < uploadMaxRetries; i++ {
		err := s.write(ctx, s.handle().Object(name), data, contentType)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", name,
			"attempt", i+1,
			"maxRetries", uploadMaxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", name, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", name, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", name, lastErr)
}

// PutIfAbsent writes an object only if it doesn't already exist. A failed
// precondition is reported as blob.ErrAlreadyExists.
func (s *GCSStore) PutIfAbsent(ctx context.Context, name string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to buffer upload for %s: %w", name, err)
	}
	obj := s.handle().Object(name).If(storage.Conditions{DoesNotExist: true})
	if err := s.write(ctx, obj, data, contentType); err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("%w: gs://%s/%s", blob.ErrAlreadyExists, s.bucket, name)
		}
		return err
	}
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, name string) error {
	if err := s.handle().Object(name).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: gs://%s/%s", blob.ErrNotFound, s.bucket, name)
		}
		return fmt.Errorf("failed to delete gs://%s/%s: %w", s.bucket, name, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) write(ctx context.Context, obj *storage.ObjectHandle, data []byte, contentType string) error {
	writeCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	gcsWriter := obj.NewWriter(writeCtx)
	gcsWriter.ContentType = contentType

	if _, err := io.Copy(gcsWriter, bytes.NewReader(data)); err != nil {
		_ = gcsWriter.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := gcsWriter.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}
