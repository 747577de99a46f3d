package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("gcs: object not found")

// Store wraps one bucket with the small object surface the intake
// pipeline needs. It assumes Application Default Credentials are
// configured.
type Store struct {
	client *storage.Client
	bucket string
}

// NewStore creates a store for the given bucket.
func NewStore(ctx context.Context, bucket string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStore: create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get downloads the object bytes, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: reading %s/%s: %w", s.bucket, key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Get: reading bytes: %w", err)
	}
	return data, nil
}

// Put uploads the object, overwriting any existing content.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Put: writing %s/%s: %w", s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Put: finalizing %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Exists reports whether the object key is taken.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("Exists: checking %s/%s: %w", s.bucket, key, err)
	}
	return true, nil
}

// Tag records a status marker on the object metadata.
func (s *Store) Tag(ctx context.Context, key, status string) error {
	_, err := s.client.Bucket(s.bucket).Object(key).Update(ctx, storage.ObjectAttrsToUpdate{
		Metadata: map[string]string{"status": status},
	})
	if err != nil {
		return fmt.Errorf("Tag: updating %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// URI returns the gs:// URI for an object key in this bucket.
func (s *Store) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}
