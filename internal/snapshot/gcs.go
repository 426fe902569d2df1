package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
)

// ObjectOpener opens a GCS object for reading. It returns storage.ErrObjectNotExist
// when the object is missing.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// clientOpener is the ObjectOpener backed by the storage SDK.
type clientOpener struct {
	client *storage.Client
}

func (o clientOpener) Open(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return o.client.Bucket(bucket).Object(object).NewReader(ctx)
}

// GCSSource reads gs://<bucket>/<prefix>/<callerID>.json. Mobile clients upload
// their local state there before the first sign-in completes.
type GCSSource struct {
	opener ObjectOpener
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSource creates a storage client using Application Default Credentials.
func NewGCSSource(ctx context.Context, bucket, prefix string) (*GCSSource, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSSource: creating storage client: %w", err)
	}
	return NewGCSSourceWithClient(client, bucket, prefix), nil
}

// NewGCSSourceWithClient creates a GCSSource using an existing client.
func NewGCSSourceWithClient(client *storage.Client, bucket, prefix string) *GCSSource {
	return &GCSSource{opener: clientOpener{client: client}, client: client, bucket: bucket, prefix: prefix}
}

// NewGCSSourceWithOpener creates a GCSSource over any ObjectOpener.
func NewGCSSourceWithOpener(opener ObjectOpener, bucket, prefix string) *GCSSource {
	return &GCSSource{opener: opener, bucket: bucket, prefix: prefix}
}

// Fetch implements Source.
func (s *GCSSource) Fetch(ctx context.Context, callerID string) ([]byte, error) {
	name, err := objectName(callerID)
	if err != nil {
		return nil, err
	}
	object := path.Join(s.prefix, name)

	r, err := s.opener.Open(ctx, s.bucket, object)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("GCSSource.Fetch: opening gs://%s/%s: %w", s.bucket, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("GCSSource.Fetch: reading gs://%s/%s: %w", s.bucket, object, err)
	}
	return data, nil
}

// Close releases the storage client, if the source owns one.
func (s *GCSSource) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
