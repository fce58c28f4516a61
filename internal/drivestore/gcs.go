package drivestore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/okozlov/mailvault/internal/domain"
	"github.com/okozlov/mailvault/internal/gapierr"
)

// GCSStore stores documents as objects in one bucket, using the destination
// path as the object name.
type GCSStore struct {
	client *gcs.Client
	bucket string
	log    zerolog.Logger
}

// NewGCSStore wraps an existing client; the caller owns its lifecycle.
func NewGCSStore(client *gcs.Client, bucket string, log zerolog.Logger) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, log: log}
}

// Store implements workflow.StorageService. The precondition keeps an
// existing object from being overwritten; the planner should have avoided the
// name, so a clash is fatal rather than retried.
func (s *GCSStore) Store(ctx context.Context, p domain.Placement, content []byte) (string, error) {
	object := path.Join(p.FolderPath, p.FileName)
	w := s.client.Bucket(s.bucket).Object(object).
		If(gcs.Conditions{DoesNotExist: true}).
		NewWriter(ctx)
	w.ContentType = "application/pdf"

	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return "", gapierr.Classify("GCSStore.Store: writing object", err)
	}
	if err := w.Close(); err != nil {
		return "", gapierr.Classify("GCSStore.Store: finalizing object", err)
	}

	s.log.Debug().Str("bucket", s.bucket).Str("object", object).Int("bytes", len(content)).Msg("uploaded to gcs")
	return object, nil
}

// Fetch implements workflow.StorageService.
func (s *GCSStore) Fetch(ctx context.Context, destinationPath string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(destinationPath).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, domain.Fatal("GCSStore.Fetch", err)
	}
	if err != nil {
		return nil, gapierr.Classify("GCSStore.Fetch: opening reader", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.Transient("GCSStore.Fetch: reading object", err)
	}
	return data, nil
}

// List implements workflow.StorageService, returning the base names of the
// folder's direct children.
func (s *GCSStore) List(ctx context.Context, folderPath string) ([]string, error) {
	prefix := strings.TrimSuffix(folderPath, "/") + "/"
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{
		Prefix:    prefix,
		Delimiter: "/",
	})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return names, nil
		}
		if err != nil {
			return nil, gapierr.Classify("GCSStore.List", err)
		}
		if attrs.Name == "" {
			// Sub-folder prefix entry.
			continue
		}
		names = append(names, path.Base(attrs.Name))
	}
}
