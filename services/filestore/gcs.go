package filestore

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/trezcool/cheti/core"
)

const gcsPublicBaseURL = "https://storage.googleapis.com"

// GCSStore uploads documents to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, conf core.StorageConfig) (*GCSStore, error) {
	if conf.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	var opts []option.ClientOption
	if conf.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conf.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS client")
	}
	return &GCSStore{client: client, bucket: conf.Bucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, name string, content []byte, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache"
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return "", errors.Wrapf(err, "uploading %s", name)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "uploading %s", name)
	}
	return gcsPublicBaseURL + "/" + s.bucket + "/" + name, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
