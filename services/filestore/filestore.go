// Package filestore persists certificate documents and serves their public URLs.
package filestore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

// backends
const (
	BackendGCS   = "gcs"
	BackendLocal = "local"
)

// New returns the document store selected by conf.Storage.Backend.
func New(ctx context.Context, conf *core.Config) (certificate.DocumentStore, error) {
	switch conf.Storage.Backend {
	case BackendGCS:
		return NewGCSStore(ctx, conf.Storage)
	case BackendLocal, "":
		return NewLocalStore(conf.Storage.LocalDir, conf.Storage.PublicBaseURL)
	default:
		return nil, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}
}
