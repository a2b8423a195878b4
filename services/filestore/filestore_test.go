package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/cheti/tests"
)

func TestLocalStore_Put(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "https://cheti.test/media/")
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name    string
		object  string
		wantURL string
		wantErr bool
	}{
		{name: "nested", object: "certificates/FT/001-BE-FT-X-2025.pdf", wantURL: "https://cheti.test/media/certificates/FT/001-BE-FT-X-2025.pdf"},
		{name: "flat", object: "readme.pdf", wantURL: "https://cheti.test/media/readme.pdf"},
		{name: "escapes the root", object: "../outside.pdf", wantErr: true},
		{name: "absolute", object: "/etc/passwd", wantErr: true},
		{name: "empty", object: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, err := store.Put(ctx, tt.object, []byte("%PDF-1.3"), "application/pdf")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, url)

			content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(tt.object)))
			require.NoError(t, err)
			assert.Equal(t, "%PDF-1.3", string(content))
		})
	}
}

func TestLocalStore_Overwrite(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "https://cheti.test/media")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "certificates/FT/a.pdf", []byte("first"), "application/pdf")
	require.NoError(t, err)
	_, err = store.Put(ctx, "certificates/FT/a.pdf", []byte("second"), "application/pdf")
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "certificates", "FT", "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	entries, err := os.ReadDir(filepath.Join(dir, "certificates", "FT"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	conf := testutil.NewConfig()
	conf.Storage.LocalDir = t.TempDir()
	store, err := New(ctx, conf)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	conf.Storage.Backend = BackendGCS
	conf.Storage.Bucket = ""
	_, err = New(ctx, conf)
	assert.EqualError(t, err, "storage bucket is required")

	conf.Storage.Backend = "s3"
	_, err = New(ctx, conf)
	assert.EqualError(t, err, `unknown storage backend "s3"`)

	conf.Storage.Backend = BackendLocal
	conf.Storage.LocalDir = ""
	_, err = New(ctx, conf)
	assert.Error(t, err)
}
