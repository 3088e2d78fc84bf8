package proxy

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func makeBundle(t *testing.T, entries map[string]string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		assert.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		assert.NoError(t, err)
	}
	assert.NoError(t, tw.Close())
	assert.NoError(t, gz.Close())
	return &buf
}

func TestImportBundleAndGet(t *testing.T) {
	store, err := NewArchiveStore(t.TempDir(), zap.NewNop())
	assert.NoError(t, err)

	bundle := makeBundle(t, map[string]string{
		"org/foo/1.0/foo-1.0.jar": "jar-bytes",
		"org/foo/1.0/foo-1.0.pom": "<project/>",
	})

	count, err := store.ImportBundle(bundle)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	data, err := store.Get("/org/foo/1.0/foo-1.0.jar")
	assert.NoError(t, err)
	assert.Equal(t, "jar-bytes", string(data))

	assert.True(t, store.Contains("org/foo/1.0/foo-1.0.pom"))
	assert.False(t, store.Contains("org/foo/1.0/missing.jar"))
}

func TestGetMissingArtifact(t *testing.T) {
	store, err := NewArchiveStore(t.TempDir(), zap.NewNop())
	assert.NoError(t, err)

	_, err = store.Get("/does/not/exist.jar")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportBundleCorruptInput(t *testing.T) {
	store, err := NewArchiveStore(t.TempDir(), zap.NewNop())
	assert.NoError(t, err)

	_, err = store.ImportBundle(bytes.NewBufferString("not a gzip stream"))
	assert.Error(t, err)
}

func TestPathTraversalBlocked(t *testing.T) {
	store, err := NewArchiveStore(t.TempDir(), zap.NewNop())
	assert.NoError(t, err)

	// A leading slash plus dot-dot segments must not escape the root.
	data, err := store.Get("/../../etc/passwd")
	assert.Nil(t, data)
	assert.ErrorIs(t, err, ErrNotFound)
}
