package proxy

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// ErrNotFound reports that an artifact path is not present in the archive.
var ErrNotFound = errors.New("artifact not found in archive")

// ArchiveStore serves artifacts from a pre-fetched local directory tree.
// Builds that ship their dependencies as a tar.gz bundle import it once at
// startup; downloads then hit the archive before falling back to upstream.
type ArchiveStore struct {
	root   string
	logger *zap.Logger
}

// NewArchiveStore creates an archive store rooted at dir, creating it if
// needed.
func NewArchiveStore(dir string, logger *zap.Logger) (*ArchiveStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	return &ArchiveStore{root: dir, logger: logger}, nil
}

// Get returns the artifact stored under path, or ErrNotFound.
func (s *ArchiveStore) Get(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Contains reports whether an artifact exists under path.
func (s *ArchiveStore) Contains(path string) bool {
	full, err := s.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// ImportBundle extracts a gzip-compressed tarball into the archive root and
// returns the number of artifacts imported. Entries escaping the root are
// rejected.
func (s *ArchiveStore) ImportBundle(r io.Reader) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer gz.Close()

	count := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read bundle entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		full, err := s.resolve(hdr.Name)
		if err != nil {
			return count, err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return count, err
		}

		f, err := os.Create(full)
		if err != nil {
			return count, err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return count, err
		}
		if err := f.Close(); err != nil {
			return count, err
		}
		count++
	}

	s.logger.Info("imported artifact bundle", zap.Int("artifacts", count))
	return count, nil
}

// resolve maps an artifact path onto the archive root, rejecting traversal.
func (s *ArchiveStore) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid artifact path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}
