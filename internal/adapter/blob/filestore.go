// Package blob implements the durable content store: one encrypted blob
// file per photo id under a single root directory, excluded from backup
// tooling and created lazily on first use.
package blob

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"photovault/internal/domain"
)

const (
	blobExt = ".blob"

	// cacheDirTag follows the Cache Directory Tagging specification so
	// backup and sync tools that honor it skip the vault directory.
	cacheDirTagName = "CACHEDIR.TAG"
	cacheDirTagBody = "Signature: 8a477f597d28d172789f06886806bc55\n# photovault content store. Do not back up.\n"
)

// NewPhotoID generates a photo id whose string form sorts by UTC creation
// time (millisecond timestamp) followed by a random suffix, so any number
// of saves issued within the same timer tick still get distinct names.
func NewPhotoID() string {
	return ulid.Make().String()
}

// FileStore implements domain.ContentStore on a local directory.
type FileStore struct {
	dir    string
	logger *slog.Logger

	initOnce sync.Once
	initErr  error
}

// NewFileStore creates a store rooted at dir. The directory is not touched
// until the first operation; directory-creation failure at that point is
// fatal to the whole store.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	return &FileStore{dir: dir, logger: logger}
}

func (s *FileStore) ensureDir() error {
	s.initOnce.Do(func() {
		if err := os.MkdirAll(s.dir, 0700); err != nil {
			s.initErr = domain.NewVaultError("ContentStore.Init", domain.ErrFileSystem, err.Error())
			return
		}
		tag := filepath.Join(s.dir, cacheDirTagName)
		if _, err := os.Stat(tag); os.IsNotExist(err) {
			if err := os.WriteFile(tag, []byte(cacheDirTagBody), 0600); err != nil {
				s.logger.Warn("could not write backup-exclusion tag", "path", tag, "error", err)
			}
		}
	})
	return s.initErr
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+blobExt)
}

// Save writes ciphertext for id and returns the blob's location.
func (s *FileStore) Save(_ context.Context, id string, ciphertext []byte) (string, error) {
	if err := s.ensureDir(); err != nil {
		return "", err
	}
	p := s.path(id)
	if err := os.WriteFile(p, ciphertext, 0600); err != nil {
		return "", domain.NewVaultError("ContentStore.Save", domain.ErrFileSystem, err.Error())
	}
	return p, nil
}

// Load returns the ciphertext for id, or ErrPhotoNotFound if absent.
func (s *FileStore) Load(_ context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewVaultError("ContentStore.Load", domain.ErrPhotoNotFound, id)
		}
		return nil, domain.NewVaultError("ContentStore.Load", domain.ErrFileSystem, err.Error())
	}
	return data, nil
}

// Delete removes the blob for id. Deleting an absent id is not an error.
func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return domain.NewVaultError("ContentStore.Delete", domain.ErrFileSystem, err.Error())
	}
	return nil
}

// ListIDs returns the ids of all stored blobs. Non-blob files in the
// directory (tags, metadata records, strays) are tolerated and skipped.
func (s *FileStore) ListIDs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // store not yet created: empty library
		}
		return nil, domain.NewVaultError("ContentStore.List", domain.ErrFileSystem, err.Error())
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, blobExt) {
			continue
		}
		stem := strings.TrimSuffix(name, blobExt)
		if _, err := ulid.ParseStrict(stem); err != nil {
			s.logger.Debug("skipping non-photo file in store", "name", name)
			continue
		}
		ids = append(ids, stem)
	}
	return ids, nil
}
