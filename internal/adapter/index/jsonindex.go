// Package index implements the metadata index: one JSON record file per
// photo id so a corrupt record only ever affects its own photo, never the
// rest of the library.
package index

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"photovault/internal/domain"
)

const recordExt = ".json"

// JSONIndex implements domain.MetadataIndex on a local directory. Records
// live side by side with content blobs, associated by shared id stem.
type JSONIndex struct {
	dir    string
	logger *slog.Logger

	initOnce sync.Once
	initErr  error
}

// NewJSONIndex creates an index rooted at dir, created lazily on first use.
func NewJSONIndex(dir string, logger *slog.Logger) *JSONIndex {
	return &JSONIndex{dir: dir, logger: logger}
}

func (x *JSONIndex) ensureDir() error {
	x.initOnce.Do(func() {
		if err := os.MkdirAll(x.dir, 0700); err != nil {
			x.initErr = domain.NewVaultError("MetadataIndex.Init", domain.ErrFileSystem, err.Error())
		}
	})
	return x.initErr
}

func (x *JSONIndex) path(id string) string {
	return filepath.Join(x.dir, id+recordExt)
}

// Save writes the full record for m.ID. The write is atomic (temp file +
// rename) so a crash mid-write never leaves a half-record behind.
func (x *JSONIndex) Save(_ context.Context, m *domain.PhotoMetadata) error {
	if m.ID == "" {
		return domain.NewVaultError("MetadataIndex.Save", domain.ErrInvalidInput, "empty photo id")
	}
	if err := x.ensureDir(); err != nil {
		return err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return domain.NewVaultError("MetadataIndex.Save", domain.ErrFileSystem, err.Error())
	}

	tmp, err := os.CreateTemp(x.dir, m.ID+".tmp-*")
	if err != nil {
		return domain.NewVaultError("MetadataIndex.Save", domain.ErrFileSystem, err.Error())
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return domain.NewVaultError("MetadataIndex.Save", domain.ErrFileSystem, err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return domain.NewVaultError("MetadataIndex.Save", domain.ErrFileSystem, err.Error())
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return domain.NewVaultError("MetadataIndex.Save", domain.ErrFileSystem, err.Error())
	}
	if err := os.Rename(tmpName, x.path(m.ID)); err != nil {
		os.Remove(tmpName)
		return domain.NewVaultError("MetadataIndex.Save", domain.ErrFileSystem, err.Error())
	}
	return nil
}

// Load returns the record for id, or ErrPhotoNotFound if absent.
func (x *JSONIndex) Load(_ context.Context, id string) (*domain.PhotoMetadata, error) {
	data, err := os.ReadFile(x.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewVaultError("MetadataIndex.Load", domain.ErrPhotoNotFound, id)
		}
		return nil, domain.NewVaultError("MetadataIndex.Load", domain.ErrFileSystem, err.Error())
	}

	var m domain.PhotoMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, domain.NewVaultError("MetadataIndex.Load", domain.ErrFileSystem, "corrupt record: "+err.Error())
	}
	return &m, nil
}

// LoadAll returns every readable record, sorted by creationDate descending
// (newest first, id as tie-break). Corrupt records are logged and skipped;
// only a directory enumeration failure fails the call.
func (x *JSONIndex) LoadAll(_ context.Context) ([]*domain.PhotoMetadata, error) {
	entries, err := os.ReadDir(x.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // index not yet created: empty library
		}
		return nil, domain.NewVaultError("MetadataIndex.LoadAll", domain.ErrFileSystem, err.Error())
	}

	var records []*domain.PhotoMetadata
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(x.dir, name))
		if err != nil {
			x.logger.Warn("skipping unreadable metadata record", "file", name, "error", err)
			continue
		}
		var m domain.PhotoMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			x.logger.Warn("skipping corrupt metadata record", "file", name, "error", err)
			continue
		}
		if m.ID == "" {
			x.logger.Warn("skipping metadata record with empty id", "file", name)
			continue
		}
		records = append(records, &m)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreationDate.Equal(records[j].CreationDate) {
			return records[i].CreationDate.After(records[j].CreationDate)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// Delete removes the record for id. Deleting an absent id is not an error.
func (x *JSONIndex) Delete(_ context.Context, id string) error {
	if err := os.Remove(x.path(id)); err != nil && !os.IsNotExist(err) {
		return domain.NewVaultError("MetadataIndex.Delete", domain.ErrFileSystem, err.Error())
	}
	return nil
}

// Update is a full replace: the caller reads the existing record, mutates
// it in memory, and writes the whole record back here. ModificationDate is
// refreshed; CreationDate is whatever the caller carried over. Callers are
// responsible for serializing concurrent updates to the same id.
func (x *JSONIndex) Update(ctx context.Context, m *domain.PhotoMetadata) error {
	m.ModificationDate = time.Now().UTC()
	return x.Save(ctx, m)
}

// FindMatching returns records satisfying the conjunctive predicate, in
// LoadAll order. Batch tolerance matches LoadAll.
func (x *JSONIndex) FindMatching(ctx context.Context, p domain.PhotoPredicate) ([]*domain.PhotoMetadata, error) {
	all, err := x.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.PhotoMetadata
	for _, m := range all {
		if p.Matches(m) {
			out = append(out, m)
		}
	}
	return out, nil
}
