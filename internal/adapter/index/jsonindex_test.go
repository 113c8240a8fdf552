package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photovault/internal/domain"
)

func newTestIndex(t *testing.T) *JSONIndex {
	t.Helper()
	return NewJSONIndex(filepath.Join(t.TempDir(), "index"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func record(id string, created time.Time, faces int, mode domain.MaskMode) *domain.PhotoMetadata {
	m := &domain.PhotoMetadata{
		ID:               id,
		CreationDate:     created,
		ModificationDate: created,
		FileSizeBytes:    128,
		MaskMode:         mode,
	}
	for i := 0; i < faces; i++ {
		m.Faces = append(m.Faces, domain.FaceRegion{X: i * 10, Y: 0, Width: 8, Height: 8, IsSelected: true})
	}
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := record("01A", created, 2, domain.MaskModePixelate)
	m.IsDecoy = true
	m.LocationTags = map[string]string{"city": "Da Nang"}
	require.NoError(t, x.Save(ctx, m))

	got, err := x.Load(ctx, "01A")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.True(t, got.CreationDate.Equal(created))
	assert.Len(t, got.Faces, 2)
	assert.Equal(t, domain.MaskModePixelate, got.MaskMode)
	assert.True(t, got.IsDecoy)
	assert.Equal(t, "Da Nang", got.LocationTags["city"])
}

func TestLoadAbsentFails(t *testing.T) {
	x := newTestIndex(t)
	_, err := x.Load(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrPhotoNotFound))
}

func TestLoadAllSortedByCreationDateDescending(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, x.Save(ctx, record("oldest", base, 0, domain.MaskModeNone)))
	require.NoError(t, x.Save(ctx, record("newest", base.AddDate(0, 2, 0), 0, domain.MaskModeNone)))
	require.NoError(t, x.Save(ctx, record("middle", base.AddDate(0, 1, 0), 0, domain.MaskModeNone)))

	all, err := x.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "newest", all[0].ID)
	assert.Equal(t, "middle", all[1].ID)
	assert.Equal(t, "oldest", all[2].ID)
}

func TestLoadAllSkipsCorruptRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	x := NewJSONIndex(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, x.Save(ctx, record("good", time.Now().UTC(), 0, domain.MaskModeNone)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0600))

	all, err := x.LoadAll(ctx)
	require.NoError(t, err, "one corrupt record must not fail the batch")
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)
}

func TestDeleteIsIdempotent(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.Delete(ctx, "never-existed"))
	require.NoError(t, x.Delete(ctx, "never-existed"))

	require.NoError(t, x.Save(ctx, record("gone", time.Now().UTC(), 0, domain.MaskModeNone)))
	require.NoError(t, x.Delete(ctx, "gone"))
	require.NoError(t, x.Delete(ctx, "gone"))
}

func TestUpdatePreservesCreationDateRefreshesModification(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	created := time.Date(2023, 6, 15, 8, 30, 0, 0, time.UTC)
	m := record("01B", created, 0, domain.MaskModeNone)
	require.NoError(t, x.Save(ctx, m))

	loaded, err := x.Load(ctx, "01B")
	require.NoError(t, err)
	loaded.Faces = []domain.FaceRegion{{X: 5, Y: 5, Width: 20, Height: 20, IsSelected: true}}
	require.NoError(t, x.Update(ctx, loaded))

	got, err := x.Load(ctx, "01B")
	require.NoError(t, err)
	assert.True(t, got.CreationDate.Equal(created), "update must preserve creationDate")
	assert.True(t, got.ModificationDate.After(created), "update must refresh modificationDate")
	assert.Len(t, got.Faces, 1)
}

func TestFindMatchingPredicateFixture(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan31 := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	// 5-photo fixture: 2 with faces in range, 1 with faces out of range,
	// 2 without faces.
	require.NoError(t, x.Save(ctx, record("in-faces-1", jan1.AddDate(0, 0, 5), 1, domain.MaskModeNone)))
	require.NoError(t, x.Save(ctx, record("in-faces-2", jan1.AddDate(0, 0, 20), 3, domain.MaskModeNone)))
	require.NoError(t, x.Save(ctx, record("out-faces", jan1.AddDate(0, 3, 0), 2, domain.MaskModeNone)))
	require.NoError(t, x.Save(ctx, record("in-nofaces", jan1.AddDate(0, 0, 10), 0, domain.MaskModeNone)))
	require.NoError(t, x.Save(ctx, record("out-nofaces", jan1.AddDate(-1, 0, 0), 0, domain.MaskModeNone)))

	hasFaces := true
	got, err := x.FindMatching(ctx, domain.PhotoPredicate{
		From:     &jan1,
		To:       &jan31,
		HasFaces: &hasFaces,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []string{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []string{"in-faces-1", "in-faces-2"}, ids)
}

func TestFindMatchingByMaskMode(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.Save(ctx, record("blurred", time.Now().UTC(), 0, domain.MaskModeBlur)))
	require.NoError(t, x.Save(ctx, record("plain", time.Now().UTC(), 0, domain.MaskModeNone)))

	mode := domain.MaskModeBlur
	got, err := x.FindMatching(ctx, domain.PhotoPredicate{MaskMode: &mode})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "blurred", got[0].ID)
}

func TestSaveRejectsEmptyID(t *testing.T) {
	x := newTestIndex(t)
	err := x.Save(context.Background(), &domain.PhotoMetadata{})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
