package usecase

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photovault/internal/adapter/blob"
	"photovault/internal/adapter/cache"
	"photovault/internal/adapter/index"
	"photovault/internal/domain"
	"photovault/internal/infra/config"
	"photovault/internal/security"
)

type stubDetector struct {
	rects []image.Rectangle
	err   error
}

func (d *stubDetector) Detect(context.Context, image.Image) ([]image.Rectangle, error) {
	return d.rects, d.err
}

type repoEnv struct {
	repo     *Repository
	store    *blob.FileStore
	index    *index.JSONIndex
	cache    *cache.ImageCache
	blobDir  string
	detector *stubDetector
}

func newTestRepo(t *testing.T) *repoEnv {
	t.Helper()
	root := t.TempDir()
	logger := discardLogger()

	kp, err := security.NewFileKeyProvider(filepath.Join(root, "key"))
	require.NoError(t, err)
	enc, err := security.NewAEADEncryptor(kp, security.CipherAESGCM)
	require.NoError(t, err)

	blobDir := filepath.Join(root, "content")
	store := blob.NewFileStore(blobDir, logger)
	idx := index.NewJSONIndex(filepath.Join(root, "index"), logger)

	cacheCfg := config.CacheConfig{
		MaxFullImages:     8,
		MaxFullImageBytes: 1 << 30,
		MaxThumbnails:     64,
		MaxThumbnailBytes: 1 << 30,
		PreloadPerSecond:  1000,
		PreloadQueueSize:  16,
	}
	c := cache.New(cacheCfg)
	mm := NewMemoryManager(c, config.EvictionConfig{
		MaxResidentFullImages: 3,
		MaxResidentThumbnails: 30,
		ThumbnailIdleExpiry:   time.Minute,
	}, nil, logger)

	detector := &stubDetector{}
	repo := NewRepository(RepositoryDeps{
		Encryptor: enc,
		Store:     store,
		Index:     idx,
		Cache:     c,
		Memory:    mm,
		Detector:  detector,
		Logger:    logger,
	}, cacheCfg, config.ImagingConfig{ThumbnailMaxDim: 64, JPEGQuality: 90})
	t.Cleanup(repo.Close)

	return &repoEnv{repo: repo, store: store, index: idx, cache: c, blobDir: blobDir, detector: detector}
}

func pngBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func mustImport(t *testing.T, env *repoEnv, data []byte) string {
	t.Helper()
	photo, err := env.repo.ImportFromCamera(context.Background(), data)
	require.NoError(t, err)
	return photo.ID
}

func TestImportAndLoadRoundTrip(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()
	data := pngBytes(t, 100, 80, color.RGBA{R: 200, G: 10, B: 10, A: 255})

	imported, err := env.repo.ImportFromCamera(ctx, data)
	require.NoError(t, err)
	require.NotEmpty(t, imported.ID)

	// The import returns the full handle, not just an id.
	require.NotNil(t, imported.Metadata)
	assert.Equal(t, int64(len(data)), imported.Metadata.FileSizeBytes)
	require.NotNil(t, imported.Image)
	assert.Equal(t, 100, imported.Image.Bounds().Dx())
	require.NotNil(t, imported.Thumbnail)
	assert.LessOrEqual(t, imported.Thumbnail.Bounds().Dx(), 64)

	photo, err := env.repo.LoadPhoto(ctx, imported.ID)
	require.NoError(t, err)
	assert.Equal(t, imported.ID, photo.ID)
	assert.Equal(t, int64(len(data)), photo.Metadata.FileSizeBytes)
	require.NotNil(t, photo.Image)
	assert.Equal(t, 100, photo.Image.Bounds().Dx())
	require.NotNil(t, photo.Thumbnail)
	assert.LessOrEqual(t, photo.Thumbnail.Bounds().Dx(), 64)

	got, err := env.repo.LoadPhotoData(ctx, imported.ID)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestZeroByteContentRoundTrips(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	imported, err := env.repo.ImportFromCamera(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, imported.Image, "undecodable content yields a pixel-less handle")

	got, err := env.repo.LoadPhotoData(ctx, imported.ID)
	require.NoError(t, err)
	assert.Len(t, got, 0)

	photo, err := env.repo.LoadPhoto(ctx, imported.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), photo.Metadata.FileSizeBytes)
	assert.Nil(t, photo.Image, "undecodable content has no cached image")
}

func TestLoadUnknownPhoto(t *testing.T) {
	env := newTestRepo(t)

	_, err := env.repo.LoadPhoto(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, domain.ErrPhotoNotFound)
}

func TestRecordWithoutBlobIsInconsistency(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	id := mustImport(t, env, pngBytes(t, 8, 8, color.RGBA{A: 255}))
	require.NoError(t, env.store.Delete(ctx, id))
	env.cache.Evict(id)

	_, err := env.repo.LoadPhotoData(ctx, id)
	assert.ErrorIs(t, err, domain.ErrFileSystem,
		"a metadata record with no blob is an inconsistency, not a missing photo")
}

func TestTamperedBlobFailsDecryption(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	id := mustImport(t, env, pngBytes(t, 8, 8, color.RGBA{A: 255}))
	env.cache.Evict(id)

	path := filepath.Join(env.blobDir, id+".blob")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = env.repo.LoadPhotoData(ctx, id)
	assert.ErrorIs(t, err, domain.ErrDecryptionFailed)
}

func TestDeletePhoto(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	id := mustImport(t, env, pngBytes(t, 8, 8, color.RGBA{A: 255}))

	require.NoError(t, env.repo.DeletePhoto(ctx, id))
	_, err := env.repo.LoadPhoto(ctx, id)
	assert.ErrorIs(t, err, domain.ErrPhotoNotFound)
	assert.False(t, env.cache.Contains(id, cache.KindImage))

	// Deleting again, or deleting an id that never existed, succeeds.
	assert.NoError(t, env.repo.DeletePhoto(ctx, id))
	assert.NoError(t, env.repo.DeletePhoto(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV"))
}

func TestLoadAllSkipsBrokenItems(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, mustImport(t, env, pngBytes(t, 8, 8, color.RGBA{R: uint8(i), A: 255})))
		time.Sleep(2 * time.Millisecond)
	}

	// Corrupt one blob on disk and drop its cache entries.
	bad := ids[1]
	require.NoError(t, os.WriteFile(filepath.Join(env.blobDir, bad+".blob"), []byte("garbage"), 0o600))
	env.cache.Evict(bad)

	photos, err := env.repo.LoadAllPhotos(ctx)
	require.NoError(t, err, "one broken item must not fail the batch")
	require.Len(t, photos, 2)
	for _, p := range photos {
		assert.NotEqual(t, bad, p.ID)
	}
	// Newest first.
	assert.True(t, !photos[0].Metadata.CreationDate.Before(photos[1].Metadata.CreationDate))
}

func TestLoadPhotosWithPredicate(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	plain := mustImport(t, env, pngBytes(t, 8, 8, color.RGBA{A: 255}))
	faced := mustImport(t, env, pngBytes(t, 8, 8, color.RGBA{A: 255}))
	require.NoError(t, env.repo.UpdateFaceDetectionResults(ctx, faced,
		[]domain.FaceRegion{{X: 1, Y: 1, Width: 2, Height: 2, IsSelected: true}}))

	hasFaces := true
	photos, err := env.repo.LoadPhotosWithPredicate(ctx, domain.PhotoPredicate{HasFaces: &hasFaces})
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, faced, photos[0].ID)
	_ = plain
}

func TestExportPhoto(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	id := mustImport(t, env, pngBytes(t, 10, 10, color.RGBA{G: 128, A: 255}))

	out, err := env.repo.ExportPhoto(ctx, id, domain.ExportPNG)
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())

	_, err = env.repo.ExportPhoto(ctx, id, domain.ExportHEIC)
	assert.ErrorIs(t, err, domain.ErrExportFailed)
}

func TestSharePhotoWritesPlaintextTempFile(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()
	data := pngBytes(t, 8, 8, color.RGBA{B: 77, A: 255})

	id := mustImport(t, env, data)

	path, err := env.repo.SharePhoto(ctx, id)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got, "shared file holds the decrypted plaintext")
	assert.Contains(t, filepath.Base(path), sharePrefix)
}

func TestCleanSharedExports(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	id := mustImport(t, env, pngBytes(t, 8, 8, color.RGBA{A: 255}))
	path, err := env.repo.SharePhoto(ctx, id)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	// Age the file past the cutoff.
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	require.NoError(t, env.repo.CleanSharedExports(ctx, time.Hour))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "stale share export should be removed")
}

func TestDetectFaces(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()
	env.detector.rects = []image.Rectangle{image.Rect(2, 3, 10, 12)}

	id := mustImport(t, env, pngBytes(t, 20, 20, color.RGBA{A: 255}))

	faces, err := env.repo.DetectFaces(ctx, id)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, domain.FaceRegion{X: 2, Y: 3, Width: 8, Height: 9, IsSelected: true}, faces[0])
}

func TestMaskPhotoBlackout(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	id := mustImport(t, env, pngBytes(t, 40, 40, color.RGBA{R: 240, G: 240, B: 240, A: 255}))
	require.NoError(t, env.repo.UpdateFaceDetectionResults(ctx, id,
		[]domain.FaceRegion{{X: 10, Y: 10, Width: 20, Height: 20, IsSelected: true}}))

	require.NoError(t, env.repo.MaskPhoto(ctx, id, []domain.MaskMode{domain.MaskModeBlackout}))

	photo, err := env.repo.LoadPhoto(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MaskModeBlackout, photo.Metadata.MaskMode)

	// JPEG re-encode adds artifacts, so test brightness rather than equality.
	r, g, b, _ := photo.Image.At(20, 20).RGBA()
	assert.Less(t, int(r>>8), 32, "masked center should be near-black")
	assert.Less(t, int(g>>8), 32)
	assert.Less(t, int(b>>8), 32)

	r, _, _, _ = photo.Image.At(2, 2).RGBA()
	assert.Greater(t, int(r>>8), 200, "outside the region the image stays bright")
}

func TestMaskPhotoWithNothingToMaskLeavesContentIntact(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()
	data := pngBytes(t, 24, 24, color.RGBA{R: 90, G: 120, B: 30, A: 255})

	id := mustImport(t, env, data)

	// No modes at all.
	require.NoError(t, env.repo.MaskPhoto(ctx, id, nil))

	// An explicit "none" mode.
	require.NoError(t, env.repo.MaskPhoto(ctx, id, []domain.MaskMode{domain.MaskModeNone}))

	// A real mode but no selected regions.
	require.NoError(t, env.repo.UpdateFaceDetectionResults(ctx, id,
		[]domain.FaceRegion{{X: 2, Y: 2, Width: 4, Height: 4, IsSelected: false}}))
	require.NoError(t, env.repo.MaskPhoto(ctx, id, []domain.MaskMode{domain.MaskModeBlackout}))

	// No lossy re-encode may have happened: the stored bytes are the
	// original PNG and the mask mode was never recorded.
	got, err := env.repo.LoadPhotoData(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got, "identity mask must not rewrite the blob")

	photo, err := env.repo.LoadPhoto(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, domain.MaskModeBlackout, photo.Metadata.MaskMode)
}

func TestUpdateFacesPreservesCreationDate(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	imported, err := env.repo.ImportFromLibrary(ctx, pngBytes(t, 8, 8, color.RGBA{A: 255}), created)
	require.NoError(t, err)
	id := imported.ID
	assert.True(t, imported.Metadata.CreationDate.Equal(created))

	require.NoError(t, env.repo.UpdateFaceDetectionResults(ctx, id,
		[]domain.FaceRegion{{X: 0, Y: 0, Width: 4, Height: 4}}))

	photo, err := env.repo.LoadPhoto(ctx, id)
	require.NoError(t, err)
	assert.True(t, photo.Metadata.CreationDate.Equal(created))
	assert.True(t, photo.Metadata.ModificationDate.After(created))
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	id := mustImport(t, env, pngBytes(t, 8, 8, color.RGBA{A: 255}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			faces := make([]domain.FaceRegion, n+1)
			for j := range faces {
				faces[j] = domain.FaceRegion{X: j, Y: j, Width: 1, Height: 1}
			}
			assert.NoError(t, env.repo.UpdateFaceDetectionResults(ctx, id, faces))
		}(i)
	}
	wg.Wait()

	// Whichever write landed last, the record must be a complete face set
	// from one writer, never a torn mix.
	photo, err := env.repo.LoadPhoto(ctx, id)
	require.NoError(t, err)
	n := len(photo.Metadata.Faces)
	require.True(t, n >= 1 && n <= 10)
	for j, f := range photo.Metadata.Faces {
		assert.Equal(t, j, f.X, "faces slice must come intact from a single update")
	}
}

func TestPreloadThumbnailsWarmsCache(t *testing.T) {
	env := newTestRepo(t)

	id := mustImport(t, env, pngBytes(t, 32, 32, color.RGBA{A: 255}))
	env.cache.Evict(id)

	env.repo.PreloadThumbnails([]string{id})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.cache.Contains(id, cache.KindThumbnail) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("thumbnail was not preloaded")
}

func TestPreloadAdjacentWarmsNeighbors(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, mustImport(t, env, pngBytes(t, 16, 16, color.RGBA{R: uint8(i * 40), A: 255})))
		time.Sleep(2 * time.Millisecond)
	}
	env.cache.ClearAll()

	// Newest-first ordering puts ids[2] in the middle either way.
	env.repo.PreloadAdjacent(ctx, ids[2], 1)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.cache.Contains(ids[1], cache.KindImage) && env.cache.Contains(ids[3], cache.KindImage) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("adjacent photos were not preloaded")
}

func TestClearCache(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	id := mustImport(t, env, pngBytes(t, 16, 16, color.RGBA{A: 255}))
	_, err := env.repo.LoadPhoto(ctx, id)
	require.NoError(t, err)
	env.repo.SetVisible(id, true)

	env.repo.ClearCache(ctx)
	assert.False(t, env.cache.Contains(id, cache.KindImage), "ClearCache drops even visible photos")

	// Content is still on disk and loads again.
	photo, err := env.repo.LoadPhoto(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, photo.Image)
}

func TestSavePhotoRequiresID(t *testing.T) {
	env := newTestRepo(t)

	_, err := env.repo.SavePhoto(context.Background(), &domain.PhotoMetadata{}, []byte("x"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.repo.SavePhoto(context.Background(), nil, []byte("x"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLoadPhotoUsesCache(t *testing.T) {
	env := newTestRepo(t)
	ctx := context.Background()

	id := mustImport(t, env, pngBytes(t, 16, 16, color.RGBA{A: 255}))
	_, err := env.repo.LoadPhoto(ctx, id)
	require.NoError(t, err)

	// Corrupt the blob; a cache hit must still serve the decoded image.
	require.NoError(t, os.WriteFile(filepath.Join(env.blobDir, id+".blob"), []byte("garbage"), 0o600))

	photo, err := env.repo.LoadPhoto(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, photo.Image)
}
