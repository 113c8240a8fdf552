// Package usecase implements the vault's application services: the photo
// repository facade, per-photo operation locking, and the memory-pressure
// policy over the image cache.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"photovault/internal/adapter/blob"
	"photovault/internal/adapter/cache"
	"photovault/internal/domain"
	"photovault/internal/imaging"
	"photovault/internal/infra/config"
	"photovault/internal/infra/tracer"
)

// loadAllConcurrency bounds parallel decrypt work during batch loads.
const loadAllConcurrency = 4

// sharePrefix marks share-export temp files so the cleanup task can find
// them without touching unrelated files in the temp directory.
const sharePrefix = "photovault-share-"

// Repository is the single facade the rest of the application talks to. It
// composes encryption, content storage, the metadata index, the two-tier
// image cache, and the memory manager, and serializes all per-photo work
// through a photo-scoped lock so no two operations race on the same blob.
type Repository struct {
	enc      domain.Encryptor
	store    domain.ContentStore
	index    domain.MetadataIndex
	cache    *cache.ImageCache
	mm       *MemoryManager
	locks    *lockTable
	bus      domain.EventBus
	detector domain.FaceDetector
	location domain.LocationProvider
	logger   *slog.Logger
	imaging  config.ImagingConfig

	preloader *cache.Preloader
}

// RepositoryDeps carries the collaborators Repository needs. Detector,
// Location, and Bus are optional; everything else is required.
type RepositoryDeps struct {
	Encryptor domain.Encryptor
	Store     domain.ContentStore
	Index     domain.MetadataIndex
	Cache     *cache.ImageCache
	Memory    *MemoryManager
	Bus       domain.EventBus
	Detector  domain.FaceDetector
	Location  domain.LocationProvider
	Logger    *slog.Logger
}

// NewRepository creates the repository and starts its background preloader.
func NewRepository(deps RepositoryDeps, cacheCfg config.CacheConfig, imagingCfg config.ImagingConfig) *Repository {
	r := &Repository{
		enc:      deps.Encryptor,
		store:    deps.Store,
		index:    deps.Index,
		cache:    deps.Cache,
		mm:       deps.Memory,
		locks:    newLockTable(),
		bus:      deps.Bus,
		detector: deps.Detector,
		location: deps.Location,
		logger:   deps.Logger,
		imaging:  imagingCfg,
	}
	r.preloader = cache.NewPreloader(deps.Cache, r.loadIntoCache, cacheCfg, deps.Logger)
	return r
}

// Close stops background work. The repository must not be used afterwards.
func (r *Repository) Close() {
	r.preloader.Stop()
}

// ImportFromCamera stores a freshly captured photo and returns its handle.
// Creation time is now; location tags are captured at save time if a
// provider is configured.
func (r *Repository) ImportFromCamera(ctx context.Context, data []byte) (*domain.SecurePhoto, error) {
	now := time.Now().UTC()
	meta := &domain.PhotoMetadata{
		ID:               blob.NewPhotoID(),
		CreationDate:     now,
		ModificationDate: now,
	}
	return r.SavePhoto(ctx, meta, data)
}

// ImportFromLibrary stores a photo imported from an external library,
// preserving its original creation date, and returns its handle.
func (r *Repository) ImportFromLibrary(ctx context.Context, data []byte, createdAt time.Time) (*domain.SecurePhoto, error) {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	meta := &domain.PhotoMetadata{
		ID:               blob.NewPhotoID(),
		CreationDate:     createdAt,
		ModificationDate: time.Now().UTC(),
	}
	return r.SavePhoto(ctx, meta, data)
}

// SavePhoto encrypts and persists plaintext under meta.ID, writes the
// metadata record, and returns the composed photo handle. FileSizeBytes
// always reflects the plaintext length. A photo whose bytes do not decode
// as an image is stored anyway; its handle just carries no pixels.
func (r *Repository) SavePhoto(ctx context.Context, meta *domain.PhotoMetadata, data []byte) (*domain.SecurePhoto, error) {
	if meta == nil || meta.ID == "" {
		return nil, domain.NewVaultError("Repository.SavePhoto", domain.ErrInvalidInput, "missing photo id")
	}
	release, err := r.locks.Acquire(ctx, meta.ID)
	if err != nil {
		return nil, domain.WrapOp("Repository.SavePhoto", err)
	}
	defer release()
	return r.savePhotoLocked(ctx, meta, data)
}

// savePhotoLocked is SavePhoto without lock acquisition, for callers that
// already hold the photo's lock.
func (r *Repository) savePhotoLocked(ctx context.Context, meta *domain.PhotoMetadata, data []byte) (*domain.SecurePhoto, error) {
	ctx, span := tracer.Op(ctx, "save_photo", meta.ID)
	defer span.End()

	ciphertext, err := r.enc.Encrypt(data)
	if err != nil {
		tracer.Fail(span, err)
		return nil, domain.NewVaultError("Repository.SavePhoto", domain.ErrEncryptionFailed, err.Error())
	}

	if _, err := r.store.Save(ctx, meta.ID, ciphertext); err != nil {
		tracer.Fail(span, err)
		return nil, domain.NewVaultError("Repository.SavePhoto", domain.ErrFileSystem, err.Error())
	}

	meta.FileSizeBytes = int64(len(data))
	if meta.LocationTags == nil && r.location != nil {
		// Location is captured once, at save time. Failure to resolve tags
		// never fails the save.
		if tags, lerr := r.location.CurrentLocationTags(ctx); lerr == nil && len(tags) > 0 {
			meta.LocationTags = tags
		}
	}

	if err := r.index.Save(ctx, meta); err != nil {
		// The blob landed but the record did not; remove the blob so no
		// orphan survives a failed save.
		if derr := r.store.Delete(ctx, meta.ID); derr != nil {
			r.logger.Error("orphan blob cleanup failed", "photo_id", meta.ID, "error", derr)
		}
		tracer.Fail(span, err)
		return nil, domain.WrapOp("Repository.SavePhoto", err)
	}

	photo := &domain.SecurePhoto{
		ID:         meta.ID,
		Metadata:   meta,
		LastAccess: time.Now(),
	}

	// Warm the thumbnail tier. Non-image payloads (or decode failures) are
	// tolerated: the photo is stored, just not previewable.
	if img, derr := imaging.Decode(data); derr == nil {
		thumb := imaging.Thumbnail(img, r.imaging.ThumbnailMaxDim)
		r.cache.Put(meta.ID, cache.KindThumbnail, thumb)
		photo.Image = img
		photo.Thumbnail = thumb
	} else {
		r.logger.Debug("saved photo is not decodable, skipping thumbnail", "photo_id", meta.ID)
	}

	r.publish(ctx, domain.EventPhotoSaved, meta.ID)
	r.mm.Enforce(ctx)
	r.logger.Info("photo saved", "photo_id", meta.ID, "bytes", len(data))
	return photo, nil
}

// LoadPhoto returns the decrypted, decoded photo with its metadata. The
// full image and thumbnail come from cache when resident; a miss decrypts
// from disk and populates both tiers. A metadata record without a content
// blob is reported as a file system inconsistency, not repaired.
func (r *Repository) LoadPhoto(ctx context.Context, id string) (*domain.SecurePhoto, error) {
	release, err := r.locks.Acquire(ctx, id)
	if err != nil {
		return nil, domain.WrapOp("Repository.LoadPhoto", err)
	}
	defer release()
	return r.loadPhotoLocked(ctx, id)
}

func (r *Repository) loadPhotoLocked(ctx context.Context, id string) (*domain.SecurePhoto, error) {
	ctx, span := tracer.Op(ctx, "load_photo", id)
	defer span.End()

	meta, err := r.index.Load(ctx, id)
	if err != nil {
		tracer.Fail(span, err)
		return nil, domain.WrapOp("Repository.LoadPhoto", err)
	}

	photo := &domain.SecurePhoto{
		ID:         id,
		Metadata:   meta,
		LastAccess: time.Now(),
	}

	if img, ok := r.cache.Get(id, cache.KindImage); ok {
		photo.Image = img
		if thumb, ok := r.cache.Get(id, cache.KindThumbnail); ok {
			photo.Thumbnail = thumb
		}
		return photo, nil
	}

	plaintext, err := r.loadPlaintextLocked(ctx, id)
	if err != nil {
		tracer.Fail(span, err)
		return nil, err
	}

	img, derr := imaging.Decode(plaintext)
	if derr != nil {
		// Stored bytes that never decoded (non-image import) still load as
		// metadata plus raw content via LoadPhotoData.
		r.logger.Debug("photo content not decodable", "photo_id", id)
		return photo, nil
	}

	r.cache.Put(id, cache.KindImage, img)
	photo.Image = img

	thumb, ok := r.cache.Get(id, cache.KindThumbnail)
	if !ok {
		thumb = imaging.Thumbnail(img, r.imaging.ThumbnailMaxDim)
		r.cache.Put(id, cache.KindThumbnail, thumb)
	}
	photo.Thumbnail = thumb

	r.mm.Enforce(ctx)
	return photo, nil
}

// LoadPhotoData returns the decrypted raw bytes of a photo without
// decoding them. Zero-length content round-trips as zero-length plaintext.
func (r *Repository) LoadPhotoData(ctx context.Context, id string) ([]byte, error) {
	release, err := r.locks.Acquire(ctx, id)
	if err != nil {
		return nil, domain.WrapOp("Repository.LoadPhotoData", err)
	}
	defer release()
	return r.loadPlaintextLocked(ctx, id)
}

// loadPlaintextLocked loads and decrypts the blob for id. The caller holds
// the photo lock. A missing metadata record is ErrPhotoNotFound; a record
// whose blob is missing is ErrFileSystem because the store is inconsistent.
func (r *Repository) loadPlaintextLocked(ctx context.Context, id string) ([]byte, error) {
	ciphertext, err := r.store.Load(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			// Distinguish "unknown photo" from "record present, blob gone".
			if _, ierr := r.index.Load(ctx, id); ierr == nil {
				return nil, domain.NewVaultError("Repository.LoadPhotoData", domain.ErrFileSystem,
					"metadata record exists but content blob is missing")
			}
			return nil, domain.NewVaultError("Repository.LoadPhotoData", domain.ErrPhotoNotFound, id)
		}
		return nil, domain.WrapOp("Repository.LoadPhotoData", err)
	}

	plaintext, err := r.enc.Decrypt(ciphertext)
	if err != nil {
		// Never retried: an authentication failure is permanent for this blob.
		return nil, domain.WrapOp("Repository.LoadPhotoData", err)
	}
	return plaintext, nil
}

// LoadAllPhotos returns every loadable photo, sorted newest first. Item
// failures (corrupt record, missing blob, failed decrypt) are logged and
// skipped so one bad photo never hides the rest; only a failure to
// enumerate the index fails the whole call.
func (r *Repository) LoadAllPhotos(ctx context.Context) ([]*domain.SecurePhoto, error) {
	ctx, span := tracer.Op(ctx, "load_all_photos", "")
	defer span.End()

	records, err := r.index.LoadAll(ctx)
	if err != nil {
		tracer.Fail(span, err)
		return nil, domain.WrapOp("Repository.LoadAllPhotos", err)
	}
	tracer.BatchSize(span, len(records))
	return r.loadBatch(ctx, records), nil
}

// LoadPhotosWithPredicate returns the photos whose metadata satisfies every
// supplied clause of p, newest first, with the same per-item tolerance as
// LoadAllPhotos.
func (r *Repository) LoadPhotosWithPredicate(ctx context.Context, p domain.PhotoPredicate) ([]*domain.SecurePhoto, error) {
	records, err := r.index.FindMatching(ctx, p)
	if err != nil {
		return nil, domain.WrapOp("Repository.LoadPhotosWithPredicate", err)
	}
	return r.loadBatch(ctx, records), nil
}

func (r *Repository) loadBatch(ctx context.Context, records []*domain.PhotoMetadata) []*domain.SecurePhoto {
	photos := make([]*domain.SecurePhoto, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadAllConcurrency)
	for i, meta := range records {
		i, meta := i, meta
		g.Go(func() error {
			photo, err := r.LoadPhoto(gctx, meta.ID)
			if err != nil {
				r.logger.Warn("skipping unloadable photo", "photo_id", meta.ID, "error", err)
				return nil
			}
			photos[i] = photo
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	out := photos[:0]
	for _, p := range photos {
		if p != nil {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.CreationDate.After(out[j].Metadata.CreationDate)
	})
	return out
}

// DeletePhoto removes a photo's blob, metadata record, and cache entries.
// Deleting an unknown id succeeds. A blob-removal failure is the reported
// failure; index and cache cleanup are still attempted.
func (r *Repository) DeletePhoto(ctx context.Context, id string) error {
	release, err := r.locks.Acquire(ctx, id)
	if err != nil {
		return domain.WrapOp("Repository.DeletePhoto", err)
	}
	defer release()

	blobErr := r.store.Delete(ctx, id)
	if err := r.index.Delete(ctx, id); err != nil {
		r.logger.Error("metadata delete failed", "photo_id", id, "error", err)
		if blobErr == nil {
			blobErr = err
		}
	}
	r.cache.Evict(id)
	r.mm.SetVisible(id, false)

	if blobErr != nil {
		return domain.NewVaultError("Repository.DeletePhoto", domain.ErrFileSystem, blobErr.Error())
	}
	r.publish(ctx, domain.EventPhotoDeleted, id)
	r.logger.Info("photo deleted", "photo_id", id)
	return nil
}

// ExportPhoto decrypts a photo and re-encodes it in the requested format.
func (r *Repository) ExportPhoto(ctx context.Context, id string, format domain.ExportFormat) ([]byte, error) {
	data, err := r.LoadPhotoData(ctx, id)
	if err != nil {
		return nil, domain.WrapOp("Repository.ExportPhoto", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, domain.NewVaultError("Repository.ExportPhoto", domain.ErrExportFailed, err.Error())
	}
	out, err := imaging.Encode(img, format, r.imaging.JPEGQuality)
	if err != nil {
		return nil, domain.WrapOp("Repository.ExportPhoto", err)
	}
	return out, nil
}

// SharePhoto decrypts a photo to a plaintext temp file for handoff to an
// external share target and returns its path. The filename is random, so
// the path is not guessable; the caller (or the scheduled temp-clean task)
// removes the file after the handoff completes.
func (r *Repository) SharePhoto(ctx context.Context, id string) (string, error) {
	data, err := r.LoadPhotoData(ctx, id)
	if err != nil {
		return "", domain.WrapOp("Repository.SharePhoto", err)
	}

	name := sharePrefix + uuid.NewString() + ".jpg"
	path := filepath.Join(os.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", domain.NewVaultError("Repository.SharePhoto", domain.ErrExportFailed, err.Error())
	}
	r.logger.Info("photo exported for sharing", "photo_id", id, "path", path)
	return path, nil
}

// CleanSharedExports removes share-export temp files older than maxAge.
// Registered as a scheduled task.
func (r *Repository) CleanSharedExports(_ context.Context, maxAge time.Duration) error {
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		return domain.NewVaultError("Repository.CleanSharedExports", domain.ErrFileSystem, err.Error())
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), sharePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(os.TempDir(), e.Name())
		if err := os.Remove(path); err != nil {
			r.logger.Warn("stale share export not removed", "path", path, "error", err)
			continue
		}
		r.logger.Debug("removed stale share export", "path", path)
	}
	return nil
}

// DetectFaces runs the configured detector over a photo's decoded image and
// returns the detected regions, all pre-selected for masking.
func (r *Repository) DetectFaces(ctx context.Context, id string) ([]domain.FaceRegion, error) {
	if r.detector == nil {
		return nil, domain.NewVaultError("Repository.DetectFaces", domain.ErrInvalidInput, "no face detector configured")
	}

	data, err := r.LoadPhotoData(ctx, id)
	if err != nil {
		return nil, domain.WrapOp("Repository.DetectFaces", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, domain.WrapOp("Repository.DetectFaces", fmt.Errorf("decode: %w", err))
	}

	rects, err := r.detector.Detect(ctx, img)
	if err != nil {
		return nil, domain.WrapOp("Repository.DetectFaces", err)
	}

	faces := make([]domain.FaceRegion, 0, len(rects))
	for _, rc := range rects {
		faces = append(faces, domain.FaceRegion{
			X:          rc.Min.X,
			Y:          rc.Min.Y,
			Width:      rc.Dx(),
			Height:     rc.Dy(),
			IsSelected: true,
		})
	}
	return faces, nil
}

// UpdateFaceDetectionResults replaces a photo's face regions via
// read-modify-write under the photo lock, so concurrent updates never lose
// writes. CreationDate is preserved; ModificationDate is refreshed.
func (r *Repository) UpdateFaceDetectionResults(ctx context.Context, id string, faces []domain.FaceRegion) error {
	release, err := r.locks.Acquire(ctx, id)
	if err != nil {
		return domain.WrapOp("Repository.UpdateFaceDetectionResults", err)
	}
	defer release()

	meta, err := r.index.Load(ctx, id)
	if err != nil {
		return domain.WrapOp("Repository.UpdateFaceDetectionResults", err)
	}
	updated := meta.Clone()
	updated.Faces = faces
	if err := r.index.Update(ctx, updated); err != nil {
		return domain.WrapOp("Repository.UpdateFaceDetectionResults", err)
	}
	r.publish(ctx, domain.EventFacesUpdated, id)
	return nil
}

// MaskPhoto destructively applies the first of modes to the photo's
// selected face regions and overwrites the stored content. The previous
// pixels are unrecoverable afterwards. An empty mode list, a "none" mode,
// or an empty selection is an identity operation: the stored bytes and
// metadata are left untouched, so no lossy re-encode happens.
func (r *Repository) MaskPhoto(ctx context.Context, id string, modes []domain.MaskMode) error {
	release, err := r.locks.Acquire(ctx, id)
	if err != nil {
		return domain.WrapOp("Repository.MaskPhoto", err)
	}
	defer release()

	ctx, span := tracer.Op(ctx, "mask_photo", id)
	defer span.End()

	meta, err := r.index.Load(ctx, id)
	if err != nil {
		tracer.Fail(span, err)
		return domain.WrapOp("Repository.MaskPhoto", err)
	}

	mode := domain.MaskModeNone
	if len(modes) > 0 {
		mode = modes[0]
	}
	if mode == domain.MaskModeNone || len(meta.SelectedFaces()) == 0 {
		return nil
	}
	tracer.MaskMode(span, string(mode))

	data, err := r.loadPlaintextLocked(ctx, id)
	if err != nil {
		tracer.Fail(span, err)
		return domain.WrapOp("Repository.MaskPhoto", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return domain.NewVaultError("Repository.MaskPhoto", domain.ErrInvalidInput,
			"content is not a decodable image")
	}

	masked, err := imaging.ApplyMasks(img, meta.Faces, modes)
	if err != nil {
		tracer.Fail(span, err)
		return domain.WrapOp("Repository.MaskPhoto", err)
	}
	out, err := imaging.Encode(masked, domain.ExportJPEG, r.imaging.JPEGQuality)
	if err != nil {
		tracer.Fail(span, err)
		return domain.WrapOp("Repository.MaskPhoto", err)
	}

	updated := meta.Clone()
	updated.MaskMode = mode
	updated.ModificationDate = time.Now().UTC()
	if _, err := r.savePhotoLocked(ctx, updated, out); err != nil {
		tracer.Fail(span, err)
		return err
	}

	// Cached pixels predate the mask; drop them so the next load shows the
	// masked content.
	r.cache.Evict(id)
	r.publish(ctx, domain.EventPhotoMasked, id)
	r.logger.Info("photo masked", "photo_id", id)
	return nil
}

// PreloadAdjacent warms the full-image cache for the neighbors of the
// currently displayed photo, count on each side in newest-first order.
// Fire-and-forget; failures never surface.
func (r *Repository) PreloadAdjacent(ctx context.Context, currentID string, count int) {
	if count <= 0 {
		return
	}
	records, err := r.index.LoadAll(ctx)
	if err != nil {
		r.logger.Warn("preload skipped, index unavailable", "error", err)
		return
	}
	idx := -1
	for i, m := range records {
		if m.ID == currentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	var ids []string
	for i := idx - count; i <= idx+count; i++ {
		if i < 0 || i >= len(records) || i == idx {
			continue
		}
		ids = append(ids, records[i].ID)
	}
	r.preloader.Preload(ids, cache.KindImage, cache.PriorityNormal)
}

// PreloadThumbnails warms the thumbnail tier for ids at low priority, for
// grid views scrolling toward them.
func (r *Repository) PreloadThumbnails(ids []string) {
	r.preloader.Preload(ids, cache.KindThumbnail, cache.PriorityLow)
}

// loadIntoCache is the preloader's LoadFunc: decrypt, decode, and populate
// one cache tier for id.
func (r *Repository) loadIntoCache(ctx context.Context, id string, kind cache.Kind) error {
	release, err := r.locks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	data, err := r.loadPlaintextLocked(ctx, id)
	if err != nil {
		return err
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if kind == cache.KindThumbnail {
		r.cache.Put(id, kind, imaging.Thumbnail(img, r.imaging.ThumbnailMaxDim))
	} else {
		r.cache.Put(id, kind, img)
	}
	r.mm.Enforce(ctx)
	return nil
}

// SetVisible marks a photo as on screen, exempting its cache entries from
// eviction until it scrolls away.
func (r *Repository) SetVisible(id string, visible bool) {
	r.mm.SetVisible(id, visible)
}

// ClearCache drops every cached decoded image, visible or not.
func (r *Repository) ClearCache(ctx context.Context) {
	r.mm.FreeAll(ctx)
}

// SweepCache runs one eviction pass including the thumbnail idle expiry.
// Registered as a scheduled task.
func (r *Repository) SweepCache(ctx context.Context) error {
	r.mm.Sweep(ctx)
	return nil
}

func (r *Repository) publish(ctx context.Context, t domain.EventType, photoID string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, domain.Event{Type: t, Timestamp: time.Now(), PhotoID: photoID})
}
