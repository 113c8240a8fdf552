package usecase

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"photovault/internal/adapter/cache"
	"photovault/internal/domain"
	"photovault/internal/infra/config"
)

// MemoryManager enforces the vault's memory-pressure policy over the image
// cache: at most a few decoded full images, a larger allowance of
// thumbnails, and an idle expiry for thumbnails. Photos marked visible are
// exempt from eviction so on-screen content never disappears under
// pressure. Residency is read from the cache itself; the manager tracks
// only visibility.
type MemoryManager struct {
	cache  *cache.ImageCache
	cfg    config.EvictionConfig
	logger *slog.Logger
	bus    domain.EventBus

	mu      sync.Mutex
	visible map[string]bool
}

// NewMemoryManager creates a memory manager bound to the cache. bus may be
// nil when no one listens for eviction events.
func NewMemoryManager(c *cache.ImageCache, cfg config.EvictionConfig, bus domain.EventBus, logger *slog.Logger) *MemoryManager {
	return &MemoryManager{
		cache:   c,
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		visible: make(map[string]bool),
	}
}

// SetVisible marks a photo as currently on screen (or not). Visible photos
// survive Enforce and Sweep; they are still dropped by FreeAll.
func (m *MemoryManager) SetVisible(photoID string, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if visible {
		m.visible[photoID] = true
	} else {
		delete(m.visible, photoID)
	}
}

// Enforce trims each cache tier down to its resident threshold, evicting
// least recently accessed entries first and never touching visible photos.
// It is called after every cache-populating operation.
func (m *MemoryManager) Enforce(ctx context.Context) {
	m.enforceTier(ctx, cache.KindImage, m.cfg.MaxResidentFullImages)
	m.enforceTier(ctx, cache.KindThumbnail, m.cfg.MaxResidentThumbnails)
}

// Sweep runs Enforce plus the thumbnail idle expiry: thumbnails not
// accessed within the configured window are dropped regardless of count.
// Scheduled periodically.
func (m *MemoryManager) Sweep(ctx context.Context) {
	m.Enforce(ctx)

	if m.cfg.ThumbnailIdleExpiry <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.cfg.ThumbnailIdleExpiry)
	for _, r := range m.cache.Residents(cache.KindThumbnail) {
		if m.isVisible(r.ID) || !r.LastAccess.Before(cutoff) {
			continue
		}
		m.cache.EvictKind(r.ID, cache.KindThumbnail)
		m.publishEvicted(ctx, r.ID)
		m.logger.Debug("expired idle thumbnail", "photo_id", r.ID)
	}
}

// FreeAll empties both cache tiers unconditionally, visible photos
// included. Used on lock, backgrounding, or explicit memory-pressure
// response; subsequent loads decrypt from disk again.
func (m *MemoryManager) FreeAll(ctx context.Context) {
	m.cache.ClearAll()
	if m.bus != nil {
		m.bus.Publish(ctx, domain.Event{
			Type:      domain.EventCacheCleared,
			Timestamp: time.Now(),
		})
	}
	m.logger.Info("cleared all cached images")
}

func (m *MemoryManager) enforceTier(ctx context.Context, kind cache.Kind, max int) {
	residents := m.cache.Residents(kind)
	if len(residents) <= max {
		return
	}

	// Candidates are non-visible residents, oldest access first.
	candidates := residents[:0]
	for _, r := range residents {
		if !m.isVisible(r.ID) {
			candidates = append(candidates, r)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastAccess.Before(candidates[j].LastAccess)
	})

	excess := len(residents) - max
	for i := 0; i < excess && i < len(candidates); i++ {
		m.cache.EvictKind(candidates[i].ID, kind)
		m.publishEvicted(ctx, candidates[i].ID)
		m.logger.Debug("evicted cached image",
			"photo_id", candidates[i].ID, "kind", kind.String())
	}
}

func (m *MemoryManager) isVisible(photoID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible[photoID]
}

func (m *MemoryManager) publishEvicted(ctx context.Context, photoID string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(ctx, domain.Event{
		Type:      domain.EventCacheEvicted,
		Timestamp: time.Now(),
		PhotoID:   photoID,
	})
}
