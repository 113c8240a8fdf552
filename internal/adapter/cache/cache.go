// Package cache holds decoded pixel buffers in two independently bounded
// in-memory stores keyed by photo id: full images (few, large) and
// thumbnails (many, small). The cache tracks its own resident set, byte
// cost, and per-entry last-access time; the eviction manager queries that
// state rather than trusting cooperative load/unload reports.
package cache

import (
	"image"
	"sync"
	"time"

	"photovault/internal/infra/config"
)

// Kind selects which of the two stores an operation targets.
type Kind int

const (
	KindImage Kind = iota
	KindThumbnail
)

func (k Kind) String() string {
	if k == KindThumbnail {
		return "thumbnail"
	}
	return "image"
}

// Resident describes one cached entry for eviction ranking.
type Resident struct {
	ID         string
	LastAccess time.Time
	Cost       int64
}

// Cost estimates the decoded in-memory footprint of img (RGBA bytes).
func Cost(img image.Image) int64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

type entry struct {
	img        image.Image
	cost       int64
	lastAccess time.Time
}

// store is one bounded key→image map. The count and byte bounds here are
// the cache's own hard safety limit; exceeding either trims the least
// recently accessed entries unconditionally.
type store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	maxCount int
	maxBytes int64
	bytes    int64
}

func newStore(maxCount int, maxBytes int64) *store {
	return &store{
		entries:  make(map[string]*entry),
		maxCount: maxCount,
		maxBytes: maxBytes,
	}
}

func (s *store) put(id string, img image.Image) {
	cost := Cost(img)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[id]; ok {
		s.bytes -= old.cost
	}
	s.entries[id] = &entry{img: img, cost: cost, lastAccess: time.Now()}
	s.bytes += cost

	for (len(s.entries) > s.maxCount || s.bytes > s.maxBytes) && len(s.entries) > 1 {
		s.evictOldestLocked(id)
	}
}

// evictOldestLocked removes the least recently accessed entry, sparing the
// entry just inserted so a put can never evict its own value.
func (s *store) evictOldestLocked(spare string) {
	var victim string
	var oldest time.Time
	for id, e := range s.entries {
		if id == spare {
			continue
		}
		if victim == "" || e.lastAccess.Before(oldest) {
			victim = id
			oldest = e.lastAccess
		}
	}
	if victim == "" {
		return
	}
	s.bytes -= s.entries[victim].cost
	delete(s.entries, victim)
}

func (s *store) get(id string) (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e.lastAccess = time.Now()
	return e.img, true
}

func (s *store) contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

func (s *store) evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		s.bytes -= e.cost
		delete(s.entries, id)
	}
}

func (s *store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.bytes = 0
}

func (s *store) residents() []Resident {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Resident, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Resident{ID: id, LastAccess: e.lastAccess, Cost: e.cost})
	}
	return out
}

func (s *store) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *store) bytesUsed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// ImageCache is the two-tier decoded-image cache.
type ImageCache struct {
	full  *store
	thumb *store
}

// New creates a cache with the configured bounds.
func New(cfg config.CacheConfig) *ImageCache {
	return &ImageCache{
		full:  newStore(cfg.MaxFullImages, cfg.MaxFullImageBytes),
		thumb: newStore(cfg.MaxThumbnails, cfg.MaxThumbnailBytes),
	}
}

func (c *ImageCache) byKind(kind Kind) *store {
	if kind == KindThumbnail {
		return c.thumb
	}
	return c.full
}

// Put stores img for id in the selected tier. A nil image is ignored.
func (c *ImageCache) Put(id string, kind Kind, img image.Image) {
	if img == nil || id == "" {
		return
	}
	c.byKind(kind).put(id, img)
}

// Get returns the cached image for id, refreshing its last-access time.
func (c *ImageCache) Get(id string, kind Kind) (image.Image, bool) {
	return c.byKind(kind).get(id)
}

// Contains reports residency without refreshing last-access time.
func (c *ImageCache) Contains(id string, kind Kind) bool {
	return c.byKind(kind).contains(id)
}

// EvictKind removes id from one tier.
func (c *ImageCache) EvictKind(id string, kind Kind) {
	c.byKind(kind).evict(id)
}

// Evict removes id from both tiers.
func (c *ImageCache) Evict(id string) {
	c.full.evict(id)
	c.thumb.evict(id)
}

// ClearAll empties both tiers.
func (c *ImageCache) ClearAll() {
	c.full.clear()
	c.thumb.clear()
}

// Residents lists the resident entries of one tier for eviction ranking.
func (c *ImageCache) Residents(kind Kind) []Resident {
	return c.byKind(kind).residents()
}

// Count returns the resident entry count of one tier.
func (c *ImageCache) Count(kind Kind) int {
	return c.byKind(kind).count()
}

// BytesUsed returns the byte cost of one tier.
func (c *ImageCache) BytesUsed(kind Kind) int64 {
	return c.byKind(kind).bytesUsed()
}
