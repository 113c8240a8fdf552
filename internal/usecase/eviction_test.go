package usecase

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photovault/internal/adapter/cache"
	"photovault/internal/infra/config"
	"photovault/internal/infra/logger"
)

func discardLogger() *slog.Logger {
	return logger.Discard()
}

func evictionTestCache() *cache.ImageCache {
	return cache.New(config.CacheConfig{
		MaxFullImages:     16,
		MaxFullImageBytes: 1 << 30,
		MaxThumbnails:     64,
		MaxThumbnailBytes: 1 << 30,
	})
}

func evictionTestConfig() config.EvictionConfig {
	return config.EvictionConfig{
		MaxResidentFullImages: 3,
		MaxResidentThumbnails: 5,
		ThumbnailIdleExpiry:   60 * time.Second,
	}
}

func smallImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func TestEnforceTrimsFullImagesLRUFirst(t *testing.T) {
	c := evictionTestCache()
	mm := NewMemoryManager(c, evictionTestConfig(), nil, discardLogger())

	for i := 0; i < 6; i++ {
		c.Put(fmt.Sprintf("p%d", i), cache.KindImage, smallImage())
		time.Sleep(2 * time.Millisecond)
	}

	mm.Enforce(context.Background())

	assert.Equal(t, 3, c.Count(cache.KindImage))
	// The three most recently inserted survive.
	for _, id := range []string{"p3", "p4", "p5"} {
		assert.True(t, c.Contains(id, cache.KindImage), "%s should survive", id)
	}
	for _, id := range []string{"p0", "p1", "p2"} {
		assert.False(t, c.Contains(id, cache.KindImage), "%s should be evicted", id)
	}
}

func TestEnforceExemptsVisiblePhotos(t *testing.T) {
	c := evictionTestCache()
	mm := NewMemoryManager(c, evictionTestConfig(), nil, discardLogger())

	for i := 0; i < 6; i++ {
		c.Put(fmt.Sprintf("p%d", i), cache.KindImage, smallImage())
		time.Sleep(2 * time.Millisecond)
	}
	// p0 is the oldest but on screen.
	mm.SetVisible("p0", true)

	mm.Enforce(context.Background())

	assert.True(t, c.Contains("p0", cache.KindImage), "visible photo must not be evicted")
	assert.False(t, c.Contains("p1", cache.KindImage), "oldest non-visible photo goes first")
}

func TestEnforceUnderThresholdIsNoop(t *testing.T) {
	c := evictionTestCache()
	mm := NewMemoryManager(c, evictionTestConfig(), nil, discardLogger())

	c.Put("a", cache.KindImage, smallImage())
	c.Put("b", cache.KindImage, smallImage())

	mm.Enforce(context.Background())
	assert.Equal(t, 2, c.Count(cache.KindImage))
}

func TestSweepExpiresIdleThumbnails(t *testing.T) {
	c := evictionTestCache()
	cfg := evictionTestConfig()
	cfg.ThumbnailIdleExpiry = 10 * time.Millisecond
	mm := NewMemoryManager(c, cfg, nil, discardLogger())

	c.Put("stale", cache.KindThumbnail, smallImage())
	time.Sleep(25 * time.Millisecond)
	c.Put("fresh", cache.KindThumbnail, smallImage())

	mm.Sweep(context.Background())

	assert.False(t, c.Contains("stale", cache.KindThumbnail))
	assert.True(t, c.Contains("fresh", cache.KindThumbnail))
}

func TestSweepKeepsIdleVisibleThumbnail(t *testing.T) {
	c := evictionTestCache()
	cfg := evictionTestConfig()
	cfg.ThumbnailIdleExpiry = 10 * time.Millisecond
	mm := NewMemoryManager(c, cfg, nil, discardLogger())

	c.Put("onscreen", cache.KindThumbnail, smallImage())
	mm.SetVisible("onscreen", true)
	time.Sleep(25 * time.Millisecond)

	mm.Sweep(context.Background())
	assert.True(t, c.Contains("onscreen", cache.KindThumbnail))
}

func TestFreeAllDropsEverythingIncludingVisible(t *testing.T) {
	c := evictionTestCache()
	mm := NewMemoryManager(c, evictionTestConfig(), nil, discardLogger())

	c.Put("a", cache.KindImage, smallImage())
	c.Put("b", cache.KindThumbnail, smallImage())
	mm.SetVisible("a", true)

	mm.FreeAll(context.Background())

	require.Equal(t, 0, c.Count(cache.KindImage))
	require.Equal(t, 0, c.Count(cache.KindThumbnail))
}

func TestSetVisibleToggle(t *testing.T) {
	c := evictionTestCache()
	mm := NewMemoryManager(c, evictionTestConfig(), nil, discardLogger())

	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("p%d", i), cache.KindImage, smallImage())
		time.Sleep(2 * time.Millisecond)
	}
	mm.SetVisible("p0", true)
	mm.SetVisible("p0", false) // scrolled off screen again

	mm.Enforce(context.Background())
	assert.False(t, c.Contains("p0", cache.KindImage), "photo no longer visible is evictable")
}
