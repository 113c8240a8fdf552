package cache

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"photovault/internal/infra/config"
)

// Priority orders background preload work. High-priority requests are
// drained before normal and low ones.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// LoadFunc decodes and populates the cache for one id. It is supplied by
// the repository (decrypt, decode, put); the preloader only schedules it.
type LoadFunc func(ctx context.Context, id string, kind Kind) error

type request struct {
	id   string
	kind Kind
}

// Preloader schedules detached, best-effort decode-and-populate work at
// three priorities. Failures are logged and otherwise ignored; they never
// fail the caller's current operation. There is no cancellation token per
// request: a preload superseded by rapid navigation is allowed to complete
// wastefully, but a completed load only ever adds a valid cache entry.
type Preloader struct {
	cache   *ImageCache
	loader  LoadFunc
	limiter *rate.Limiter
	queues  [3]chan request
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPreloader creates a preloader and starts its worker.
func NewPreloader(c *ImageCache, loader LoadFunc, cfg config.CacheConfig, logger *slog.Logger) *Preloader {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Preloader{
		cache:   c,
		loader:  loader,
		limiter: rate.NewLimiter(rate.Limit(cfg.PreloadPerSecond), 1),
		logger:  logger,
		cancel:  cancel,
	}
	for i := range p.queues {
		p.queues[i] = make(chan request, cfg.PreloadQueueSize)
	}
	p.wg.Add(1)
	go p.work(ctx)
	return p
}

// Preload schedules background population of the cache for ids. Already
// resident ids are skipped up front; a full queue drops the request. Never
// blocks and never returns an error.
func (p *Preloader) Preload(ids []string, kind Kind, prio Priority) {
	q := p.queues[prio]
	for _, id := range ids {
		if id == "" || p.cache.Contains(id, kind) {
			continue
		}
		select {
		case q <- request{id: id, kind: kind}:
		default:
			p.logger.Debug("preload queue full, dropping request",
				"photo_id", id, "kind", kind.String(), "priority", prio.String())
		}
	}
}

// Stop cancels in-flight work and waits for the worker to exit.
func (p *Preloader) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Preloader) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		// Drain high-priority work before looking at the other queues.
		select {
		case <-ctx.Done():
			return
		case req := <-p.queues[PriorityHigh]:
			p.run(ctx, req)
			continue
		default:
		}

		// Then normal before low, so thumbnail warm-ups never starve
		// adjacent-photo loads.
		select {
		case req := <-p.queues[PriorityNormal]:
			p.run(ctx, req)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case req := <-p.queues[PriorityHigh]:
			p.run(ctx, req)
		case req := <-p.queues[PriorityNormal]:
			p.run(ctx, req)
		case req := <-p.queues[PriorityLow]:
			p.run(ctx, req)
		}
	}
}

func (p *Preloader) run(ctx context.Context, req request) {
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}
	if p.cache.Contains(req.id, req.kind) {
		return
	}
	if err := p.loader(ctx, req.id, req.kind); err != nil {
		// Swallowed: preload failure must never corrupt cache state or
		// surface to whoever triggered the warm-up.
		p.logger.Warn("preload failed", "photo_id", req.id, "kind", req.kind.String(), "error", err)
	}
}
