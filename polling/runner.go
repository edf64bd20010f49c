package polling

import (
	"context"
	"sync"
	"time"

	"meshmon/config"
	"meshmon/logger"
)

// Item is one unit of fetched content (a feed entry, an alert, a
// scraped row).
type Item struct {
	ID    string
	Title string
	Body  string
}

// Fetcher retrieves the current items of one source. Implementations do
// the I/O; the runner owns scheduling and change detection.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Item, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context) ([]Item, error)

func (f FetchFunc) Fetch(ctx context.Context) ([]Item, error) { return f(ctx) }

// Source couples a configured schedule with a fetcher. Composition, not
// inheritance: the cache and scheduler are shared collaborators.
type Source struct {
	Cfg     config.SourceConfig
	Fetcher Fetcher

	initialDone bool
}

// Notify receives the outbound text for an item worth announcing.
type Notify func(source config.SourceConfig, item Item, isNew bool)

// Runner drives every enabled source off the supervisory tick. The
// first successful fetch of a source only primes the change detector;
// its items are never announced (discard-initial-items).
type Runner struct {
	mu      sync.Mutex
	cache   *Cache
	sources []*Source
	notify  Notify
}

func NewRunner(cache *Cache, notify Notify) *Runner {
	return &Runner{cache: cache, notify: notify}
}

func (r *Runner) Add(src *Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, src)
}

// Poll runs one pass over all due sources.
func (r *Runner) Poll(ctx context.Context) {
	r.mu.Lock()
	sources := append([]*Source(nil), r.sources...)
	r.mu.Unlock()

	for _, src := range sources {
		r.pollSource(ctx, src)
	}
}

func (r *Runner) pollSource(ctx context.Context, src *Source) {
	interval := src.Cfg.CheckInterval
	if interval <= 0 {
		interval = time.Hour
	}
	if !r.cache.ShouldPoll(src.Cfg.ID, interval) {
		return
	}
	r.cache.RecordPoll(src.Cfg.ID)

	items, err := src.Fetcher.Fetch(ctx)
	if err != nil {
		// Transient by assumption: log and let the next interval retry.
		// Previously seen state stays untouched.
		logger.Warnf("polling: %s: fetch: %v", src.Cfg.ID, err)
		return
	}

	first := !src.initialDone
	for _, item := range items {
		isNew, isChanged := r.cache.DetectChange(src.Cfg.ID+"/"+item.ID, item)
		if first {
			continue
		}
		if isNew || isChanged {
			r.notify(src.Cfg, item, isNew)
		}
	}
	src.initialDone = true
}
