package application

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/atvirokodosprendimai/holocron/internal/domain"
	"golang.org/x/sync/errgroup"
)

// UnknownName is what a resource that cannot be fetched resolves to.
const UnknownName = "Unknown"

// NameResolver maps upstream resource URLs to display names. Successful
// lookups are memoized for the lifetime of the resolver; failures are not.
type NameResolver struct {
	catalogue   domain.Catalogue
	logger      *slog.Logger
	concurrency int

	mu    sync.RWMutex
	names map[string]string
}

func NewNameResolver(catalogue domain.Catalogue, concurrency int, logger *slog.Logger) *NameResolver {
	if concurrency <= 0 {
		concurrency = DefaultFetchConcurrency
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &NameResolver{
		catalogue:   catalogue,
		logger:      logger,
		concurrency: concurrency,
		names:       make(map[string]string),
	}
}

func (r *NameResolver) ResolveName(ctx context.Context, url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return UnknownName
	}
	if name, ok := r.Cached(url); ok {
		return name
	}

	res, err := r.catalogue.GetResource(ctx, url)
	if err != nil {
		r.logger.DebugContext(ctx, "resolve name failed", "url", url, "error", err)
		return UnknownName
	}
	name := res.DisplayName()
	if strings.TrimSpace(name) == "" {
		return UnknownName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.names[url]; ok {
		return existing
	}
	r.names[url] = name
	return name
}

// ResolveNames resolves a batch of URLs concurrently. Duplicates are fetched once.
func (r *NameResolver) ResolveNames(ctx context.Context, urls []string) map[string]string {
	out := make(map[string]string, len(urls))
	pending := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, seen := out[u]; seen {
			continue
		}
		if name, ok := r.Cached(u); ok {
			out[u] = name
			continue
		}
		out[u] = UnknownName
		pending = append(pending, u)
	}
	if len(pending) == 0 {
		return out
	}

	resolved := make([]string, len(pending))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, u := range pending {
		g.Go(func() error {
			resolved[i] = r.ResolveName(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	for i, u := range pending {
		out[u] = resolved[i]
	}
	return out
}

func (r *NameResolver) Cached(url string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[url]
	return name, ok
}
