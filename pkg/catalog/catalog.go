// Package catalog serves product listings from the backend through a
// short-lived cache.
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/usererr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FeaturedProductID is always shown first among featured products.
const FeaturedProductID = "cmf-earbuds"

// CategoryAll disables category filtering.
const CategoryAll = "all"

type Backend interface {
	GetAllProducts(ctx context.Context) ([]models.Product, error)
	GetProductsByCategory(ctx context.Context, category models.Category) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (models.Product, error)
}

type entry struct {
	value   any
	expires time.Time
}

// Catalog caches backend reads for ttl. Concurrent misses for the same key
// share one backend call.
type Catalog struct {
	backend Backend
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	sfg     singleflight.Group
	mu      sync.RWMutex
	entries map[string]entry
	gen     uint64
}

func New(backend Backend, ttl time.Duration, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		backend: backend,
		ttl:     ttl,
		logger:  logger.Named("catalog"),
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func (c *Catalog) All(ctx context.Context) ([]models.Product, error) {
	return load(c, ctx, "all", func(ctx context.Context) ([]models.Product, error) {
		return c.backend.GetAllProducts(ctx)
	})
}

func (c *Catalog) ByCategory(ctx context.Context, category models.Category) ([]models.Product, error) {
	if !category.Valid() {
		return nil, usererr.New(usererr.KindNotFound, "Category not found")
	}
	return load(c, ctx, "category:"+string(category), func(ctx context.Context) ([]models.Product, error) {
		return c.backend.GetProductsByCategory(ctx, category)
	})
}

// Product reads one product. The backend shows unpublished products to
// admins, so only published products are shared between callers.
func (c *Catalog) Product(ctx context.Context, id string) (models.Product, error) {
	return loadShared(c, ctx, "product:"+id, func(ctx context.Context) (models.Product, error) {
		return c.backend.GetProduct(ctx, id)
	}, func(p models.Product) bool { return p.Published })
}

// Invalidate drops every cached entry. Loads already in flight do not
// repopulate the cache.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.gen++
}

func load[T any](c *Catalog, ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	return loadShared(c, ctx, key, fetch, nil)
}

// loadShared caches under key only values for which shared reports true.
// With a shared predicate, signed-in callers only join backend calls made
// for the same principal.
func loadShared[T any](c *Catalog, ctx context.Context, key string, fetch func(context.Context) (T, error), shared func(T) bool) (T, error) {
	var zero T

	c.mu.RLock()
	e, ok := c.entries[key]
	gen := c.gen
	c.mu.RUnlock()
	if ok && c.now().Before(e.expires) {
		return e.value.(T), nil
	}

	flight := key
	if shared != nil {
		if id, ok := identity.FromContext(ctx); ok {
			flight = key + "@" + id.Principal
		}
	}

	v, err, _ := c.sfg.Do(flight, func() (any, error) {
		// A caller giving up must not fail the others waiting on this load.
		value, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if shared != nil && !shared(value) {
			return value, nil
		}
		c.mu.Lock()
		if c.gen == gen {
			c.entries[key] = entry{value: value, expires: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		c.logger.Warn("Failed to load from backend", zap.String("key", key), zap.Error(err))
		return zero, usererr.SanitizeStorefront(err)
	}
	return v.(T), nil
}

// Filter keeps products in category (or every category for "" and "all")
// whose name or description contains query, ignoring case.
func Filter(products []models.Product, category string, query string) []models.Product {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if category != "" && category != CategoryAll && string(p.Category) != category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Featured returns at most limit products with FeaturedProductID first.
func Featured(products []models.Product, limit int) []models.Product {
	out := make([]models.Product, 0, limit)
	for _, p := range products {
		if p.ID == FeaturedProductID {
			out = append(out, p)
			break
		}
	}
	for _, p := range products {
		if len(out) >= limit {
			break
		}
		if p.ID != FeaturedProductID {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
