package catalog

import (
	"context"
	"time"

	"exchange-service/internal/models"
	"exchange-service/internal/util"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// Source is the catalog collaborator. The core never writes through it.
type Source interface {
	GetMaterialByID(ctx context.Context, id string) (*models.Material, error)
	GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error)
}

// FreshSource is a Source that can bypass its own caching
type FreshSource interface {
	GetMaterialFresh(ctx context.Context, id string) (*models.Material, error)
}

// CurrentMaterial reads a material past any cache. Availability and the
// advertised quantity are checked against what it returns.
func CurrentMaterial(ctx context.Context, src Source, id string) (*models.Material, error) {
	if fresh, ok := src.(FreshSource); ok {
		return fresh.GetMaterialFresh(ctx, id)
	}
	return src.GetMaterialByID(ctx, id)
}

type cachedMaterial struct {
	material  models.Material
	expiresAt time.Time
}

// Cached is a read-through LRU in front of a Source for material lookups.
// Organizations always go to the source because the blocked flag must be current.
type Cached struct {
	source Source
	cache  *lru.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCached wraps source with an LRU of the given size. A size <= 0 disables caching.
func NewCached(source Source, size int, ttl time.Duration) *Cached {
	c := &Cached{
		source: source,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
	if size > 0 {
		cache, err := lru.New(size)
		if err != nil {
			c.logger.Warn("Catalog cache disabled", zap.Error(err))
		} else {
			c.cache = cache
		}
	}
	return c
}

// GetMaterialByID returns a material, served from cache while fresh
func (c *Cached) GetMaterialByID(ctx context.Context, id string) (*models.Material, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(id); ok {
			entry := cached.(cachedMaterial)
			if time.Now().Before(entry.expiresAt) {
				material := entry.material
				return &material, nil
			}
			c.cache.Remove(id)
		}
	}

	material, err := c.source.GetMaterialByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Add(id, cachedMaterial{
			material:  *material,
			expiresAt: time.Now().Add(c.ttl),
		})
	}
	return material, nil
}

// GetMaterialFresh reads through to the source and refreshes the cached entry
func (c *Cached) GetMaterialFresh(ctx context.Context, id string) (*models.Material, error) {
	c.Invalidate(id)
	return c.GetMaterialByID(ctx, id)
}

// GetOrganizationByID always reads through
func (c *Cached) GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	return c.source.GetOrganizationByID(ctx, id)
}

// Invalidate drops a cached material, e.g. after the catalog reports a change
func (c *Cached) Invalidate(id string) {
	if c.cache != nil {
		c.cache.Remove(id)
	}
}
