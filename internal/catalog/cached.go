package catalog

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

// CachedCatalog reads through the SQLite repository and memoizes the
// product set. Products never change at runtime, so the cache has no
// invalidation path.
type CachedCatalog struct {
	repo *Repository
	sfg  singleflight.Group // collapses concurrent first loads

	mu     sync.RWMutex
	loaded bool
	items  []domain.Product
	byID   map[string]domain.Product
}

func NewCachedCatalog(repo *Repository) *CachedCatalog {
	return &CachedCatalog{repo: repo}
}

func (c *CachedCatalog) Search(ctx context.Context, query string) ([]domain.Product, error) {
	items, err := c.all(ctx)
	if err != nil {
		return nil, err
	}
	return rankProducts(items, query), nil
}

func (c *CachedCatalog) Get(ctx context.Context, id string) (*domain.Product, error) {
	if _, err := c.all(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (c *CachedCatalog) all(ctx context.Context) ([]domain.Product, error) {
	c.mu.RLock()
	if c.loaded {
		items := c.items
		c.mu.RUnlock()
		return items, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.sfg.Do("products", func() (interface{}, error) {
		products, err := c.repo.GetAllProducts(ctx)
		if err != nil {
			return nil, err
		}

		byID := make(map[string]domain.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		c.mu.Lock()
		c.items = products
		c.byID = byID
		c.loaded = true
		c.mu.Unlock()

		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Product), nil
}
