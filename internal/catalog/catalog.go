package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

var ErrProductNotFound = errors.New("product not found")

// Catalog is read-only product lookup and search.
type Catalog interface {
	// Search returns products matching the query, best match first.
	// An empty query returns the full catalog in id order.
	Search(ctx context.Context, query string) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
}

// MemoryCatalog serves a fixed product set loaded at startup.
type MemoryCatalog struct {
	byID  map[string]domain.Product
	items []domain.Product
}

func NewMemoryCatalog(products []domain.Product) *MemoryCatalog {
	c := &MemoryCatalog{
		byID:  make(map[string]domain.Product, len(products)),
		items: append([]domain.Product(nil), products...),
	}
	sort.Slice(c.items, func(i, j int) bool { return c.items[i].ID < c.items[j].ID })
	for _, p := range c.items {
		c.byID[p.ID] = p
	}
	return c
}

func (c *MemoryCatalog) Search(_ context.Context, query string) ([]domain.Product, error) {
	return rankProducts(c.items, query), nil
}

func (c *MemoryCatalog) Get(_ context.Context, id string) (*domain.Product, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

// rankProducts does case-insensitive substring matching over name and
// description. Name matches outrank description matches; ties break on
// id so results are stable. The input must already be in id order.
func rankProducts(products []domain.Product, query string) []domain.Product {
	if strings.TrimSpace(query) == "" {
		return append([]domain.Product(nil), products...)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	type scored struct {
		product domain.Product
		score   int
	}

	var matches []scored
	for _, p := range products {
		score := 0
		if strings.Contains(strings.ToLower(p.Name), q) {
			score += 2
		}
		if strings.Contains(strings.ToLower(p.Description), q) {
			score++
		}
		if score > 0 {
			matches = append(matches, scored{product: p, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	out := make([]domain.Product, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.product)
	}
	return out
}
