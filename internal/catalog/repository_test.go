package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepository(t *testing.T) *Repository {
	repo, err := NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.RunMigrations("./migrations"))
	return repo
}

func TestRepository_GetAllProducts(t *testing.T) {
	repo := setupRepository(t)

	products, err := repo.GetAllProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 5)

	// Seed data comes back in id order
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "Classic Potato Chips", products[0].Name)
	assert.Equal(t, int64(379), products[0].Price)
	assert.Nil(t, products[0].Available)

	assert.Equal(t, "p2", products[1].ID)
	require.NotNil(t, products[1].Available)
	assert.Equal(t, int32(200), *products[1].Available)
}

func TestRepository_GetProduct(t *testing.T) {
	repo := setupRepository(t)

	p, err := repo.GetProduct(context.Background(), "p3")
	require.NoError(t, err)
	assert.Equal(t, "Dark Chocolate Bar", p.Name)
	assert.Equal(t, int64(459), p.Price)
	require.NotNil(t, p.Available)
	assert.Equal(t, int32(80), *p.Available)
}

func TestRepository_GetProduct_NotFound(t *testing.T) {
	repo := setupRepository(t)

	_, err := repo.GetProduct(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCachedCatalog_ReadsThroughRepository(t *testing.T) {
	repo := setupRepository(t)
	c := NewCachedCatalog(repo)
	ctx := context.Background()

	p, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Classic Potato Chips", p.Name)

	results, err := c.Search(ctx, "chocolate")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "p3", results[0].ID)

	_, err = c.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCachedCatalog_ServesFromCacheAfterFirstLoad(t *testing.T) {
	repo := setupRepository(t)
	c := NewCachedCatalog(repo)
	ctx := context.Background()

	_, err := c.Get(ctx, "p1")
	require.NoError(t, err)

	// Once loaded, the catalog no longer touches the database
	require.NoError(t, repo.Close())

	p, err := c.Get(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "Sparkling Water 12-pack", p.Name)
}
