package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

func fixtureProducts() []domain.Product {
	return []domain.Product{
		{ID: "p3", Name: "Sparkling Water", Description: "Crisp carbonated water", Price: 149, Currency: "USD"},
		{ID: "p1", Name: "Classic Potato Chips", Description: "Crunchy salted chips", Price: 379, Currency: "USD"},
		{ID: "p2", Name: "Chocolate Bar", Description: "Dark chocolate, 70% cocoa", Price: 249, Currency: "USD"},
	}
}

func TestMemoryCatalog_Get(t *testing.T) {
	c := NewMemoryCatalog(fixtureProducts())

	p, err := c.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Classic Potato Chips", p.Name)
	assert.Equal(t, int64(379), p.Price)

	_, err = c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMemoryCatalog_Search_EmptyQueryReturnsAllInIDOrder(t *testing.T) {
	c := NewMemoryCatalog(fixtureProducts())

	results, err := c.Search(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "p1", results[0].ID)
	assert.Equal(t, "p2", results[1].ID)
	assert.Equal(t, "p3", results[2].ID)
}

func TestMemoryCatalog_Search_NameOutranksDescription(t *testing.T) {
	c := NewMemoryCatalog(fixtureProducts())

	// "chocolate" hits p2's name and description, nothing else
	results, err := c.Search(context.Background(), "chocolate")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p2", results[0].ID)

	// "cr" hits p1's description and p3's description; id order breaks the tie
	results, err = c.Search(context.Background(), "cr")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].ID)
	assert.Equal(t, "p3", results[1].ID)
}

func TestMemoryCatalog_Search_CaseInsensitive(t *testing.T) {
	c := NewMemoryCatalog(fixtureProducts())

	results, err := c.Search(context.Background(), "POTATO")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ID)
}

func TestMemoryCatalog_Search_NoMatches(t *testing.T) {
	c := NewMemoryCatalog(fixtureProducts())

	results, err := c.Search(context.Background(), "zebra")
	require.NoError(t, err)
	assert.Empty(t, results)
}
