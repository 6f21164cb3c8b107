package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

type countingLookup struct {
	items     map[int64]Item
	locations map[int64]Location
	prices    map[[2]int64]decimal.Decimal
	calls     map[string]int
}

func newCountingLookup() *countingLookup {
	return &countingLookup{
		items:     map[int64]Item{1: {ID: 1, Code: "FLOUR", Name: "Flour", Unit: "kg", Active: true}, 2: {ID: 2, Code: "OLD", Active: false}},
		locations: map[int64]Location{10: {ID: 10, Code: "K1", Name: "Kitchen", Type: LocationKitchen, Active: true}},
		prices:    map[[2]int64]decimal.Decimal{{5, 1}: decimal.RequireFromString("2.50")},
		calls:     map[string]int{},
	}
}

func (c *countingLookup) Item(_ context.Context, id int64) (Item, error) {
	c.calls["item"]++
	item, ok := c.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (c *countingLookup) Location(_ context.Context, id int64) (Location, error) {
	c.calls["location"]++
	loc, ok := c.locations[id]
	if !ok {
		return Location{}, ErrNotFound
	}
	return loc, nil
}

func (c *countingLookup) ActiveLocations(context.Context) ([]Location, error) {
	c.calls["active"]++
	var out []Location
	for _, l := range c.locations {
		if l.Active {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *countingLookup) PeriodPrice(_ context.Context, periodID, itemID int64) (decimal.Decimal, bool, error) {
	c.calls["price"]++
	p, ok := c.prices[[2]int64{periodID, itemID}]
	return p, ok, nil
}

func (c *countingLookup) PricesComplete(context.Context, int64) (bool, error) {
	c.calls["complete"]++
	return true, nil
}

func newTestCache(t *testing.T) (*CachedLookup, *countingLookup) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	next := newCountingLookup()
	return NewCachedLookup(next, client, time.Minute, nil), next
}

func TestCachedLookupReadsThrough(t *testing.T) {
	ctx := context.Background()
	cache, next := newTestCache(t)

	for i := 0; i < 3; i++ {
		item, err := cache.Item(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, "FLOUR", item.Code)
	}
	require.Equal(t, 1, next.calls["item"])

	price, found, err := cache.PeriodPrice(ctx, 5, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, price.Equal(decimal.RequireFromString("2.5")))
	_, _, _ = cache.PeriodPrice(ctx, 5, 1)
	require.Equal(t, 1, next.calls["price"])

	_, found, err = cache.PeriodPrice(ctx, 5, 99)
	require.NoError(t, err)
	require.False(t, found)
}

func TestCachedLookupInvalidate(t *testing.T) {
	ctx := context.Background()
	cache, next := newTestCache(t)

	_, err := cache.Location(ctx, 10)
	require.NoError(t, err)
	_, err = cache.ActiveLocations(ctx)
	require.NoError(t, err)

	next.locations[10] = Location{ID: 10, Code: "K1", Name: "Main Kitchen", Type: LocationKitchen, Active: true}
	require.NoError(t, cache.Invalidate(ctx, KindLocation, 10))

	loc, err := cache.Location(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, "Main Kitchen", loc.Name)
	require.Equal(t, 2, next.calls["location"])

	_, err = cache.ActiveLocations(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, next.calls["active"])

	_, _, _ = cache.PeriodPrice(ctx, 5, 1)
	next.prices[[2]int64{5, 1}] = decimal.RequireFromString("2.75")
	require.NoError(t, cache.Invalidate(ctx, KindPrice, 5))
	price, _, err := cache.PeriodPrice(ctx, 5, 1)
	require.NoError(t, err)
	require.Equal(t, "2.75", price.StringFixed(2))
}

func TestCachedLookupDoesNotCacheNegativeAnswers(t *testing.T) {
	ctx := context.Background()
	cache, next := newTestCache(t)

	_, found, err := cache.PeriodPrice(ctx, 5, 2)
	require.NoError(t, err)
	require.False(t, found)

	next.prices[[2]int64{5, 2}] = decimal.RequireFromString("0.80")
	price, found, err := cache.PeriodPrice(ctx, 5, 2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "0.80", price.StringFixed(2))
	require.Equal(t, 2, next.calls["price"])

	item, err := cache.Item(ctx, 2)
	require.NoError(t, err)
	require.False(t, item.Active)
	next.items[2] = Item{ID: 2, Code: "OLD", Active: true}
	item, err = cache.Item(ctx, 2)
	require.NoError(t, err)
	require.True(t, item.Active)
	require.Equal(t, 2, next.calls["item"])
}

func TestCachedLookupSkipsErrorsAndCompleteness(t *testing.T) {
	ctx := context.Background()
	cache, next := newTestCache(t)

	_, err := cache.Item(ctx, 404)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = cache.Item(ctx, 404)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 2, next.calls["item"])

	_, _ = cache.PricesComplete(ctx, 5)
	_, _ = cache.PricesComplete(ctx, 5)
	require.Equal(t, 2, next.calls["complete"])
}

func TestRequireActiveItem(t *testing.T) {
	ctx := context.Background()
	next := newCountingLookup()

	_, err := RequireActiveItem(ctx, next, 1)
	require.NoError(t, err)

	_, err = RequireActiveItem(ctx, next, 2)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = RequireActiveItem(ctx, next, 3)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = RequireActiveLocation(ctx, next, 11)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
