package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/catalog"
)

type priceKey struct{ period, item int64 }

// Catalog is an in-memory catalog.Lookup with seeding helpers.
type Catalog struct {
	mu        sync.RWMutex
	items     map[int64]catalog.Item
	locations map[int64]catalog.Location
	prices    map[priceKey]decimal.Decimal
}

var _ catalog.Lookup = (*Catalog)(nil)

func newCatalog() *Catalog {
	return &Catalog{
		items:     map[int64]catalog.Item{},
		locations: map[int64]catalog.Location{},
		prices:    map[priceKey]decimal.Decimal{},
	}
}

// PutItem adds or replaces an item.
func (c *Catalog) PutItem(item catalog.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.ID] = item
}

// PutLocation adds or replaces a location.
func (c *Catalog) PutLocation(loc catalog.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations[loc.ID] = loc
}

// SetPrice locks price for item in period.
func (c *Catalog) SetPrice(periodID, itemID int64, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[priceKey{periodID, itemID}] = price
}

func (c *Catalog) Item(_ context.Context, id int64) (catalog.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return item, nil
}

func (c *Catalog) Location(_ context.Context, id int64) (catalog.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.locations[id]
	if !ok {
		return catalog.Location{}, catalog.ErrNotFound
	}
	return loc, nil
}

func (c *Catalog) ActiveLocations(context.Context) ([]catalog.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]catalog.Location, 0, len(c.locations))
	for _, loc := range c.locations {
		if loc.Active {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Catalog) PeriodPrice(_ context.Context, periodID, itemID int64) (decimal.Decimal, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[priceKey{periodID, itemID}]
	return price, ok, nil
}

// PricesComplete reports whether every active item has a price for the period.
func (c *Catalog) PricesComplete(_ context.Context, periodID int64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, item := range c.items {
		if !item.Active {
			continue
		}
		if _, ok := c.prices[priceKey{periodID, id}]; !ok {
			return false, nil
		}
	}
	return true, nil
}
