// Package catalog exposes the read-only item, location, and price list collaborators.
package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// LocationType classifies a site.
type LocationType string

const (
	LocationKitchen   LocationType = "KITCHEN"
	LocationStore     LocationType = "STORE"
	LocationCentral   LocationType = "CENTRAL"
	LocationWarehouse LocationType = "WAREHOUSE"
)

// Item is a catalog entry referenced by ledger rows.
type Item struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Unit   string `json:"unit"`
	Active bool   `json:"active"`
}

// Location is a stock-holding site.
type Location struct {
	ID     int64        `json:"id"`
	Code   string       `json:"code"`
	Name   string       `json:"name"`
	Type   LocationType `json:"type"`
	Active bool         `json:"active"`
}

// ErrNotFound is returned by Lookup implementations for absent records.
var ErrNotFound = errors.New("catalog: not found")

// Lookup is the read-only catalog and price list collaborator.
type Lookup interface {
	Item(ctx context.Context, id int64) (Item, error)
	Location(ctx context.Context, id int64) (Location, error)
	ActiveLocations(ctx context.Context) ([]Location, error)
	// PeriodPrice returns the locked price for item in period; found is false when none was set.
	PeriodPrice(ctx context.Context, periodID, itemID int64) (price decimal.Decimal, found bool, err error)
	PricesComplete(ctx context.Context, periodID int64) (bool, error)
}

// RequireActiveItem loads an item and rejects missing or inactive entries.
func RequireActiveItem(ctx context.Context, l Lookup, id int64) (Item, error) {
	item, err := l.Item(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Item{}, shared.NotFound("item", id)
	}
	if err != nil {
		return Item{}, err
	}
	if !item.Active {
		return Item{}, shared.Validation("item is inactive", shared.FieldError{Field: "item_id", Rule: "active"})
	}
	return item, nil
}

// RequireActiveLocation loads a location and rejects missing or inactive entries.
func RequireActiveLocation(ctx context.Context, l Lookup, id int64) (Location, error) {
	loc, err := l.Location(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Location{}, shared.NotFound("location", id)
	}
	if err != nil {
		return Location{}, err
	}
	if !loc.Active {
		return Location{}, shared.Validation("location is inactive", shared.FieldError{Field: "location_id", Rule: "active"})
	}
	return loc, nil
}

// RequireActiveItems validates every distinct item id.
func RequireActiveItems(ctx context.Context, l Lookup, ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := RequireActiveItem(ctx, l, id); err != nil {
			return err
		}
	}
	return nil
}
