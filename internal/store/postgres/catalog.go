package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/catalog"
)

// Catalog reads items, locations, and locked period prices straight from the pool.
type Catalog struct {
	pool *pgxpool.Pool
}

var _ catalog.Lookup = (*Catalog)(nil)

func (c *Catalog) Item(ctx context.Context, id int64) (catalog.Item, error) {
	var item catalog.Item
	err := c.pool.QueryRow(ctx, `SELECT id, code, name, unit, active FROM items WHERE id=$1`, id).
		Scan(&item.ID, &item.Code, &item.Name, &item.Unit, &item.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return item, err
}

func scanLocation(row pgx.Row) (catalog.Location, error) {
	var (
		loc  catalog.Location
		kind string
	)
	err := row.Scan(&loc.ID, &loc.Code, &loc.Name, &kind, &loc.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Location{}, catalog.ErrNotFound
	}
	loc.Type = catalog.LocationType(kind)
	return loc, err
}

func (c *Catalog) Location(ctx context.Context, id int64) (catalog.Location, error) {
	return scanLocation(c.pool.QueryRow(ctx, `SELECT id, code, name, type, active FROM locations WHERE id=$1`, id))
}

func (c *Catalog) ActiveLocations(ctx context.Context) ([]catalog.Location, error) {
	rows, err := c.pool.Query(ctx, `SELECT id, code, name, type, active FROM locations WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanLocation)
}

func (c *Catalog) PeriodPrice(ctx context.Context, periodID, itemID int64) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := c.pool.QueryRow(ctx, `SELECT price FROM period_prices WHERE period_id=$1 AND item_id=$2`, periodID, itemID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return price, true, nil
}

// PricesComplete reports whether every active item has a locked price for the period.
func (c *Catalog) PricesComplete(ctx context.Context, periodID int64) (bool, error) {
	var missing int
	err := c.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items i
LEFT JOIN period_prices p ON p.item_id = i.id AND p.period_id = $1
WHERE i.active AND p.item_id IS NULL`, periodID).Scan(&missing)
	if err != nil {
		return false, err
	}
	return missing == 0, nil
}
