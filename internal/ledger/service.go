package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Service exposes read accessors over the ledger.
type Service struct {
	repo    db.Transactor[TxRepository]
	catalog catalog.Lookup
}

// NewService builds a ledger read service.
func NewService(repo db.Transactor[TxRepository], lookup catalog.Lookup) *Service {
	return &Service{repo: repo, catalog: lookup}
}

// Get returns the row for (location, item); an unstocked item reads as zero.
func (s *Service) Get(ctx context.Context, locationID, itemID int64) (Stock, error) {
	if _, err := catalog.RequireActiveLocation(ctx, s.catalog, locationID); err != nil {
		return Stock{}, err
	}
	var out Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStock(ctx, locationID, itemID)
		if errors.Is(err, ErrStockNotFound) {
			if _, err := s.catalog.Item(ctx, itemID); errors.Is(err, catalog.ErrNotFound) {
				return shared.NotFound("item", itemID)
			}
			out = Stock{LocationID: locationID, ItemID: itemID}
			return nil
		}
		if err != nil {
			return fmt.Errorf("ledger: get stock: %w", err)
		}
		out = stock
		return nil
	})
	return out, err
}

// ListLocation returns every ledger row at a location.
func (s *Service) ListLocation(ctx context.Context, locationID int64) ([]Stock, error) {
	if _, err := catalog.RequireActiveLocation(ctx, s.catalog, locationID); err != nil {
		return nil, err
	}
	var out []Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListStock(ctx, locationID)
		out = rows
		return err
	})
	return out, err
}

// StockCard returns movements for (location, item) in posting order.
func (s *Service) StockCard(ctx context.Context, locationID, itemID int64) ([]Movement, error) {
	var out []Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListMovements(ctx, locationID, itemID)
		out = rows
		return err
	})
	return out, err
}

// Discrepancy is a ledger row that disagrees with its stock card.
type Discrepancy struct {
	LocationID int64           `json:"location_id"`
	ItemID     int64           `json:"item_id"`
	OnHand     decimal.Decimal `json:"on_hand"`
	CardTotal  decimal.Decimal `json:"card_total"`
}

// Verify checks that every row is non-negative and equals the signed sum of its movements.
func (s *Service) Verify(ctx context.Context) ([]Discrepancy, error) {
	locations, err := s.catalog.ActiveLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: active locations: %w", err)
	}
	var out []Discrepancy
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, loc := range locations {
			rows, err := tx.ListStock(ctx, loc.ID)
			if err != nil {
				return err
			}
			for _, row := range rows {
				moves, err := tx.ListMovements(ctx, loc.ID, row.ItemID)
				if err != nil {
					return err
				}
				total := decimal.Zero
				for _, m := range moves {
					total = total.Add(m.Qty)
				}
				if row.OnHand.IsNegative() || !total.Equal(row.OnHand) {
					out = append(out, Discrepancy{LocationID: loc.ID, ItemID: row.ItemID, OnHand: row.OnHand, CardTotal: total})
				}
			}
		}
		return nil
	})
	return out, err
}
