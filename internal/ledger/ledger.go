package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ErrInvalidQuantity rejects non-positive mutation quantities.
var ErrInvalidQuantity = shared.Validation("ledger: quantity must be positive", shared.FieldError{Field: "quantity", Rule: "gt"})

// WACPlaces is the stored precision of a ledger row's WAC, matching location_stock.wac.
const WACPlaces = 10

// WeightedAverage returns the WAC after receiving qty at price on top of onHand at wac,
// rounded to WACPlaces so every store holds the same value.
func WeightedAverage(onHand, wac, qty, price decimal.Decimal) decimal.Decimal {
	if onHand.IsZero() {
		return price.Round(WACPlaces)
	}
	newOnHand := onHand.Add(qty)
	if newOnHand.IsZero() {
		return wac
	}
	return onHand.Mul(wac).Add(qty.Mul(price)).Div(newOnHand).Round(WACPlaces)
}

// Increase adds e.Qty at e.UnitCost and recomputes the row's WAC.
func Increase(ctx context.Context, tx TxRepository, typ MovementType, e Entry) (Stock, error) {
	if !e.Qty.IsPositive() {
		return Stock{}, ErrInvalidQuantity
	}
	if e.UnitCost.IsNegative() {
		return Stock{}, shared.Validation("ledger: unit cost must not be negative", shared.FieldError{Field: "unit_cost", Rule: "gte"})
	}
	stock, err := lock(ctx, tx, e.LocationID, e.ItemID)
	if err != nil {
		return Stock{}, err
	}
	stock.WAC = WeightedAverage(stock.OnHand, stock.WAC, e.Qty, e.UnitCost)
	stock.OnHand = stock.OnHand.Add(e.Qty)
	stock.UpdatedAt = e.PostedAt
	if err := tx.UpsertStock(ctx, stock); err != nil {
		return Stock{}, fmt.Errorf("ledger: upsert stock: %w", err)
	}
	if err := record(ctx, tx, typ, e, e.Qty, e.UnitCost); err != nil {
		return Stock{}, err
	}
	return stock, nil
}

// Decrease removes e.Qty and returns the WAC in force at that moment. WAC is left untouched.
func Decrease(ctx context.Context, tx TxRepository, typ MovementType, e Entry) (decimal.Decimal, Stock, error) {
	if !e.Qty.IsPositive() {
		return decimal.Zero, Stock{}, ErrInvalidQuantity
	}
	stock, err := lock(ctx, tx, e.LocationID, e.ItemID)
	if err != nil {
		return decimal.Zero, Stock{}, err
	}
	if e.Qty.GreaterThan(stock.OnHand) {
		return decimal.Zero, Stock{}, shared.InsufficientStock([]shared.Shortage{{
			LocationID: e.LocationID, ItemID: e.ItemID, Requested: e.Qty, Available: stock.OnHand,
		}})
	}
	wac := stock.WAC
	stock.OnHand = stock.OnHand.Sub(e.Qty)
	stock.UpdatedAt = e.PostedAt
	if err := tx.UpsertStock(ctx, stock); err != nil {
		return decimal.Zero, Stock{}, fmt.Errorf("ledger: upsert stock: %w", err)
	}
	if err := record(ctx, tx, typ, e, e.Qty.Neg(), wac); err != nil {
		return decimal.Zero, Stock{}, err
	}
	return wac, stock, nil
}

// MoveInput describes a paired decrement and increment between two locations.
type MoveInput struct {
	Entry
	ToLocationID int64
	// UnitCost, when valid, replaces the source WAC as the destination's incoming price.
	UnitCost decimal.NullDecimal
}

// Move decreases the source then increases the destination within the caller's transaction.
func Move(ctx context.Context, tx TxRepository, in MoveInput) (decimal.Decimal, error) {
	if in.LocationID == in.ToLocationID {
		return decimal.Zero, shared.Validation("ledger: source and destination must differ", shared.FieldError{Field: "to_location_id", Rule: "nefield"})
	}
	wac, _, err := Decrease(ctx, tx, MovementTransferOut, in.Entry)
	if err != nil {
		return decimal.Zero, err
	}
	cost := wac
	if in.UnitCost.Valid {
		cost = in.UnitCost.Decimal
	}
	dest := in.Entry
	dest.LocationID = in.ToLocationID
	dest.UnitCost = cost
	if _, err := Increase(ctx, tx, MovementTransferIn, dest); err != nil {
		return decimal.Zero, err
	}
	return cost, nil
}

// Demand is a requested outgoing quantity for one item.
type Demand struct {
	ItemID int64
	Qty    decimal.Decimal
}

// AggregateDemand merges duplicate items and orders by item id.
func AggregateDemand(ds []Demand) []Demand {
	totals := make(map[int64]decimal.Decimal, len(ds))
	for _, d := range ds {
		totals[d.ItemID] = totals[d.ItemID].Add(d.Qty)
	}
	out := make([]Demand, 0, len(totals))
	for id, qty := range totals {
		out = append(out, Demand{ItemID: id, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Shortfalls locks every demanded row in item order and reports each one that cannot be covered.
func Shortfalls(ctx context.Context, tx TxRepository, locationID int64, demand []Demand) ([]shared.Shortage, error) {
	var shortages []shared.Shortage
	for _, d := range AggregateDemand(demand) {
		stock, err := lock(ctx, tx, locationID, d.ItemID)
		if err != nil {
			return nil, err
		}
		if d.Qty.GreaterThan(stock.OnHand) {
			shortages = append(shortages, shared.Shortage{
				LocationID: locationID, ItemID: d.ItemID, Requested: d.Qty, Available: stock.OnHand,
			})
		}
	}
	return shortages, nil
}

// Available reports shortfalls without locking, for reads outside a mutating transaction.
func Available(ctx context.Context, tx TxRepository, locationID int64, demand []Demand) ([]shared.Shortage, map[int64]Stock, error) {
	var shortages []shared.Shortage
	rows := make(map[int64]Stock)
	for _, d := range AggregateDemand(demand) {
		stock, err := tx.GetStock(ctx, locationID, d.ItemID)
		if errors.Is(err, ErrStockNotFound) {
			stock = Stock{LocationID: locationID, ItemID: d.ItemID}
		} else if err != nil {
			return nil, nil, fmt.Errorf("ledger: get stock: %w", err)
		}
		rows[d.ItemID] = stock
		if d.Qty.GreaterThan(stock.OnHand) {
			shortages = append(shortages, shared.Shortage{
				LocationID: locationID, ItemID: d.ItemID, Requested: d.Qty, Available: stock.OnHand,
			})
		}
	}
	return shortages, rows, nil
}

func lock(ctx context.Context, tx TxRepository, locationID, itemID int64) (Stock, error) {
	stock, err := tx.GetStockForUpdate(ctx, locationID, itemID)
	if errors.Is(err, ErrStockNotFound) {
		return Stock{LocationID: locationID, ItemID: itemID}, nil
	}
	if err != nil {
		return Stock{}, fmt.Errorf("ledger: lock stock: %w", err)
	}
	return stock, nil
}

func record(ctx context.Context, tx TxRepository, typ MovementType, e Entry, qty, cost decimal.Decimal) error {
	_, err := tx.InsertMovement(ctx, Movement{
		PeriodID:   e.PeriodID,
		LocationID: e.LocationID,
		ItemID:     e.ItemID,
		Type:       typ,
		Qty:        qty,
		UnitCost:   cost,
		RefType:    e.RefType,
		RefID:      e.RefID,
		PostedAt:   e.PostedAt,
	})
	if err != nil {
		return fmt.Errorf("ledger: insert movement: %w", err)
	}
	return nil
}
