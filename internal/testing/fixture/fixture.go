// Package fixture assembles a memory-backed ledger with a seeded catalog for tests.
package fixture

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/delivery"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("INVENTORY_TEST_MODE") == "" {
			_ = os.Setenv("INVENTORY_TEST_MODE", "1")
		}
	})
}

// Seeded catalog ids.
const (
	Kitchen   int64 = 1
	Store     int64 = 2
	Central   int64 = 3
	Flour     int64 = 10
	Sugar     int64 = 11
	Oil       int64 = 12
	Discarded int64 = 99
)

// Actors with each default role.
var (
	Admin      = shared.Actor{ID: 1, Role: shared.RoleAdmin}
	Supervisor = shared.Actor{ID: 2, Role: shared.RoleSupervisor}
	Operator   = shared.Actor{ID: 3, Role: shared.RoleOperator}
	Other      = shared.Actor{ID: 4, Role: shared.RoleOperator}
)

// World is one isolated ledger.
type World struct {
	Store    *memory.Store
	Outbox   *memory.Outbox
	Services *app.Services
	Registry *prometheus.Registry
}

// D parses a decimal literal.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// New builds a ledger with three active locations and three active items.
func New(t testing.TB) *World {
	t.Helper()
	st := memory.New()
	cat := st.Catalog()
	cat.PutLocation(catalog.Location{ID: Kitchen, Code: "KIT", Name: "Main Kitchen", Type: catalog.LocationKitchen, Active: true})
	cat.PutLocation(catalog.Location{ID: Store, Code: "STR", Name: "Dry Store", Type: catalog.LocationStore, Active: true})
	cat.PutLocation(catalog.Location{ID: Central, Code: "CEN", Name: "Central Warehouse", Type: catalog.LocationCentral, Active: true})
	cat.PutItem(catalog.Item{ID: Flour, Code: "FLR", Name: "Flour", Unit: "kg", Active: true})
	cat.PutItem(catalog.Item{ID: Sugar, Code: "SGR", Name: "Sugar", Unit: "kg", Active: true})
	cat.PutItem(catalog.Item{ID: Oil, Code: "OIL", Name: "Oil", Unit: "l", Active: true})
	cat.PutItem(catalog.Item{ID: Discarded, Code: "OLD", Name: "Discontinued", Unit: "ea", Active: false})

	outbox := &memory.Outbox{}
	registry := prometheus.NewRegistry()
	services := app.NewServices(app.MemoryBackend(st), app.ServiceDeps{
		Authz:    shared.DefaultRoles(),
		Notifier: outbox,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Tracker:  observability.NewTracker(registry),
	})
	return &World{Store: st, Outbox: outbox, Services: services, Registry: registry}
}

// Today is the calendar day postings default to.
func Today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthOf returns the first and last day of the month holding t.
func MonthOf(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

// CreatePeriod creates a DRAFT period for the month holding day and locks prices for every item.
func (w *World) CreatePeriod(t testing.TB, day time.Time, prices map[int64]string) period.Period {
	t.Helper()
	start, end := MonthOf(day)
	p, err := w.Services.Period.CreatePeriod(context.Background(), period.CreatePeriodInput{
		Name: start.Format("2006-01"), StartDate: start, EndDate: end,
	}, Admin)
	require.NoError(t, err)
	for item, price := range prices {
		w.Store.Catalog().SetPrice(p.ID, item, D(price))
	}
	return p
}

// OpenPeriod creates and opens the current month with a flat 2.00 price for every active item.
func (w *World) OpenPeriod(t testing.TB) period.Period {
	t.Helper()
	p := w.CreatePeriod(t, Today(), map[int64]string{Flour: "2.00", Sugar: "2.00", Oil: "2.00"})
	opened, err := w.Services.Period.OpenPeriod(context.Background(), p.ID, Admin)
	require.NoError(t, err)
	return opened
}

// Receive posts a one-line delivery dated today.
func (w *World) Receive(t testing.TB, location, item int64, qty, price string) delivery.PostResult {
	t.Helper()
	ctx := context.Background()
	d, err := w.Services.Delivery.CreateDraft(ctx, delivery.CreateInput{
		LocationID:   location,
		DeliveryDate: Today(),
		Lines:        []delivery.LineInput{{ItemID: item, Quantity: D(qty), UnitPrice: D(price)}},
	}, Operator)
	require.NoError(t, err)
	res, err := w.Services.Delivery.Post(ctx, d.ID, Operator)
	require.NoError(t, err)
	return res
}

// ConfirmAll marks every location of the period READY.
func (w *World) ConfirmAll(t testing.TB, periodID int64) {
	t.Helper()
	ctx := context.Background()
	locs, err := w.Services.Period.Locations(ctx, periodID)
	require.NoError(t, err)
	for _, l := range locs {
		_, err := w.Services.Reconciliation.Confirm(ctx, periodID, l.LocationID, Operator)
		require.NoError(t, err)
	}
}
