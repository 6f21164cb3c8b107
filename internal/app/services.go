package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/approval"
	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/delivery"
	"github.com/odyssey-erp/stockledger/internal/issue"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/ncr"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/period"
	"github.com/odyssey-erp/stockledger/internal/periodclose"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/reconciliation"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
	"github.com/odyssey-erp/stockledger/internal/store/postgres"
	"github.com/odyssey-erp/stockledger/internal/transfer"
)

// Backend supplies one unit of work per repository port plus the catalog and audit collaborators.
type Backend struct {
	Ledger         db.Transactor[ledger.TxRepository]
	NCR            db.Transactor[ncr.Repository]
	Approval       db.Transactor[approval.TxRepository]
	Period         db.Transactor[period.TxRepository]
	Reconciliation db.Transactor[reconciliation.TxRepository]
	Delivery       db.Transactor[delivery.TxRepository]
	Issue          db.Transactor[issue.TxRepository]
	Transfer       db.Transactor[transfer.TxRepository]
	Close          db.Transactor[periodclose.TxRepository]
	Catalog        catalog.Lookup
	Audit          shared.AuditPort
}

// MemoryBackend serves every port from one in-memory store.
func MemoryBackend(s *memory.Store) Backend {
	return Backend{
		Ledger:         memory.For[ledger.TxRepository](s),
		NCR:            memory.For[ncr.Repository](s),
		Approval:       memory.For[approval.TxRepository](s),
		Period:         memory.For[period.TxRepository](s),
		Reconciliation: memory.For[reconciliation.TxRepository](s),
		Delivery:       memory.For[delivery.TxRepository](s),
		Issue:          memory.For[issue.TxRepository](s),
		Transfer:       memory.For[transfer.TxRepository](s),
		Close:          memory.For[periodclose.TxRepository](s),
		Catalog:        s.Catalog(),
		Audit:          s.Audit(),
	}
}

// PostgresBackend serves every port from pool. The close transaction carries its own wait and run bounds.
func PostgresBackend(pool *pgxpool.Pool, cfg *Config) Backend {
	s := postgres.New(pool)
	opts := db.TxOptions{Timeout: cfg.AppRequestTimeout}
	closeOpts := db.TxOptions{MaxWait: cfg.CloseTxMaxWait, Timeout: cfg.CloseTxTimeout}
	return Backend{
		Ledger:         postgres.For[ledger.TxRepository](s, opts),
		NCR:            postgres.For[ncr.Repository](s, opts),
		Approval:       postgres.For[approval.TxRepository](s, opts),
		Period:         postgres.For[period.TxRepository](s, opts),
		Reconciliation: postgres.For[reconciliation.TxRepository](s, opts),
		Delivery:       postgres.For[delivery.TxRepository](s, opts),
		Issue:          postgres.For[issue.TxRepository](s, opts),
		Transfer:       postgres.For[transfer.TxRepository](s, opts),
		Close:          postgres.For[periodclose.TxRepository](s, closeOpts),
		Catalog:        s.Catalog(),
		Audit:          shared.NewAuditLogger(pool),
	}
}

// ServiceDeps are the cross-cutting collaborators every service receives.
type ServiceDeps struct {
	Authz             shared.Authorizer
	Notifier          shared.Notifier
	Logger            *slog.Logger
	Tracker           *observability.Tracker
	VarianceThreshold decimal.Decimal
}

// Services is the assembled domain layer.
type Services struct {
	Catalog        catalog.Lookup
	Ledger         *ledger.Service
	NCR            *ncr.Service
	Delivery       *delivery.Service
	Issue          *issue.Service
	Transfer       *transfer.Service
	Period         *period.Service
	Reconciliation *reconciliation.Service
	Close          *periodclose.Executor
	Gate           *approval.Gate
}

// NewServices wires the processors, the close executor, and the approval gate over b.
func NewServices(b Backend, deps ServiceDeps) *Services {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authz := deps.Authz
	if authz == nil {
		authz = shared.DefaultRoles()
	}

	deliveries := delivery.NewService(b.Delivery, b.Catalog, authz, deps.Notifier, b.Audit, logger)
	if !deps.VarianceThreshold.IsZero() {
		deliveries.SetVarianceThreshold(deps.VarianceThreshold)
	}
	transfers := transfer.NewService(b.Transfer, b.Catalog, authz, deps.Notifier, b.Audit, logger)
	executor := periodclose.NewExecutor(b.Close, deps.Notifier, b.Audit, logger, deps.Tracker)

	gate := approval.NewGate(approval.GateConfig{
		Repo: b.Approval,
		Handlers: approval.Handlers{
			PeriodClose: executor,
			Transfer:    transfers,
		},
		Authz:    authz,
		Notifier: deps.Notifier,
		Audit:    b.Audit,
		Logger:   logger,
	})

	return &Services{
		Catalog:        b.Catalog,
		Ledger:         ledger.NewService(b.Ledger, b.Catalog),
		NCR:            ncr.NewService(b.NCR, b.Catalog, authz, deps.Notifier, b.Audit, logger),
		Delivery:       deliveries,
		Issue:          issue.NewService(b.Issue, b.Catalog, authz, b.Audit, logger),
		Transfer:       transfers,
		Period:         period.NewService(b.Period, b.Catalog, authz, deps.Notifier, b.Audit, logger),
		Reconciliation: reconciliation.NewService(b.Reconciliation, authz, b.Audit, logger),
		Close:          executor,
		Gate:           gate,
	}
}
