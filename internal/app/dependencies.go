package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/billing/internal/health"
	"github.com/vladislavdragonenkov/billing/internal/metrics"
	"github.com/vladislavdragonenkov/billing/internal/service/idempotency"
	"github.com/vladislavdragonenkov/billing/internal/service/inventory"
	"github.com/vladislavdragonenkov/billing/internal/service/invoice"
	"github.com/vladislavdragonenkov/billing/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/billing/internal/service/payment"
	"github.com/vladislavdragonenkov/billing/internal/service/series"
	"github.com/vladislavdragonenkov/billing/internal/service/shipment"
	"github.com/vladislavdragonenkov/billing/internal/storage/memory"
	"github.com/vladislavdragonenkov/billing/internal/storage/postgres"
)

// runtimeDependencies - репозитории выбранного хранилища.
type runtimeDependencies struct {
	tx              domain.Transactor
	repo            domain.OrderRepository
	timelineRepo    domain.TimelineRepository
	seriesRepo      domain.SeriesRepository
	invoiceRepo     domain.InvoiceRepository
	shipmentRepo    domain.ShipmentRepository
	methodRepo      domain.ShippingMethodRepository
	paymentRepo     domain.PaymentRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

// initRuntimeDependencies открывает хранилище, указанное в cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		return newMemoryDependencies(logger), nil
	case StorageDriverPostgres:
		return newPostgresDependencies(ctx, cfg, logger)
	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newMemoryDependencies(logger *log.Entry) runtimeDependencies {
	store := memory.NewStore()
	logger.WithField("storage", StorageDriverMemory).Info("using in-memory storage")
	return runtimeDependencies{
		tx:              store.Tx,
		repo:            store.Orders,
		timelineRepo:    store.Timeline,
		seriesRepo:      store.Series,
		invoiceRepo:     store.Invoices,
		shipmentRepo:    store.Shipments,
		methodRepo:      store.ShippingMethods,
		paymentRepo:     store.Payments,
		outboxRepo:      store.Outbox,
		idempotencyRepo: store.Idempotency,
		storageChecker:  healthcheck.NewSimpleChecker(StorageDriverMemory, func() error { return nil }),
		closeFn:         func() error { return nil },
	}
}

func newPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return runtimeDependencies{}, fmt.Errorf("postgres storage requires a DSN")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return runtimeDependencies{}, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres schema is up to date")
	}

	logger.WithField("storage", StorageDriverPostgres).Info("using postgres storage")
	return runtimeDependencies{
		tx:              postgres.NewTransactor(store),
		repo:            postgres.NewOrderRepository(store),
		timelineRepo:    postgres.NewTimelineRepository(store),
		seriesRepo:      postgres.NewSeriesRepository(store),
		invoiceRepo:     postgres.NewInvoiceRepository(store),
		shipmentRepo:    postgres.NewShipmentRepository(store),
		methodRepo:      postgres.NewShippingMethodRepository(store),
		paymentRepo:     postgres.NewPaymentRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		storageChecker:  healthcheck.NewPingChecker(StorageDriverPostgres, 0, store.Ping),
		closeFn:         store.Close,
	}, nil
}

// Services - собранные сервисы billing поверх одного хранилища.
type Services struct {
	Orders    *lifecycle.Service
	Payments  *payment.Ledger
	Series    *series.Registry
	Invoices  *invoice.Issuer
	Shipments *shipment.Coordinator
	Guard     *idempotency.Guard
}

// newServices связывает сервисы между собой: lifecycle получает итоги оплат от ledger,
// issuer и coordinator сериализуются через lifecycle.Touch.
func newServices(deps runtimeDependencies, cfg Config, m *metrics.BillingMetrics, logger *log.Entry) *Services {
	ledger := payment.NewLedger(deps.tx, deps.repo, deps.paymentRepo, deps.outboxRepo,
		payment.WithLogger(logger.WithField("component", "payment-ledger")),
		payment.WithMetrics(m),
	)
	orders := lifecycle.NewService(lifecycle.Dependencies{
		Tx:        deps.tx,
		Orders:    deps.repo,
		Timeline:  deps.timelineRepo,
		Shipments: deps.shipmentRepo,
		Payments:  ledger,
		Inventory: inventory.NewGate(logger.WithField("component", "inventory-gate")),
		Outbox:    deps.outboxRepo,
	},
		lifecycle.WithLogger(logger.WithField("component", "order-lifecycle")),
		lifecycle.WithMetrics(m),
		lifecycle.WithRetryConfig(cfg.orderRetry()),
	)
	registry := series.NewRegistry(deps.tx, deps.seriesRepo, deps.outboxRepo,
		series.WithLogger(logger.WithField("component", "series-registry")),
		series.WithMetrics(m),
	)
	issuer := invoice.NewIssuer(invoice.Dependencies{
		Tx:       deps.tx,
		Orders:   deps.repo,
		Invoices: deps.invoiceRepo,
		Series:   registry,
		Units:    orders,
		Outbox:   deps.outboxRepo,
	},
		invoice.WithLogger(logger.WithField("component", "invoice-issuer")),
		invoice.WithMetrics(m),
	)
	coordinator := shipment.NewCoordinator(shipment.Dependencies{
		Tx:        deps.tx,
		Orders:    deps.repo,
		Shipments: deps.shipmentRepo,
		Methods:   deps.methodRepo,
		Units:     orders,
		Outbox:    deps.outboxRepo,
	},
		shipment.WithLogger(logger.WithField("component", "shipment-coordinator")),
		shipment.WithMetrics(m),
	)

	return &Services{
		Orders:    orders,
		Payments:  ledger,
		Series:    registry,
		Invoices:  issuer,
		Shipments: coordinator,
		Guard:     idempotency.NewGuard(deps.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("component", "idempotency-guard")),
	}
}

func (c Config) orderRetry() lifecycle.RetryConfig {
	return lifecycle.RetryConfig{
		MaxAttempts:  c.OrderRetryAttempts,
		InitialDelay: c.OrderRetryInitialDelay,
		MaxDelay:     c.OrderRetryMaxDelay,
	}
}
