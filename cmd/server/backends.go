package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	authservice "landregistry/internal/auth/service"
	"landregistry/internal/auth/store/revocation"
	documentservice "landregistry/internal/document/service"
	documentstore "landregistry/internal/document/store"
	identityservice "landregistry/internal/identity/service"
	identitystore "landregistry/internal/identity/store"
	ledgerservice "landregistry/internal/ledger/service"
	ledgerstore "landregistry/internal/ledger/store"
	parcelservice "landregistry/internal/parcel/service"
	parcelstore "landregistry/internal/parcel/store"
	"landregistry/internal/platform/config"
	"landregistry/internal/platform/database"
	"landregistry/internal/platform/metrics"
	platformredis "landregistry/internal/platform/redis"
	httptransport "landregistry/internal/transport/http"
	audit "landregistry/pkg/platform/audit"
	auditmemory "landregistry/pkg/platform/audit/store/memory"
	auditpostgres "landregistry/pkg/platform/audit/store/postgres"
)

// backends holds the storage selected by Database.Driver.
type backends struct {
	driver       string
	users        identityservice.Store
	parcels      parcelservice.Store
	transactions ledgerservice.Store
	approvals    ledgerservice.ApprovalTx
	documents    documentservice.Store
	audits       audit.Store
	revocations  authservice.RevocationList
	// purgeable is set when revoked tokens need periodic cleanup.
	purgeable    *revocation.PostgresTRL
	health       map[string]httptransport.HealthCheck
	migrated     []string
	closers      []func() error
}

// Close releases every backend in reverse order of opening.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackends connects the configured driver. m may be nil for one-shot
// commands that do not expose metrics.
func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*backends, error) {
	b := &backends{driver: cfg.Database.Driver, health: map[string]httptransport.HealthCheck{}}

	var err error
	switch cfg.Database.Driver {
	case config.DriverMemory:
		b.openMemory(m)
	case config.DriverPostgres:
		err = b.openPostgres(ctx, cfg, m)
	case config.DriverSQLite:
		err = b.openSQLite(cfg, m)
	default:
		err = fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		b.revocations = revocation.NewRedisTRL(redisClient.Client, revocation.WithRedisMetrics(m))
		b.purgeable = nil
		b.health["redis"] = redisClient.Health
		b.closers = append(b.closers, redisClient.Close)
		logger.Info("token revocation list backed by redis")
	}
	return b, nil
}

func (b *backends) openMemory(m *metrics.Metrics) {
	parcels := parcelstore.New()
	transactions := ledgerstore.New(parcels)
	b.users = identitystore.New()
	b.parcels = parcels
	b.transactions = transactions
	b.approvals = ledgerservice.NewLockedApprovalTx(transactions)
	b.documents = documentstore.New()
	b.audits = auditmemory.NewInMemoryStore()
	b.revocations = revocation.NewInMemoryTRL(revocation.WithMemoryMetrics(m))
}

func (b *backends) openPostgres(ctx context.Context, cfg *config.Config, m *metrics.Metrics) error {
	db, err := database.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	b.closers = append(b.closers, db.Close)

	b.migrated, err = database.Migrate(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}

	trl := revocation.NewPostgresTRL(db, revocation.WithPostgresMetrics(m))
	b.users = identitystore.NewPostgres(db)
	b.parcels = parcelstore.NewPostgres(db)
	b.transactions = ledgerstore.NewPostgres(db)
	b.approvals = newApprovalPostgresTx(db)
	b.documents = documentstore.NewPostgres(db)
	b.audits = auditpostgres.New(db)
	b.revocations = trl
	b.purgeable = trl
	b.health["database"] = db.PingContext
	return nil
}

func (b *backends) openSQLite(cfg *config.Config, m *metrics.Metrics) error {
	db, err := database.OpenSQLite(cfg.Database.SQLitePath)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() error { return database.CloseSQLite(db) })

	if err := b.sqliteStores(db); err != nil {
		return err
	}
	b.approvals = newApprovalSQLiteTx(db)
	// No SQLite audit table; events stay in process.
	b.audits = auditmemory.NewInMemoryStore()
	b.revocations = revocation.NewInMemoryTRL(revocation.WithMemoryMetrics(m))
	b.health["database"] = func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return nil
}

func (b *backends) sqliteStores(db *gorm.DB) error {
	users, err := identitystore.NewSQLite(db)
	if err != nil {
		return fmt.Errorf("sqlite users: %w", err)
	}
	parcels, err := parcelstore.NewSQLite(db)
	if err != nil {
		return fmt.Errorf("sqlite parcels: %w", err)
	}
	transactions, err := ledgerstore.NewSQLite(db)
	if err != nil {
		return fmt.Errorf("sqlite transactions: %w", err)
	}
	documents, err := documentstore.NewSQLite(db)
	if err != nil {
		return fmt.Errorf("sqlite documents: %w", err)
	}
	b.users, b.parcels, b.transactions, b.documents = users, parcels, transactions, documents
	return nil
}

