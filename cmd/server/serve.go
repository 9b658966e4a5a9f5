package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"landregistry/internal/anchor"
	"landregistry/internal/auth"
	authservice "landregistry/internal/auth/service"
	"landregistry/internal/document"
	documenthandler "landregistry/internal/document/handler"
	"landregistry/internal/identity"
	identitymodels "landregistry/internal/identity/models"
	jwttoken "landregistry/internal/jwt_token"
	"landregistry/internal/ledger"
	"landregistry/internal/parcel"
	"landregistry/internal/platform/config"
	"landregistry/internal/platform/httpserver"
	"landregistry/internal/platform/metrics"
	"landregistry/internal/platform/tracing"
	httptransport "landregistry/internal/transport/http"
	"landregistry/pkg/platform/audit/kafka"
	"landregistry/pkg/platform/audit/publisher"
)

const revocationPurgeInterval = 10 * time.Minute

func serve(ctx context.Context, env *cliEnv) error {
	cfg, log := env.cfg, env.logger

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, os.Stdout)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	b, err := openBackends(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("closing backends failed", "error", err)
		}
	}()
	log.Info("storage ready", "driver", b.driver, "migrations_applied", len(b.migrated))

	audits, closeAudits, err := newAuditPublisher(ctx, cfg, log, b)
	if err != nil {
		return err
	}
	defer closeAudits()

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	ledgerAnchor := anchor.NewLedgerAnchorer()

	identitySvc := identity.NewService(b.users,
		identity.WithLogger(log), identity.WithAuditPublisher(audits), identity.WithMetrics(m))
	authSvc := auth.NewService(identitySvc, jwt, b.revocations, authservice.Config{
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	}, auth.WithLogger(log), auth.WithAuditPublisher(audits), auth.WithMetrics(m))
	parcelSvc := parcel.NewService(b.parcels, identitySvc, ledgerAnchor,
		parcel.WithLogger(log), parcel.WithAuditPublisher(audits), parcel.WithMetrics(m))
	ledgerSvc := ledger.NewService(b.transactions, b.approvals, identitySvc, ledgerAnchor,
		ledger.WithLogger(log), ledger.WithAuditPublisher(audits), ledger.WithMetrics(m))
	documentSvc := document.NewService(b.documents, b.parcels, anchor.NewContentAddresser(), ledgerAnchor,
		document.WithLogger(log), document.WithAuditPublisher(audits), document.WithMetrics(m))

	routerCfg := httptransport.Config{
		Logger:             log,
		Metrics:            m,
		RequestTimeout:     cfg.Server.RequestTimeout,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Tokens:             jwttoken.NewJWTServiceAdapter(jwt),
		Revocations:        b.revocations,
		HealthChecks:       b.health,
	}
	if cfg.Server.MetricsAddr == "" {
		routerCfg.Gatherer = registry
	}
	router := httptransport.NewRouter(routerCfg,
		identity.NewHandler(identitySvc, log),
		auth.NewHandler(authSvc, log),
		parcel.NewHandler(parcelSvc, log),
		ledger.NewHandler(ledgerSvc, log),
		document.NewHandler(documentSvc, log, documenthandler.WithMaxUploadBytes(cfg.Server.MaxUploadBytes)),
	)

	servers := []*http.Server{httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout)}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		servers = append(servers, httpserver.New(cfg.Server.MetricsAddr, mux, cfg.Server.ReadHeaderTimeout))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info("listening", "addr", srv.Addr, "env", cfg.Environment)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	if b.purgeable != nil {
		g.Go(func() error {
			ticker := time.NewTicker(revocationPurgeInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					n, err := b.purgeable.PurgeExpired(gctx)
					if err != nil {
						log.Warn("purging expired revocations failed", "error", err)
						continue
					}
					if n > 0 {
						log.Debug("purged expired revocations", "count", n)
					}
				}
			}
		})
	}

	return g.Wait()
}

// newAuditPublisher writes synchronously when the audit store is Postgres so
// approval events commit with the approval transaction. Other stores go
// through the async buffer.
func newAuditPublisher(ctx context.Context, cfg *config.Config, log *slog.Logger, b *backends) (*publisher.Publisher, func(), error) {
	opts := []publisher.Option{publisher.WithLogger(log)}
	if b.driver != config.DriverPostgres {
		opts = append(opts, publisher.WithAsyncBuffer(cfg.Audit.BufferSize))
	}

	var sink *kafka.Sink
	if len(cfg.Audit.KafkaBrokers) > 0 {
		var err error
		sink, err = kafka.NewSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("audit kafka sink: %w", err)
		}
		if err := sink.EnsureTopic(ctx, 1, 1); err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.Audit.KafkaTopic, "error", err)
		}
		opts = append(opts, publisher.WithSink(sink))
	}

	p := publisher.NewPublisher(b.audits, opts...)
	return p, func() {
		p.Close()
		if sink != nil {
			sink.Close()
		}
	}, nil
}

func bootstrapAdmin(ctx context.Context, b *backends, log *slog.Logger, username, password, nationalID, email string) (*identitymodels.User, error) {
	if password == "" {
		return nil, errors.New("a password is required")
	}
	audits := publisher.NewPublisher(b.audits, publisher.WithLogger(log))
	defer audits.Close()

	svc := identity.NewService(b.users, identity.WithLogger(log), identity.WithAuditPublisher(audits))
	return svc.Bootstrap(ctx, &identitymodels.RegisterRequest{
		Username:   username,
		Password:   password,
		NationalID: nationalID,
		Email:      email,
	})
}
