// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/orgmanager/internal/audit"
	"github.com/opentrusty/orgmanager/internal/config"
	"github.com/opentrusty/orgmanager/internal/identity"
	"github.com/opentrusty/orgmanager/internal/lock"
	"github.com/opentrusty/orgmanager/internal/observability/logger"
	"github.com/opentrusty/orgmanager/internal/observability/metrics"
	"github.com/opentrusty/orgmanager/internal/observability/tracing"
	"github.com/opentrusty/orgmanager/internal/store/memory"
	"github.com/opentrusty/orgmanager/internal/store/postgres"
	"github.com/opentrusty/orgmanager/internal/tenant"
	transportHTTP "github.com/opentrusty/orgmanager/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = serve(ctx, cfg)
	case "migrate":
		err = runMigrate(ctx, cfg)
	case "reclaim":
		err = runReclaim(ctx, cfg)
	default:
		err = fmt.Errorf("unknown command %q (want serve, migrate or reclaim)", command)
	}
	if err != nil {
		slog.Error(command+" failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting organization manager", logger.String("store", cfg.Store.Driver))

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   cfg.Observability.SamplingRate,
	})
	var serviceTracer trace.Tracer
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(context.Background())
		serviceTracer = tracer.GetTracer()
	}

	var orgMetrics *metrics.OrganizationMetrics
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		ExportInterval: cfg.Observability.MetricsInterval,
	})
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	} else {
		defer meter.Shutdown(context.Background())
		if orgMetrics, err = metrics.NewOrganizationMetrics(meter); err != nil {
			slog.Error("failed to register metrics", logger.Error(err))
		}
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	auditLogger := audit.NewSlogLogger()
	passwordHasher := identity.NewPasswordHasher(cfg.Auth.BcryptCost)

	tokenService, err := identity.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}
	identityService, err := identity.NewService(
		tenant.NewAdminStore(store),
		passwordHasher,
		tokenService,
		auditLogger,
		orgMetrics,
	)
	if err != nil {
		return err
	}

	tenantService := tenant.NewService(store, locker, passwordHasher, auditLogger, orgMetrics, tenant.MigrationOptions{
		Timeout:      cfg.Migration.Timeout,
		MaxDocuments: cfg.Migration.MaxDocuments,
		BatchSize:    cfg.Migration.BatchSize,
	}).WithTracer(serviceTracer)

	if err := tenantService.Bootstrap(ctx, tenant.BootstrapConfig{
		OrganizationName: cfg.Bootstrap.OrganizationName,
		AdminEmail:       cfg.Bootstrap.AdminEmail,
		AdminPassword:    cfg.Bootstrap.AdminPassword,
	}); err != nil {
		slog.Error("bootstrap failed", logger.Error(err))
	}

	reclaimer := tenant.NewReclaimer(store, locker, auditLogger, cfg.Migration.ReclaimInterval).
		WithRecorder(orgMetrics)
	go reclaimer.Start(ctx)

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).
		WithTrustedProxy(cfg.RateLimit.TrustProxy)
	go rateLimiter.Start(ctx)

	handler := transportHTTP.NewHandler(identityService, tenantService)
	router := transportHTTP.NewRouter(handler, rateLimiter, transportHTTP.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		// Between the migration budget and the write deadline so a timed
		// out migration still gets its response written.
		RequestTimeout: cfg.Migration.Timeout + (cfg.Server.WriteTimeout-cfg.Migration.Timeout)/2,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
	return nil
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.Driver != config.StoreDriverPostgres {
		slog.Info("nothing to migrate", logger.String("store", cfg.Store.Driver))
		return nil
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	slog.Info("schema is up to date")
	return nil
}

func runReclaim(ctx context.Context, cfg *config.Config) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	reclaimer := tenant.NewReclaimer(store, locker, audit.NewSlogLogger(), cfg.Migration.ReclaimInterval)
	n, err := reclaimer.RunOnce(ctx)
	slog.Info("reclaim finished", logger.Component("reclaimer"), slog.Int("reclaimed", n))
	return err
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database")
	return db, nil
}

func openStore(ctx context.Context, cfg *config.Config) (tenant.Store, func(), error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewStore(db), db.Close, nil
}

// openLocker returns the Redis locker when REDIS_ADDR is set. Without it
// locks only serialize requests inside this process.
func openLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return lock.NewLocalLocker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("connected to redis", logger.String("addr", cfg.Redis.Addr))

	return lock.NewRedisLocker(client, lock.WithTTL(cfg.Redis.LockTTL)), func() { client.Close() }, nil
}
