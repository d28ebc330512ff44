package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/fieldops/fieldops/cmd/fieldops/cli"
	"github.com/fieldops/fieldops/internal/app"
	"github.com/fieldops/fieldops/internal/audit"
	audithttp "github.com/fieldops/fieldops/internal/audit/http"
	"github.com/fieldops/fieldops/internal/auth"
	"github.com/fieldops/fieldops/internal/categories"
	"github.com/fieldops/fieldops/internal/engineers"
	"github.com/fieldops/fieldops/internal/identity"
	"github.com/fieldops/fieldops/internal/inquiries"
	"github.com/fieldops/fieldops/internal/observability"
	"github.com/fieldops/fieldops/internal/platform/cache"
	"github.com/fieldops/fieldops/internal/platform/db"
	"github.com/fieldops/fieldops/internal/rbac"
	"github.com/fieldops/fieldops/internal/settings"
	"github.com/fieldops/fieldops/internal/users"
	"github.com/fieldops/fieldops/jobs"
)

func main() {
	if len(os.Args) > 1 {
		os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
	}

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fieldops exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry := rbac.DefaultRegistry()
	if cfg.RoleTablePath != "" {
		if registry, err = rbac.LoadRegistryFile(cfg.RoleTablePath); err != nil {
			return err
		}
	}
	holder := rbac.NewHolder(registry)

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	sink := audit.NewSink(audit.SinkConfig{
		Enqueuer: jobClient,
		Queue:    cfg.AuditQueue,
		Buffer:   cfg.AuditBuffer,
		Logger:   logger,
		Dropped:  metrics.AuditDropped(),
	})
	guard := rbac.NewGuard(holder, rbac.Recorders{audit.LogRecorder{Logger: logger}, metrics, sink})
	mw := rbac.Middleware{Guard: guard, Logger: logger}

	auditStore := audit.NewStore(pool)
	tokens := identity.NewTokenStore(redisClient, cfg.SessionTTL)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, guard, auditStore, logger)

	authService := auth.NewService(auth.NewRepository(pool), tokens, logger)
	authHandler := auth.NewHandler(auth.HandlerConfig{
		Logger:       logger,
		Service:      authService,
		Resolver:     guard.Resolver(),
		CookieName:   cfg.SessionCookie,
		SecureCookie: cfg.IsProduction(),
	})

	engineerService := engineers.NewService(engineers.NewRepository(pool), guard, logger)
	reportCache := cache.NewVersioned(redisClient, "fieldops:reports", cfg.ReportCacheTTL)
	inquiryService := inquiries.NewService(inquiries.ServiceConfig{
		Repo:      inquiries.NewRepository(pool),
		Engineers: engineerService,
		Guard:     guard,
		Cache:     reportCache,
		Logger:    logger,
	})
	settingsService := settings.NewService(settings.NewRepository(pool), guard, auditStore, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Identity:          identity.NewSessionProvider(tokens, usersRepo),
		Metrics:           metrics,
		RBAC:              mw,
		AuthHandler:       authHandler,
		UsersHandler:      users.NewHandler(logger, usersService, mw),
		InquiriesHandler:  inquiries.NewHandler(logger, inquiryService, mw),
		EngineersHandler:  engineers.NewHandler(logger, engineerService, mw),
		CategoriesHandler: categories.NewHandler(logger, categories.NewService(categories.NewRepository(pool)), mw),
		SettingsHandler:   settings.NewHandler(logger, settingsService, mw),
		AuditHandler:      audithttp.NewHandler(logger, audit.NewService(auditStore), mw),
		JobHandler:        jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return sink.Run(gctx)
	})
	group.Go(func() error {
		err := reportCache.ListenForInvalidation(gctx, func(version int64) {
			logger.Debug("report cache bumped", slog.Int64("version", version))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("report cache listener", slog.Any("error", err))
		}
		return nil
	})
	group.Go(func() error {
		reloadRoleTable(gctx, cfg.RoleTablePath, holder, logger)
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reloadRoleTable swaps in a freshly parsed role table on SIGHUP. A table
// that fails validation is logged and the current one stays in force.
func reloadRoleTable(ctx context.Context, path string, holder *rbac.Holder, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if path == "" {
				logger.Warn("role table reload requested without RBAC_ROLE_TABLE")
				continue
			}
			reg, err := rbac.LoadRegistryFile(path)
			if err != nil {
				logger.Error("role table reload", slog.String("path", path), slog.Any("error", err))
				continue
			}
			holder.Swap(reg)
			logger.Info("role table reloaded", slog.String("path", path), slog.Int("roles", len(reg.Roles())))
		}
	}
}
