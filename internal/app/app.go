package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iamez/ez-solutions/internal/adapter/repository/postgres"
	"github.com/iamez/ez-solutions/internal/api"
	"github.com/iamez/ez-solutions/internal/config"
	"github.com/iamez/ez-solutions/internal/domain/billing"
	"github.com/iamez/ez-solutions/internal/domain/event"
	"github.com/iamez/ez-solutions/internal/handler"
	"github.com/iamez/ez-solutions/internal/ingest"
	"github.com/iamez/ez-solutions/internal/worker"
	"github.com/iamez/ez-solutions/pkg/billingclient"
	"github.com/iamez/ez-solutions/pkg/db"
	zaplog "github.com/iamez/ez-solutions/pkg/log"
	"github.com/iamez/ez-solutions/pkg/snowflake"
	"github.com/iamez/ez-solutions/sql/migrations"
)

// RunServer starts the HTTP server and background workers.
func RunServer() {
	app := fx.New(
		fx.Provide(
			// Config
			config.Load,

			// Infrastructure (Adapters)
			fx.Annotate(
				billingclient.NewFromEnv,
				fx.As(new(handler.SubscriptionFetcher)),
			),

			// Domain Adapters (Bind Interfaces)
			fx.Annotate(
				postgres.NewEventRepository,
				fx.As(new(event.Repository)),
			),
			fx.Annotate(
				postgres.NewCustomerRepository,
				fx.As(new(billing.CustomerRepository)),
			),
			fx.Annotate(
				postgres.NewSubscriptionRepository,
				fx.As(new(billing.SubscriptionRepository)),
			),

			// Gateway -> worker wake signal
			newWakeChannel,
			asSender,
			asReceiver,

			// Ingestion gateway
			ingest.NewService,

			// Fulfillment handlers
			newRegistry,

			// Worker pool + crash recovery
			worker.NewProcessor,
			worker.NewReclaimer,

			// API
			api.NewRouter,
		),
		db.Module,        // Database Module
		snowflake.Module, // Snowflake ID Module
		zaplog.Module,    // Logger Module
		fx.Invoke(registerHooks),
	)

	app.Run()
}

// RunMigrations executes database migrations (up or down).
func RunMigrations(command string) error {
	if command == "" {
		command = "up"
	}

	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting database migration...", zap.String("command", command))

	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration files: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration up failed: %w", err)
		}
		if err == migrate.ErrNoChange {
			logger.Info("No changes to apply")
		} else {
			logger.Info("Migration up applied successfully")
		}
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("Migration down applied successfully")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}

	return nil
}

// newWakeChannel builds the gateway-to-worker signal. Capacity one is
// enough: the channel coalesces bursts, the poll ticker catches the rest.
func newWakeChannel() chan struct{} {
	return make(chan struct{}, 1)
}

func asSender(ch chan struct{}) chan<- struct{} { return ch }

func asReceiver(ch chan struct{}) <-chan struct{} { return ch }

func newRegistry(
	logger *zap.Logger,
	customers billing.CustomerRepository,
	subs billing.SubscriptionRepository,
	provider handler.SubscriptionFetcher,
	ids *snowflake.Node,
) *handler.Registry {
	return handler.NewRegistry(logger,
		handler.NewPing(logger),
		handler.NewCheckout(customers, subs, provider, ids, logger),
		handler.NewSubscriptionUpdated(customers, subs, ids, logger),
		handler.NewSubscriptionDeleted(customers, subs, ids, logger),
	)
}

func registerHooks(lc fx.Lifecycle, cfg *config.Config, router *api.Router, processor *worker.Processor, reclaimer *worker.Reclaimer, logger *zap.Logger) {
	var processorCancel context.CancelFunc
	var reclaimerCancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("port", cfg.Port))

			processorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			processorCancel = cancel
			go processor.Run(processorCtx)

			reclaimerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			reclaimerCancel = cancel
			go reclaimer.Run(reclaimerCtx)

			go func() {
				if err := router.Run(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed to start", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server gracefully...")

			if processorCancel != nil {
				processorCancel()
			}
			if reclaimerCancel != nil {
				reclaimerCancel()
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := router.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
				return err
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		},
	})
}
