package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/credenza-market/credenza-backend/internal/cron"
	"github.com/credenza-market/credenza-backend/internal/ledger"
	"github.com/credenza-market/credenza-backend/internal/maintenance"
	"github.com/credenza-market/credenza-backend/internal/premium"
	"github.com/credenza-market/credenza-backend/internal/stock"
	"github.com/credenza-market/credenza-backend/pkg/config"
	"github.com/credenza-market/credenza-backend/pkg/db"
	"github.com/credenza-market/credenza-backend/pkg/instance"
	"github.com/credenza-market/credenza-backend/pkg/logger"
	"github.com/credenza-market/credenza-backend/pkg/metrics"
	"github.com/credenza-market/credenza-backend/pkg/migrate"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
	pkgredis "github.com/credenza-market/credenza-backend/pkg/redis"
)

const lockKeyFormat = "cdz:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := pkgredis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gdb := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	premiumSvc, err := premium.NewService(dbClient, premium.NewRepository(gdb), ledgerSvc, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create premium service", err)
		os.Exit(1)
	}

	maintenanceSvc, err := maintenance.NewService(dbClient, maintenance.NewRepository(gdb), stock.NewRepository(gdb), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance service", err)
		os.Exit(1)
	}

	premiumJob, err := cron.NewPremiumExpiryJob(cron.PremiumExpiryJobParams{Logger: logg, Premium: premiumSvc})
	if err != nil {
		logg.Error(context.Background(), "failed to create premium expiry job", err)
		os.Exit(1)
	}
	maintenanceJob, err := cron.NewMaintenanceJob(cron.MaintenanceJobParams{Logger: logg, Maintenance: maintenanceSvc})
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(gdb),
		Retention:  cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	var lock cron.Lock = cron.NoopLock{}
	if !cfg.Cron.DisableDistributedLock {
		redisLock, lockErr := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
		if lockErr != nil {
			logg.Error(context.Background(), "failed to create cron lock", lockErr)
			os.Exit(1)
		}
		lock = redisLock
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(premiumJob, maintenanceJob, retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.PremiumSweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
