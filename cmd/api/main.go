package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/credenza-market/credenza-backend/api/routes"
	"github.com/credenza-market/credenza-backend/internal/ledger"
	"github.com/credenza-market/credenza-backend/internal/maintenance"
	"github.com/credenza-market/credenza-backend/internal/premium"
	"github.com/credenza-market/credenza-backend/internal/products"
	"github.com/credenza-market/credenza-backend/internal/purchases"
	"github.com/credenza-market/credenza-backend/internal/referrals"
	"github.com/credenza-market/credenza-backend/internal/settings"
	"github.com/credenza-market/credenza-backend/internal/stock"
	"github.com/credenza-market/credenza-backend/internal/support"
	"github.com/credenza-market/credenza-backend/internal/users"
	"github.com/credenza-market/credenza-backend/internal/withdrawals"
	"github.com/credenza-market/credenza-backend/pkg/config"
	"github.com/credenza-market/credenza-backend/pkg/db"
	"github.com/credenza-market/credenza-backend/pkg/logger"
	"github.com/credenza-market/credenza-backend/pkg/migrate"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
	pkgredis "github.com/credenza-market/credenza-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	svcs, err := buildServices(dbClient, cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, svcs),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func buildServices(dbClient *db.Client, cfg *config.Config, logg *logger.Logger) (routes.Services, error) {
	gdb := dbClient.DB()

	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)

	ledgerRepo := ledger.NewRepository(gdb)
	ledgerSvc, err := ledger.NewService(ledgerRepo)
	if err != nil {
		return routes.Services{}, err
	}

	settingsSvc, err := settings.NewService(dbClient, settings.NewRepository(gdb), outboxSvc, cfg.Platform, logg)
	if err != nil {
		return routes.Services{}, err
	}

	premiumRepo := premium.NewRepository(gdb)
	premiumSvc, err := premium.NewService(dbClient, premiumRepo, ledgerSvc, outboxSvc)
	if err != nil {
		return routes.Services{}, err
	}

	usersSvc, err := users.NewService(dbClient, users.NewRepository(gdb), outboxSvc, premiumSvc, cfg.JWT, cfg.Password)
	if err != nil {
		return routes.Services{}, err
	}

	productRepo := products.NewRepository(gdb)
	productsSvc, err := products.NewService(dbClient, productRepo, outboxSvc)
	if err != nil {
		return routes.Services{}, err
	}

	stockRepo := stock.NewRepository(gdb)
	stockSvc, err := stock.NewService(stockRepo)
	if err != nil {
		return routes.Services{}, err
	}

	inventory, err := stock.NewInventory(dbClient, stockSvc, stockRepo, productRepo, outboxSvc)
	if err != nil {
		return routes.Services{}, err
	}

	referralsSvc, err := referrals.NewService(ledgerRepo, ledgerSvc, outboxSvc)
	if err != nil {
		return routes.Services{}, err
	}

	purchasesSvc, err := purchases.NewService(
		dbClient,
		productRepo,
		stockSvc,
		ledgerRepo,
		ledgerSvc,
		referralsSvc,
		purchases.NewOrdersRepository(gdb),
		outboxSvc,
	)
	if err != nil {
		return routes.Services{}, err
	}

	withdrawalsSvc, err := withdrawals.NewService(dbClient, withdrawals.NewRepository(gdb), ledgerSvc, settingsSvc, outboxSvc)
	if err != nil {
		return routes.Services{}, err
	}

	supportSvc, err := support.NewService(
		dbClient,
		support.NewRepository(gdb),
		ledgerRepo,
		ledgerSvc,
		productRepo,
		stockRepo,
		stockSvc,
		outboxSvc,
	)
	if err != nil {
		return routes.Services{}, err
	}

	maintenanceSvc, err := maintenance.NewService(dbClient, maintenance.NewRepository(gdb), stockRepo, logg)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Users:       usersSvc,
		Premium:     premiumSvc,
		Products:    productsSvc,
		Inventory:   inventory,
		Ledger:      ledgerSvc,
		Purchases:   purchasesSvc,
		Withdrawals: withdrawalsSvc,
		Support:     supportSvc,
		Settings:    settingsSvc,
		Maintenance: maintenanceSvc,
	}, nil
}
