package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/credenza-market/credenza-backend/api/controllers"
	"github.com/credenza-market/credenza-backend/api/middleware"
	ledgersvc "github.com/credenza-market/credenza-backend/internal/ledger"
	maintenancesvc "github.com/credenza-market/credenza-backend/internal/maintenance"
	premiumsvc "github.com/credenza-market/credenza-backend/internal/premium"
	productsvc "github.com/credenza-market/credenza-backend/internal/products"
	purchasesvc "github.com/credenza-market/credenza-backend/internal/purchases"
	settingsvc "github.com/credenza-market/credenza-backend/internal/settings"
	stocksvc "github.com/credenza-market/credenza-backend/internal/stock"
	supportsvc "github.com/credenza-market/credenza-backend/internal/support"
	usersvc "github.com/credenza-market/credenza-backend/internal/users"
	withdrawalsvc "github.com/credenza-market/credenza-backend/internal/withdrawals"
	"github.com/credenza-market/credenza-backend/pkg/config"
	"github.com/credenza-market/credenza-backend/pkg/db"
	"github.com/credenza-market/credenza-backend/pkg/logger"
	"github.com/credenza-market/credenza-backend/pkg/metrics"
	pkgredis "github.com/credenza-market/credenza-backend/pkg/redis"
)

// Services bundles everything the router exposes over HTTP.
type Services struct {
	Users       usersvc.Service
	Premium     premiumsvc.Service
	Products    productsvc.Service
	Inventory   stocksvc.Inventory
	Ledger      ledgersvc.Service
	Purchases   purchasesvc.Service
	Withdrawals withdrawalsvc.Service
	Support     supportsvc.Service
	Settings    settingsvc.Service
	Maintenance maintenancesvc.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	svcs Services,
) http.Handler {
	httpMetrics := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		httpMetrics.Middleware,
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.Register(svcs.Users, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.Login(svcs.Users, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ListPublishedProducts(svcs.Products, logg))
		r.Get("/{productId}", controllers.GetProduct(svcs.Products, logg))
	})
	r.Get("/api/v1/categories", controllers.ListCategories(svcs.Products, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/me", controllers.Me(svcs.Users, logg))
		r.Get("/me/transactions", controllers.ListMyTransactions(svcs.Ledger, logg))
		r.Get("/me/transactions/{transactionId}", controllers.GetMyTransaction(svcs.Ledger, logg))
		r.Get("/me/orders", controllers.ListMyOrders(svcs.Purchases, logg))
		r.Get("/me/withdrawals", controllers.ListMyWithdrawals(svcs.Withdrawals, logg))

		r.Post("/purchases", controllers.Purchase(svcs.Purchases, logg))
		r.Post("/recharges", controllers.RequestRecharge(svcs.Purchases, logg))
		r.Post("/premium/upgrade", controllers.UpgradePremium(svcs.Premium, logg))

		r.Post("/withdrawals", controllers.RequestWithdrawal(svcs.Withdrawals, logg))
		r.Post("/withdrawals/{withdrawalId}/cancel", controllers.CancelWithdrawal(svcs.Withdrawals, logg))

		r.Route("/support/{transactionId}", func(r chi.Router) {
			r.Post("/open", controllers.OpenSupportTicket(svcs.Support, logg))
			r.Post("/accept", controllers.AcceptReplacement(svcs.Support, logg))
			r.Post("/refund", controllers.RefundTicket(svcs.Support, logg))
		})

		r.Route("/provider", func(r chi.Router) {
			r.Use(middleware.RequireProviderTier(logg))

			r.Get("/products", controllers.ProviderListProducts(svcs.Products, logg))
			r.Post("/products", controllers.ProviderCreateProduct(svcs.Products, logg))
			r.Put("/products/{productId}", controllers.ProviderUpdateProduct(svcs.Products, logg))
			r.Delete("/products/{productId}", controllers.ProviderDeleteProduct(svcs.Products, logg))
			r.Get("/products/{productId}/stock", controllers.ProviderListStock(svcs.Inventory, logg))

			r.Post("/stock", controllers.ProviderAddStock(svcs.Inventory, logg))
			r.Delete("/stock/{recordId}", controllers.ProviderRemoveStock(svcs.Inventory, logg))
			r.Patch("/stock/{recordId}/status", controllers.ProviderSetStockStatus(svcs.Inventory, logg))

			r.Get("/orders", controllers.ProviderListOrders(svcs.Purchases, logg))
			r.Post("/orders/{orderId}/deliver", controllers.ProviderDeliverOrder(svcs.Purchases, logg))
			r.Post("/orders/{orderId}/cancel", controllers.ProviderCancelOrder(svcs.Purchases, logg))

			r.Get("/support", controllers.ProviderListTickets(svcs.Support, logg))
			r.Route("/support/{transactionId}", func(r chi.Router) {
				r.Post("/resolve", controllers.ProviderResolveTicket(svcs.Support, logg))
				r.Post("/propose", controllers.ProviderProposeReplacement(svcs.Support, logg))
				r.Post("/refund", controllers.ProviderRefundTicket(svcs.Support, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))

			r.Get("/users", controllers.AdminListUsers(svcs.Users, logg))
			r.Get("/users/pending", controllers.AdminListPendingUsers(svcs.Users, logg))
			r.Post("/users/{userId}/approve", controllers.AdminApproveUser(svcs.Users, logg))
			r.Post("/users/{userId}/reject", controllers.AdminRejectUser(svcs.Users, logg))
			r.Post("/users/{userId}/ban", controllers.AdminSetBan(svcs.Users, logg))
			r.Delete("/users/{userId}", controllers.AdminDeleteUser(svcs.Users, logg))

			r.Post("/users/{userId}/recharges/{transactionId}/approve", controllers.AdminApproveRecharge(svcs.Purchases, logg))
			r.Post("/users/{userId}/recharges/{transactionId}/reject", controllers.AdminRejectRecharge(svcs.Purchases, logg))

			r.Get("/withdrawals/pending", controllers.AdminListPendingWithdrawals(svcs.Withdrawals, logg))
			r.Post("/withdrawals/{withdrawalId}/approve", controllers.AdminApproveWithdrawal(svcs.Withdrawals, logg))
			r.Post("/withdrawals/{withdrawalId}/reject", controllers.AdminRejectWithdrawal(svcs.Withdrawals, logg))

			r.Post("/categories", controllers.AdminCreateCategory(svcs.Products, logg))

			r.Get("/settings", controllers.AdminListSettings(svcs.Settings, logg))
			r.Put("/settings/{key}", controllers.AdminUpdateSetting(svcs.Settings, logg))

			r.Post("/maintenance/run", controllers.AdminRunMaintenance(svcs.Maintenance, logg))
		})
	})

	return r
}
