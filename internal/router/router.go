package router

import (
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/config"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/handler"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/infra"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/middleware"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, taxCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.ErrorHandler())

	// ── Infrastructure ───────────────────────────────────────────────────────
	mpClient := infra.NewMercadoPagoClient(cfg.MPBaseURL, cfg.MPAccessToken)
	taxClient := infra.NewTaxDocClient(cfg.TaxDocURL)

	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	cashRepo := repository.NewCashRepository(db)
	giftCardRepo := repository.NewGiftCardRepository(db)
	storeCreditRepo := repository.NewStoreCreditRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	authzSvc := service.NewAuthzService(userRepo)
	giftCardSvc := service.NewGiftCardService(giftCardRepo)
	storeCreditSvc := service.NewStoreCreditService(storeCreditRepo)
	cashSvc := service.NewCashService(cashRepo, branchRepo, authzSvc)
	saleSvc := service.NewSaleService(saleRepo, productRepo, branchRepo, cashRepo, orderRepo, outboxRepo, giftCardSvc, storeCreditSvc)
	refundSvc := service.NewRefundService(saleRepo, productRepo, branchRepo, cashRepo, outboxRepo, storeCreditSvc, authzSvc, taxClient, taxCB)
	paymentSvc := service.NewPaymentOrderService(orderRepo, mpClient, saleSvc, rdb, cfg.MPWebhookSecret)

	// ── Handlers ─────────────────────────────────────────────────────────────
	salesH := handler.NewSalesHandler(saleSvc)
	refundsH := handler.NewRefundsHandler(refundSvc)
	giftCardsH := handler.NewGiftCardsHandler(giftCardSvc)
	storeCreditsH := handler.NewStoreCreditsHandler(storeCreditSvc)
	paymentsH := handler.NewPaymentsHandler(paymentSvc)
	cashH := handler.NewCashHandler(cashSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, taxCB))

	// Provider webhook — authenticated by HMAC signature, never by JWT, and
	// deliberately outside the rate limiter: a throttled notification is a
	// lost payment confirmation.
	r.POST("/webhooks/mercadopago/:tenant_id", paymentsH.Webhook)

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", middleware.RateLimiter(1000, time.Minute), jwtMW)
	{
		anyStaff := middleware.RequireRole("cashier", "supervisor", "admin")
		managers := middleware.RequireRole("supervisor", "admin")

		sales := v1.Group("/sales", anyStaff)
		{
			sales.POST("", salesH.CreateSale)
			sales.GET("", salesH.ListSales)
			sales.GET("/:id", salesH.GetSale)
			sales.POST("/:id/cancel", salesH.CancelSale)
		}

		// Refund authorization (role or supervisor PIN) is enforced in the
		// service layer, so cashiers may reach the endpoint.
		v1.POST("/refunds", anyStaff, refundsH.CreateRefund)

		gc := v1.Group("/gift-cards")
		{
			gc.POST("", managers, giftCardsH.Issue)
			gc.GET("/:code/balance", anyStaff, giftCardsH.Balance)
			gc.GET("/:code/transactions", anyStaff, giftCardsH.Transactions)
			gc.DELETE("/:code", managers, giftCardsH.Cancel)
		}

		sc := v1.Group("/store-credits")
		{
			sc.POST("", managers, storeCreditsH.Issue)
			sc.GET("/:code/balance", anyStaff, storeCreditsH.Balance)
			sc.GET("/:code/transactions", anyStaff, storeCreditsH.Transactions)
			sc.DELETE("/:code", managers, storeCreditsH.Cancel)
		}

		orders := v1.Group("/payment-orders", anyStaff)
		{
			orders.POST("", paymentsH.CreateOrder)
			orders.GET("/available", paymentsH.ListAvailable)
			orders.GET("/:id", paymentsH.GetOrder)
			orders.GET("/:id/status", paymentsH.PollStatus)
			orders.POST("/:id/cancel", paymentsH.CancelOrder)
			orders.POST("/:id/apply", paymentsH.ApplyOrphan)
		}

		cash := v1.Group("/cash-sessions", anyStaff)
		{
			cash.POST("", cashH.OpenSession)
			cash.GET("/:id", cashH.GetSession)
			cash.POST("/:id/close", cashH.CloseSession)
			cash.POST("/:id/movements", cashH.RegisterMovement)
			cash.GET("/:id/movements", cashH.ListMovements)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
