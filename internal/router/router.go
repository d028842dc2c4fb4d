package router

import (
	"time"

	"tillpos/internal/config"
	"tillpos/internal/handler"
	"tillpos/internal/infra"
	"tillpos/internal/middleware"
	"tillpos/internal/repository"
	"tillpos/internal/service"
	"tillpos/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, taxCB, hookCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.Metrics())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Infrastructure ───────────────────────────────────────────────────────
	catalogClient := infra.NewCatalogClient(cfg.CatalogURL, rdb, time.Duration(cfg.CatalogCacheTTL)*time.Second)
	taxClient := infra.NewTaxClient(cfg.TaxResolverURL, taxCB, cfg.FallbackTaxRatePct)

	// ── Repositories ─────────────────────────────────────────────────────────
	sessionRepo := repository.NewSessionRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	serialRepo := repository.NewSerialRepository(db)

	// Worker dispatcher — enqueues receipt notifications after completion commits
	dispatcher := worker.NewDispatcher(rdb)

	// ── Services ─────────────────────────────────────────────────────────────
	sessionSvc := service.NewSessionService(sessionRepo)
	serialSvc := service.NewSerialService(serialRepo)
	transactionSvc := service.NewTransactionService(transactionRepo, sessionSvc, serialSvc, catalogClient, taxClient, dispatcher)

	// ── Handlers ─────────────────────────────────────────────────────────────
	sessionsH := handler.NewSessionsHandler(sessionSvc)
	transactionsH := handler.NewTransactionsHandler(transactionSvc)
	serialsH := handler.NewSerialsHandler(serialSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, taxCB, hookCB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		// Roles: clerk, supervisor, admin — declared per-endpoint
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", middleware.RequireRole("clerk", "supervisor", "admin"), sessionsH.Open)
			sessions.GET("/active", middleware.RequireRole("clerk", "supervisor", "admin"), sessionsH.Active)
			sessions.GET("/:id", middleware.RequireRole("clerk", "supervisor", "admin"), sessionsH.Report)
			sessions.POST("/:id/close", middleware.RequireRole("clerk", "supervisor", "admin"), sessionsH.Close)
			sessions.GET("", middleware.RequireRole("supervisor", "admin"), sessionsH.History)
		}

		txns := v1.Group("/transactions", middleware.RequireRole("clerk", "supervisor", "admin"))
		{
			txns.POST("", transactionsH.Create)
			txns.GET("/:id", transactionsH.Get)
			txns.POST("/:id/items", transactionsH.AddItem)
			txns.POST("/:id/payments", transactionsH.AddPayment)
			txns.POST("/:id/complete", transactionsH.Complete)
		}
		// Voiding discards rung-up work, so it needs a supervisor
		v1.POST("/transactions/:id/void", middleware.RequireRole("supervisor", "admin"), transactionsH.Void)

		items := v1.Group("/items", middleware.RequireRole("clerk", "supervisor", "admin"))
		{
			items.PATCH("/:id", transactionsH.UpdateItemQuantity)
			items.DELETE("/:id", transactionsH.RemoveItem)
			items.POST("/:id/serials", transactionsH.ClaimSerial)
			items.POST("/:id/serials/auto", transactionsH.ClaimSerialCount)
			items.DELETE("/:id/serials", transactionsH.ReleaseSerials)
		}

		catalog := v1.Group("/catalog")
		{
			catalog.POST("/:id/serials", middleware.RequireRole("supervisor", "admin"), serialsH.Receive)
			catalog.GET("/:id/serials", middleware.RequireRole("clerk", "supervisor", "admin"), serialsH.ListAvailable)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
