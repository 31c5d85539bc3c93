package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gallery-hub/backend/internal/client"
	"github.com/gallery-hub/backend/internal/config"
	"github.com/gallery-hub/backend/internal/db"
	"github.com/gallery-hub/backend/internal/handler"
	"github.com/gallery-hub/backend/internal/service"
	"github.com/gallery-hub/backend/internal/token"
)

// @title Gallery Hub Backend API
// @version 1.0
// @description Quota and token-lifecycle backend for the gallery platform.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg := config.Load()
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}

	codec := token.NewCodec([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTTL)
	notifier := client.NewWebhookNotifier(cfg.Notify, logger)

	estimator, err := client.NewCostEstimator(ctx, cfg.Estimator)
	if err != nil {
		logger.Fatal("failed to create cost estimator", zap.Error(err))
	}
	pipeline := client.NewPipelineClient(cfg.Pipeline)

	var oauth *client.GoogleOAuth
	if cfg.OAuth.GoogleClientID != "" {
		oauth, err = client.NewGoogleOAuth(ctx, cfg.OAuth)
		if err != nil {
			logger.Fatal("failed to configure google oauth", zap.Error(err))
		}
	}

	tokenSvc := service.NewTokenService(pg, pg, codec, cfg.Auth.RefreshTTL, logger)
	quotaSvc := service.NewQuotaService(pg, pg, notifier, cfg.Quota, logger)
	guardSvc := service.NewGuardService(pg, pg, notifier, cfg.Lockout, cfg.Quota.Period, logger)
	authSvc := service.NewAuthService(pg, guardSvc, tokenSvc, cfg.Auth, logger)
	billingSvc := service.NewBillingService(pg, notifier, logger)

	go service.RunSweep(ctx, quotaSvc, cfg.Quota.SweepInterval, logger)

	authHandler := handler.NewAuthHandler(authSvc, oauth)
	quotaHandler := handler.NewQuotaHandler(quotaSvc, pg)
	analysisHandler := handler.NewAnalysisHandler(quotaSvc, estimator, pipeline, logger)
	billingHandler := handler.NewBillingHandler(billingSvc)

	router := gin.Default()
	router.Use(handler.CORSMiddleware(strings.Split(cfg.Server.AllowedOrigins, ","), true))

	router.GET("/", handler.Root)
	router.GET("/ping", handler.Ping)
	router.GET("/openapi.json", handler.OpenAPIDoc)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/google", authHandler.GoogleLogin)
			auth.GET("/google/callback", authHandler.GoogleCallback)
		}

		v1.POST("/billing/webhook", billingHandler.Webhook)

		authed := v1.Group("")
		authed.Use(handler.AuthMiddleware(codec))
		{
			authed.GET("/auth/me", authHandler.Me)
			authed.POST("/auth/password", authHandler.ChangePassword)
			authed.GET("/quota", quotaHandler.Status)
			authed.GET("/quota/check", quotaHandler.Check)
			authed.GET("/quota/transactions", quotaHandler.Transactions)
			authed.POST("/analyses", analysisHandler.Analyze)

			admin := authed.Group("/admin")
			{
				admin.POST("/users/:userId/bonus", quotaHandler.GrantBonus)
				admin.POST("/users/:userId/refund", quotaHandler.Refund)
				admin.PUT("/users/:userId/quota-limit", quotaHandler.SetCustomLimit)
				admin.DELETE("/users/:userId/quota-limit", quotaHandler.ClearCustomLimit)
				admin.POST("/users/:userId/quota-reset", quotaHandler.Reset)
				admin.POST("/quota-sweep", quotaHandler.Sweep)
			}
		}
	}

	logger.Info("starting server", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
