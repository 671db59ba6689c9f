package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vendora/backend/docs"
	"github.com/vendora/backend/internal/database"
	mW "github.com/vendora/backend/internal/middleware"
	"github.com/vendora/backend/internal/services"
)

// @title Vendora Wallet API
// @version 1.0
// @description Merchant wallet ledger and withdrawal lifecycle API
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("webhook.secret", "WEBHOOK_SECRET")
	viper.BindEnv("webhook.lock_ttl", "WEBHOOK_LOCK_TTL")
	viper.BindEnv("withdrawal.lock_ttl", "WITHDRAWAL_LOCK_TTL")
	viper.BindEnv("withdrawal.idempotency_ttl", "WITHDRAWAL_IDEMPOTENCY_TTL")
	viper.BindEnv("reconcile.interval", "RECONCILE_INTERVAL")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("reconcile.interval", time.Hour)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Vendora Wallet API"
	docs.SwaggerInfo.Description = "Merchant wallet ledger and withdrawal lifecycle API"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	defer redisClient.Close()

	// Initialize services
	ledgerService := services.NewLedgerService(db)
	withdrawalService := services.NewWithdrawalService(db, redisClient, ledgerService)
	webhookService := services.NewWebhookService(db, redisClient, ledgerService)
	reconciliationService := services.NewReconciliationService(db)
	authService := services.NewAuthService(db, redisClient)
	bankService := services.NewBankService()

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Periodic wallet/ledger reconciliation
	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	defer stopReconcile()
	go reconciliationService.RunPeriodic(reconcileCtx, viper.GetDuration("reconcile.interval"))

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Gateway webhooks (HMAC-authenticated, no JWT)
	r.Post("/webhooks/payment", webhookService.PaymentWebhook)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/banks", bankService.GetAllBanks)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			r.Get("/wallet/balance", ledgerService.GetWalletBalance)
			r.Get("/wallet/ledger", ledgerService.GetWalletLedger)

			r.Get("/withdrawals", withdrawalService.ListWithdrawals)
			r.Post("/withdrawals", withdrawalService.RequestWithdrawal)
			r.Get("/withdrawals/{reference}", withdrawalService.GetWithdrawal)
			r.Post("/withdrawals/{reference}/status", withdrawalService.TransitionWithdrawal)

			r.Get("/admin/reconcile", reconciliationService.Reconcile)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
