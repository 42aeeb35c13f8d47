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

	"github.com/kalpe/backend/docs"
	"github.com/kalpe/backend/internal/config"
	"github.com/kalpe/backend/internal/database"
	"github.com/kalpe/backend/internal/handlers"
	"github.com/kalpe/backend/internal/ledger"
	mW "github.com/kalpe/backend/internal/middleware"
	"github.com/kalpe/backend/internal/services"
)

// @title Kalpe Backend API
// @version 1.0
// @description API for the Kalpe mobile money wallet
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

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
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Kalpe Backend API"
	docs.SwaggerInfo.Description = "API for the Kalpe mobile money wallet"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Wallet ledger: Redis-backed when available, in-memory otherwise
	var store ledger.Store
	if redisClient != nil {
		store = ledger.NewRedisStore(redisClient)
	} else {
		log.Println("Redis unavailable, wallet state will not survive restarts")
		store = ledger.NewMemoryStore()
	}
	ledgerManager := ledger.NewManager(store, config.LoadLedgerConfig())

	authService := services.NewAuthService(db, redisClient)
	transferService := services.NewTransferService(ledgerManager)
	vaultService := services.NewVaultService(db, ledgerManager)
	tontineService := services.NewTontineService(db, ledgerManager)
	paymentService := services.NewPaymentService(ledgerManager)
	emoneyService := services.NewEMoneyService(ledgerManager)
	qrService := services.NewQRService(redisClient)
	qrHandler := handlers.NewQRHandler(qrService, ledgerManager)
	cashoutService := services.NewCashoutService(db, redisClient, ledgerManager)
	cashoutHandler := handlers.NewCashoutHandler(cashoutService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
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

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Post("/auth/request-otp", authService.RequestOTP)
		r.Post("/auth/verify-otp", authService.VerifyOTP)
		r.Post("/transfers/quote", transferService.QuoteTransfer)

		// Agent-facing validation endpoint
		r.Post("/cashout/validate", cashoutHandler.ValidateCode)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			// Wallet
			r.Get("/balance", transferService.GetBalance)
			r.Get("/balance/history", transferService.GetBalanceHistory)
			r.Get("/transactions", transferService.GetTransactions)
			r.Post("/transfers", transferService.CreateTransfer)

			// Vaults
			r.Post("/vaults", vaultService.CreateVault)
			r.Get("/vaults", vaultService.ListVaults)
			r.Patch("/vaults/{vaultId}", vaultService.UpdateVault)
			r.Delete("/vaults/{vaultId}", vaultService.DeleteVault)
			r.Post("/vaults/{vaultId}/deposit", vaultService.Deposit)
			r.Post("/vaults/{vaultId}/withdraw", vaultService.Withdraw)
			r.Get("/vaults/{vaultId}/transactions", vaultService.GetVaultTransactions)

			// Tontines
			r.Post("/tontines", tontineService.CreateTontine)
			r.Get("/tontines", tontineService.ListTontines)
			r.Post("/tontines/{tontineId}/join", tontineService.JoinTontine)
			r.Post("/tontines/{tontineId}/contribute", tontineService.Contribute)

			// Payments
			r.Post("/payments/airtime", paymentService.RechargeAirtime)
			r.Post("/payments/bills", paymentService.PayBill)

			// E-money bridging
			r.Get("/emoney", emoneyService.ListProviders)
			r.Post("/emoney/transfer", emoneyService.Transfer)

			// QR payments
			r.Post("/qr/generate", qrHandler.GenerateQR)
			r.Post("/qr/pay", qrHandler.PayQR)

			// Agent cash-out / cash-in
			r.Post("/cashout/generate", cashoutHandler.GenerateCode)
			r.Get("/cashout/codes", cashoutHandler.GetUserCodes)
		})
	})

	// Expired agent codes are purged hourly
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := cashoutService.CleanupExpiredCodes(context.Background()); err != nil {
				log.Printf("Failed to clean up expired agent codes: %v", err)
			}
		}
	}()

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
