// Package main is the entry point for the LeaseHub server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/leasehub/backend/internal/api"
	"github.com/leasehub/backend/internal/api/middleware"
	"github.com/leasehub/backend/internal/auth"
	"github.com/leasehub/backend/internal/lease"
	"github.com/leasehub/backend/internal/messaging"
	"github.com/leasehub/backend/internal/notification"
	"github.com/leasehub/backend/internal/payment"
	"github.com/leasehub/backend/internal/storage"
	"github.com/leasehub/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	// Parse command-line flags
	addr := flag.String("addr", envString("ADDR", ":8080"), "HTTP server address")
	dataDir := flag.String("data", envString("DATA_DIR", "./data"), "Data directory for SQLite database")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(*addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting LeaseHub (version: %s)...", version)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET must be set")
	}
	tokenTTL := time.Duration(envInt("JWT_TTL_HOURS", 24)) * time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %q: %v", *dataDir, err)
	}
	db, err := storage.NewDB(filepath.Join(*dataDir, "leasehub.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	log.Printf("Database opened at %s", db.Path())

	// Run migrations
	applied, err := storage.RunMigrations(ctx, db)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Printf("Database migrations complete (%d applied)", applied)

	// Window lengths come from the settings table; environment values
	// overwrite the stored ones at startup.
	settingsRepo := storage.NewSettingsRepository(db)
	overrides := make(map[string]string)
	for env, key := range map[string]string{
		"RESPONSE_WINDOW_HOURS": storage.SettingResponseWindowHours,
		"PAYMENT_WINDOW_HOURS":  storage.SettingPaymentWindowHours,
	} {
		if v := envInt(env, 0); v > 0 {
			overrides[key] = strconv.Itoa(v)
		}
	}
	if len(overrides) > 0 {
		if err := settingsRepo.Update(ctx, overrides); err != nil {
			log.Fatalf("Failed to store window settings: %v", err)
		}
	}
	responseHours, err := settingsRepo.Int(ctx, storage.SettingResponseWindowHours, 48)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	paymentHours, err := settingsRepo.Int(ctx, storage.SettingPaymentWindowHours, 48)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run(ctx)

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		bridge, err := websocket.NewRedisBridge(ctx, redisAddr, hub)
		if err != nil {
			log.Fatalf("Failed to connect push relay: %v", err)
		}
		defer bridge.Close()
		hub.SetRelay(bridge)
		go func() {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Push relay stopped: %v", err)
			}
		}()
		log.Printf("Push relay connected to %s", redisAddr)
	}

	// Initialize services
	broadcaster := websocket.NewEventBroadcaster(hub)
	notifications := notification.NewService(storage.NewNotificationRepository(db), broadcaster)
	msgs := messaging.NewService(storage.NewConversationRepository(db), broadcaster, notifications)
	hub.SetConversationAccess(msgs)

	leaseRepo := storage.NewLeaseRepository(db)
	leases := lease.NewService(leaseRepo, notification.NewLeaseEvents(notifications, broadcaster), lease.Config{
		ResponseWindow: time.Duration(responseHours) * time.Hour,
		PaymentWindow:  time.Duration(paymentHours) * time.Hour,
	})
	payments := payment.NewService(leases, leaseRepo, storage.NewPaymentRepository(db))

	limiter := middleware.NewRateLimiter(envFloat("RATE_LIMIT_RPS", 1), envInt("RATE_LIMIT_BURST", 5))

	// Start schedulers
	expiryScheduler := payment.NewExpiryScheduler(leases)
	if err := expiryScheduler.Start(); err != nil {
		log.Fatalf("Failed to start expiry scheduler: %v", err)
	}
	expiryScheduler.Sweep(ctx)

	maintenance := cron.New(cron.WithSeconds())
	if _, err := maintenance.AddFunc("@every 10m", func() {
		if n := limiter.Cleanup(30 * time.Minute); n > 0 {
			log.Printf("Dropped %d idle rate limiters", n)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule maintenance: %v", err)
	}
	maintenance.Start()

	// Initialize HTTP router with services
	router := api.NewRouter(api.Services{
		DB:             db,
		Hub:            hub,
		Tokens:         auth.NewTokens(secret, tokenTTL),
		Leases:         leases,
		Payments:       payments,
		Messaging:      msgs,
		Notifications:  notifications,
		Settings:       settingsRepo,
		PaymentLimiter: limiter,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Server listening on %s", *addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop schedulers
	expiryScheduler.Stop()
	<-maintenance.Stop().Done()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}
	cancel()

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Ignoring invalid %s=%q", key, v)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Ignoring invalid %s=%q", key, v)
		return def
	}
	return f
}
