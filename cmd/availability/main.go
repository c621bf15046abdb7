package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/example/availability-engine/internal/application"
	"github.com/example/availability-engine/internal/calendar"
	"github.com/example/availability-engine/internal/config"
	"github.com/example/availability-engine/internal/credential"
	httptransport "github.com/example/availability-engine/internal/http"
	"github.com/example/availability-engine/internal/lock"
	"github.com/example/availability-engine/internal/logging"
	"github.com/example/availability-engine/internal/persistence/sqlite"
)

func main() {
	logger := logging.New(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	key, err := credentialKey(cfg)
	if err != nil {
		logger.Error("failed to prepare credential key", "error", err)
		os.Exit(1)
	}
	cipher, err := credential.NewCipher(key)
	if err != nil {
		logger.Error("failed to initialise credential cipher", "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	appointmentTypes := sqlite.NewAppointmentTypeRepository(pool, time.Now)
	appointments := sqlite.NewAppointmentRepository(pool, time.Now)
	connections := sqlite.NewConnectionRepository(pool, time.Now)
	scheduleConfig := sqlite.NewScheduleConfigRepository(pool)
	usage := sqlite.NewUsageRepository(pool)

	locks := lockProvider(cfg, logger)

	provider := calendar.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCalendarID)
	retryPolicy := calendar.NewRetryPolicy(cfg.RetryMax, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	client := calendar.NewClient(provider, retryPolicy)
	coordinator := calendar.NewRefreshCoordinator(connections, client, cipher, locks, calendar.RefreshSettings{
		LockTTL:   cfg.RefreshLockTTL,
		WaitDelay: cfg.RefreshLockWait,
	}, nil)
	accountCalendar := calendar.NewAccountCalendar(connections, coordinator, client)

	cache := application.NewBusyCache(cfg.BusyCacheEntries, cfg.BusyCacheTTL)
	availability := application.NewAvailabilityService(appointmentTypes, appointments, scheduleConfig, accountCalendar, cache, nil)
	bookings := application.NewBookingService(appointments, appointmentTypes, usage, accountCalendar, cache, uuid.NewString, uuid.NewString, nil)
	connectionService := application.NewConnectionService(connections, cipher, cache, uuid.NewString, nil)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Availability: httptransport.NewAvailabilityHandler(availability, logger),
		Bookings:     httptransport.NewBookingHandler(bookings, logger),
		Connections:  httptransport.NewConnectionHandler(connectionService, logger),
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("availability API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func credentialKey(cfg config.Config) ([]byte, error) {
	if cfg.CredentialKey != "" {
		return credential.KeyFromHex(cfg.CredentialKey)
	}
	return credential.DeriveKey(cfg.CredentialPassphrase, cfg.CredentialSalt, credential.DefaultArgon2idParams)
}

// lockProvider prefers Redis so the token refresh single-flight holds across
// replicas. Without a Redis address the in-process provider still serialises
// refreshes within this instance.
func lockProvider(cfg config.Config, logger *slog.Logger) lock.Provider {
	if cfg.RedisAddr == "" {
		logger.Warn("no redis address configured, refresh locks are process local")
		return lock.NewMemoryProvider(nil)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return lock.NewRedisProvider(client)
}
