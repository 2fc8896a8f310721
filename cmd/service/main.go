package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-proxy-service/internal/cache"
	"github.com/kjstillabower/weather-proxy-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-proxy-service/internal/cities"
	"github.com/kjstillabower/weather-proxy-service/internal/client"
	"github.com/kjstillabower/weather-proxy-service/internal/config"
	httphandler "github.com/kjstillabower/weather-proxy-service/internal/http"
	"github.com/kjstillabower/weather-proxy-service/internal/lifecycle"
	"github.com/kjstillabower/weather-proxy-service/internal/observability"
	"github.com/kjstillabower/weather-proxy-service/internal/service"
)

const inFlightCheckInterval = 50 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	closers := lifecycle.NewClosers(logger)

	weatherClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	weatherClient.SetGeoURL(cfg.GeoAPIURL)
	if cfg.UpstreamRateLimitRPS > 0 {
		weatherClient.SetRateLimiter(rate.NewLimiter(rate.Limit(cfg.UpstreamRateLimitRPS), cfg.UpstreamRateBurst))
	}
	weatherClient.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        "weather_api",
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), int(to))
			logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}))
	observability.SetCircuitBreakerState("weather_api", int(circuitbreaker.StateClosed))

	validateCtx, validateCancel := context.WithTimeout(context.Background(), cfg.WeatherAPITimeout)
	if err := weatherClient.ValidateAPIKey(validateCtx); err != nil {
		logger.Warn("weather API key check failed", zap.Error(err))
	}
	validateCancel()

	store, cachePing, err := newCache(cfg, closers)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	weatherService := service.NewWeatherService(weatherClient, store, logger, service.Options{
		CurrentTTL:      cfg.CurrentTTL,
		ForecastTTL:     cfg.ForecastTTL,
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
	})

	citiesStore, citiesPing, err := newCitiesStore(cfg, logger, closers)
	if err != nil {
		logger.Fatal("cities store", zap.Error(err))
	}
	logger.Info("cities backend", zap.String("backend", cfg.CitiesBackend))

	if len(cfg.WarmingCoordinates) > 0 {
		warmer := cache.NewCacheWarmer(weatherService, logger, cfg.WarmingTimeout)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.WarmingTimeout)
		if err := warmer.Warm(warmCtx, cfg.WarmingCoordinates); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmingInterval > 0 {
			stopWarming, err := warmer.StartPeriodic(cfg.WarmingCoordinates, cfg.WarmingInterval)
			if err != nil {
				logger.Error("periodic cache warming", zap.Error(err))
			} else {
				closers.AddFunc("cache warmer", stopWarming)
			}
		}
	}

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		StartTime:            time.Now(),
		CachePing:            cachePing,
		CitiesPing:           citiesPing,
	}
	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, citiesStore, healthConfig, logger)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	_ = httphandler.DrainInFlight(shutdownCtx, logger, inFlightCheckInterval)

	if err := closers.Close(shutdownCtx); err != nil {
		logger.Error("closing resources", zap.Error(err))
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newCache builds the configured cache backend. The returned ping is nil for
// the in-memory cache, which has nothing to probe.
func newCache(cfg *config.Config, closers *lifecycle.Closers) (cache.Cache, func() error, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		closers.Add("memcached", func(context.Context) error { return mc.Close() })
		return mc, mc.Ping, nil
	case "redis":
		rc := cache.NewRedisCache(cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.RedisTimeout,
		})
		closers.Add("redis", func(context.Context) error { return rc.Close() })
		return rc, rc.Ping, nil
	default:
		return cache.NewInMemoryCache(), nil, nil
	}
}

// newCitiesStore builds the saved-cities store, creating the sqlite
// directory when needed.
func newCitiesStore(cfg *config.Config, logger *zap.Logger, closers *lifecycle.Closers) (cities.Store, func() error, error) {
	if cfg.CitiesBackend == "in_memory" {
		s := cities.NewMemoryStore()
		closers.Add("cities", func(context.Context) error { return s.Close() })
		return s, nil, nil
	}
	if dir := filepath.Dir(cfg.CitiesSQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create cities dir: %w", err)
		}
	}
	s, err := cities.NewSQLiteStore(cfg.CitiesSQLitePath, logger)
	if err != nil {
		return nil, nil, err
	}
	closers.Add("cities", func(context.Context) error { return s.Close() })
	return s, s.Ping, nil
}
