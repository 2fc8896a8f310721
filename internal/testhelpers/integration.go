//go:build integration
// +build integration

// Package testhelpers builds real-upstream stacks for integration tests.
package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/weather-proxy-service/internal/cache"
	"github.com/kjstillabower/weather-proxy-service/internal/cities"
	"github.com/kjstillabower/weather-proxy-service/internal/client"
	"github.com/kjstillabower/weather-proxy-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        envOr("WEATHER_API_URL", client.DefaultAPIURL),
		CacheBackend:  envOr("INTEGRATION_CACHE_BACKEND", "in_memory"),
		MemcachedAddr: envOr("MEMCACHED_ADDRS", "localhost:11211"),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// NewIntegrationCache returns the configured cache backend, falling back to
// in-memory when the backing server is unreachable. Cleanup is registered on t.
func NewIntegrationCache(t *testing.T, cfg IntegrationTestConfig) cache.Cache {
	t.Helper()
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			t.Cleanup(func() { mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			return mc
		}
		t.Logf("Memcached not available (%v), using in-memory cache", err)
	case "redis":
		rc := cache.NewRedisCache(cache.RedisOptions{Addr: cfg.RedisAddr, Timeout: 500 * time.Millisecond})
		if err := rc.Ping(); err == nil {
			t.Cleanup(func() { rc.Close() })
			t.Logf("Using Redis cache at %s", cfg.RedisAddr)
			return rc
		}
		rc.Close()
		t.Logf("Redis not available at %s, using in-memory cache", cfg.RedisAddr)
	}
	return cache.NewInMemoryCache()
}

// SetupIntegrationService creates a weather service against the real upstream.
// Returns the service and the cache it writes to.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, cache.Cache) {
	t.Helper()
	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	store := NewIntegrationCache(t, cfg)
	return service.NewWeatherService(weatherClient, store, zaptest.NewLogger(t), service.Options{}), store
}

// SetupCitiesStore opens a sqlite saved-city store in a temp dir.
func SetupCitiesStore(t *testing.T) cities.Store {
	t.Helper()
	s, err := cities.NewSQLiteStore(filepath.Join(t.TempDir(), "cities.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
