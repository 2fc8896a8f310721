//go:build integration
// +build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-proxy-service/internal/models"
)

func integrationMemcached(t *testing.T) *MemcachedCache {
	t.Helper()
	addr := os.Getenv("MEMCACHED_ADDRS")
	if addr == "" {
		addr = "localhost:11211"
	}
	c, err := NewMemcachedCache(addr, 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Ping(); err != nil {
		t.Skipf("memcached not reachable at %s: %v", addr, err)
	}
	return c
}

func TestMemcachedCache_CurrentRoundTrip_Integration(t *testing.T) {
	c := integrationMemcached(t)
	ctx := context.Background()

	want := models.CurrentWeather{Temp: 12.5, Description: "clear sky", Icon: "01d", Dt: 1709294400}
	raw, err := EncodeCurrent(want)
	if err != nil {
		t.Fatalf("EncodeCurrent() error = %v", err)
	}
	key := Key(KindCurrent, models.Coordinate{Lat: 47.6062, Lon: -122.3321})
	if err := c.Set(ctx, key, raw, KindCurrent.TTL()); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get(%s) = ok %v, err %v", key, ok, err)
	}
	decoded, err := DecodeCurrent(got)
	if err != nil {
		t.Fatalf("DecodeCurrent() error = %v", err)
	}
	if decoded != want {
		t.Errorf("decoded = %+v, want %+v", decoded, want)
	}
}

func TestMemcachedCache_Get_Miss_Integration(t *testing.T) {
	c := integrationMemcached(t)

	_, ok, err := c.Get(context.Background(), "weather:current:nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

func TestMemcachedCache_Expiry_Integration(t *testing.T) {
	c := integrationMemcached(t)
	ctx := context.Background()

	if err := c.Set(ctx, "weather:forecast:0.00:0.00", []byte("[]"), time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(2100 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "weather:forecast:0.00:0.00"); ok {
		t.Error("entry still present after ttl")
	}
}
