//go:build integration
// +build integration

// Package testhelpers builds live dependencies for integration tests.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-chat-assistant/internal/cache"
	"github.com/kjstillabower/weather-chat-assistant/internal/client"
	"github.com/kjstillabower/weather-chat-assistant/internal/gateway"
	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "none", "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	cacheBackend := os.Getenv("INTEGRATION_CACHE_BACKEND")
	if cacheBackend == "" {
		cacheBackend = "in_memory"
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  cacheBackend,
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationGateway builds a gateway over the live provider with the
// configured cache. The returned cache is nil when caching is off. Memcached
// falls back to in-memory when it is unreachable.
func SetupIntegrationGateway(t *testing.T, cfg IntegrationTestConfig) (*gateway.Gateway, cache.Cache, func()) {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	var (
		cacheSvc cache.Cache
		cleanup  = func() {}
	)
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
			cacheSvc = cache.NewInMemoryCache()
		}
	case "none":
	default:
		cacheSvc = cache.NewInMemoryCache()
	}

	gw := gateway.New(SetupIntegrationClient(t, cfg), gateway.Settings{
		Cache:    cacheSvc,
		CacheTTL: 5 * time.Minute,
	}, logger)
	return gw, cacheSvc, cleanup
}

// SetupIntegrationClient creates a live weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClientWithOptions(cfg.APIKey, cfg.APIURL, client.Options{
		Lang:    "ja",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithOptions() error = %v", err)
	}
	return c
}
