package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-chat-assistant/internal/ai"
	"github.com/kjstillabower/weather-chat-assistant/internal/assistant"
	"github.com/kjstillabower/weather-chat-assistant/internal/cache"
	"github.com/kjstillabower/weather-chat-assistant/internal/circuitbreaker"
	"github.com/kjstillabower/weather-chat-assistant/internal/client"
	"github.com/kjstillabower/weather-chat-assistant/internal/config"
	"github.com/kjstillabower/weather-chat-assistant/internal/gateway"
	httphandler "github.com/kjstillabower/weather-chat-assistant/internal/http"
	"github.com/kjstillabower/weather-chat-assistant/internal/lifecycle"
	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
	"github.com/kjstillabower/weather-chat-assistant/internal/traffic"
)

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

	weatherClient, err := client.NewOpenWeatherClientWithOptions(cfg.WeatherAPIKey, cfg.WeatherAPIURL, client.Options{
		Lang:           cfg.WeatherLang,
		Timeout:        cfg.WeatherAPITimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	})
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			IsFailure: func(err error) bool {
				return !errors.Is(err, client.ErrLocationNotFound)
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), int(to))
				logger.Warn("circuit breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(breaker)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	validateCtx, validateCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := weatherClient.ValidateAPIKey(validateCtx); err != nil {
		logger.Warn("weather API key validation failed", zap.Error(err))
	}
	validateCancel()

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "in_memory":
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	default:
		logger.Info("cache backend: none")
	}

	weatherGateway := gateway.New(weatherClient, gateway.Settings{
		Strategies: gateway.DefaultStrategies(cfg.CountryCode, cfg.CountryName),
		Cache:      cacheSvc,
		CacheTTL:   cfg.CacheTTL,
	}, logger)

	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	var warmer *cache.Warmer
	if cacheSvc != nil && cfg.WarmSchedule != "" {
		warmer = cache.NewWarmer(weatherGateway, logger, cfg.WarmTimeout)
		if err := warmer.Start(context.Background(), cfg.WarmSchedule, cfg.WarmCities); err != nil {
			logger.Fatal("cache warming", zap.Error(err))
		}
		logger.Info("cache warming scheduled", zap.String("schedule", cfg.WarmSchedule), zap.Strings("cities", cfg.WarmCities))
	}

	model, err := ai.NewGeminiModel(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		logger.Fatal("gemini model", zap.Error(err))
	}

	settings := assistant.DefaultSettings()
	for tag, text := range cfg.Themes {
		settings.Themes[strings.ToLower(tag)] = text
	}
	if cfg.DefaultTheme != "" {
		settings.DefaultTheme = cfg.DefaultTheme
	}
	settings.MaxToolRounds = cfg.MaxToolRounds
	settings.DefaultBackoff = cfg.QuotaBackoff
	settings.MaxBackoff = cfg.QuotaMaxBackoff
	settings.PrefetchSubjectWeather = cfg.PrefetchSubjectWeather
	settings.GenerationTimeout = cfg.GenerationTimeout
	orchestrator := assistant.New(weatherGateway, model, settings, logger)

	tracker := traffic.NewTracker(traffic.DefaultRetention)
	state := lifecycle.New()

	healthConfig := httphandler.HealthConfig{
		Version:             cfg.Version,
		DegradedWindow:      cfg.DegradedWindow,
		DegradedThreshold:   cfg.DegradedThreshold,
		DegradedMinRequests: cfg.DegradedMinRequests,
	}
	if breaker != nil {
		healthConfig.BreakerState = breaker.State
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	handler := httphandler.NewHandler(weatherGateway, orchestrator, tracker, state, healthConfig, httphandler.Limits{
		MaxCityRunes:    cfg.MaxCityRunes,
		MaxMessageRunes: cfg.MaxMessageRunes,
	}, logger)

	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		ChatTimeout:    cfg.ChatTimeout,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		Tracker:        tracker,
		InFlight:       inFlight,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ChatTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("model", cfg.GeminiModel))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.BeginShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if warmer != nil {
		warmer.Stop(waitCtx)
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
