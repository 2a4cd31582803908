package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route template. Watch for: drops (service down) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP latency. Chat requests include model generation, so expect seconds, not millis.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap calls by status (success, not_found, rate_limited, client_error, server_error, error).
	WeatherAPICallsTotal *prometheus.CounterVec

	// OpenWeatherMap latency. Watch for: p95 > 2s.
	WeatherAPIDuration *prometheus.HistogramVec

	// Transport retries against the weather API.
	WeatherAPIRetriesTotal prometheus.Counter

	// Gateway lookups by strategy (coordinates, country_code, bare, country_name) and outcome.
	// High not_found on country_code with success on bare means mostly international traffic.
	GatewayLookupsTotal *prometheus.CounterVec

	// Per-city lookups (allow-list; others go to "other").
	WeatherQueriesByCityTotal *prometheus.CounterVec

	// Weather discarded because the provider answered for a different city.
	WeatherMismatchTotal prometheus.Counter

	// Model calls by outcome (success, quota, error).
	ModelCallsTotal *prometheus.CounterVec

	// Model latency per call.
	ModelCallDuration prometheus.Histogram

	// Tool invocations requested by the model, by tool and outcome.
	ToolCallsTotal *prometheus.CounterVec

	// Deterministic replies served instead of generated text, by reason (quota, model_error).
	FallbackRepliesTotal *prometheus.CounterVec

	// Chat requests by outcome (generated, fallback, failed).
	ChatRequestsTotal *prometheus.CounterVec

	// Cache hits and errors, only when a cache backend is configured.
	CacheHitsTotal   *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Cache warming runs and their failures.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Circuit breaker state (0 closed, 1 open, 2 half-open) and transitions.
	CircuitBreakerState            *prometheus.GaugeVec
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials on /api.
	RateLimitDeniedTotal prometheus.Counter

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "httpRequestsTotal", Help: "Total number of HTTP requests"},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "httpRequestsInFlight", Help: "Number of HTTP requests currently being served"},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherApiCallsTotal", Help: "Total number of OpenWeatherMap API calls"},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "weatherApiRetriesTotal", Help: "Total number of retry attempts for weather API calls"},
	)
	GatewayLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gatewayLookupsTotal", Help: "Weather gateway lookups by query strategy and outcome"},
		[]string{"strategy", "outcome"},
	)
	WeatherQueriesByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weatherQueriesByCityTotal", Help: "Weather queries by city (allow-list; others use city=other)"},
		[]string{"city"},
	)
	WeatherMismatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "weatherMismatchTotal", Help: "Fetched weather discarded because it named a different city"},
	)
	ModelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "modelCallsTotal", Help: "Language model calls by outcome"},
		[]string{"outcome"},
	)
	ModelCallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modelCallDurationSeconds",
			Help:    "Language model latency in seconds (per call)",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30},
		},
	)
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "toolCallsTotal", Help: "Tool calls requested by the model"},
		[]string{"tool", "outcome"},
	)
	FallbackRepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fallbackRepliesTotal", Help: "Deterministic replies served instead of generated text"},
		[]string{"reason"},
	)
	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "chatRequestsTotal", Help: "Chat requests by outcome"},
		[]string{"outcome"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheHitsTotal", Help: "Total number of weather cache hits"},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheErrorsTotal", Help: "Weather cache errors by operation"},
		[]string{"operation"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cacheWarmingTotal", Help: "Cache warming runs"},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cacheWarmingErrorsTotal", Help: "Cache warming runs with at least one failed city"},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "cacheWarmingDurationSeconds", Help: "Cache warming run duration", Buckets: prometheus.DefBuckets},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "circuitBreakerState", Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open"},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "circuitBreakerTransitionsTotal", Help: "Circuit breaker state transitions"},
		[]string{"component", "from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rateLimitDeniedTotal", Help: "Total number of requests denied by rate limiter (429)"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		GatewayLookupsTotal, WeatherQueriesByCityTotal, WeatherMismatchTotal,
		ModelCallsTotal, ModelCallDuration, ToolCallsTotal,
		FallbackRepliesTotal, ChatRequestsTotal,
		CacheHitsTotal, CacheErrorsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal,
	)
}

// RecordCircuitBreakerTransition updates the state gauge and transition counter.
// state follows circuitbreaker.State numbering.
func RecordCircuitBreakerTransition(component, from, to string, state int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// SetTrackedCities sets the allow-list for per-city metrics. Other cities increment "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordWeatherQuery counts a lookup for city, bucketing untracked cities as "other".
func RecordWeatherQuery(city string) {
	WeatherQueriesByCityTotal.WithLabelValues(CityLabel(city)).Inc()
}

// CityLabel returns the metric label for city: itself when tracked, else "other".
func CityLabel(city string) string {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c]
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
