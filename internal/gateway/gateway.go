package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-chat-assistant/internal/cache"
	"github.com/kjstillabower/weather-chat-assistant/internal/client"
	"github.com/kjstillabower/weather-chat-assistant/internal/models"
	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
)

// Strategy is one name-query form tried against the provider: the city
// name followed by Suffix (e.g. ",JP"). Label names it in metrics.
type Strategy struct {
	Label  string
	Suffix string
}

// DefaultStrategies tries "<name>,<countryCode>", then "<name>", then
// "<name>,<countryName>".
func DefaultStrategies(countryCode, countryName string) []Strategy {
	if countryCode == "" {
		countryCode = "JP"
	}
	if countryName == "" {
		countryName = "Japan"
	}
	return []Strategy{
		{Label: "country_code", Suffix: "," + countryCode},
		{Label: "bare", Suffix: ""},
		{Label: "country_name", Suffix: "," + countryName},
	}
}

// Settings configures a Gateway.
type Settings struct {
	Strategies []Strategy
	// Cache is optional; nil disables caching.
	Cache    cache.Cache
	CacheTTL time.Duration
}

// Gateway turns a CityQuery into a WeatherRecord, retrying name queries
// across several provider query forms.
type Gateway struct {
	client     client.WeatherClient
	strategies []Strategy
	cache      cache.Cache
	ttl        time.Duration
	logger     *zap.Logger
}

// New creates a Gateway. Empty Strategies fall back to DefaultStrategies("JP", "Japan").
func New(c client.WeatherClient, settings Settings, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	strategies := settings.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies("", "")
	}
	ttl := settings.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Gateway{
		client:     c,
		strategies: strategies,
		cache:      settings.Cache,
		ttl:        ttl,
		logger:     logger,
	}
}

// Fetch returns current weather for query. Name queries that are not found
// under any strategy yield *NotFoundError; every other failure is a
// *ProviderError.
func (g *Gateway) Fetch(ctx context.Context, query models.CityQuery) (models.WeatherRecord, error) {
	if err := query.Validate(); err != nil {
		return models.WeatherRecord{}, err
	}
	logger := observability.LoggerFromContext(ctx, g.logger)

	key := cacheKey(query)
	if record, ok := g.cacheGet(ctx, key, logger); ok {
		return record, nil
	}

	var (
		record models.WeatherRecord
		err    error
	)
	if query.IsName() {
		record, err = g.fetchByName(ctx, query.Name, logger)
	} else {
		record, err = g.fetchByCoordinates(ctx, query.Lat, query.Lon)
	}
	if err != nil {
		return models.WeatherRecord{}, err
	}

	observability.RecordWeatherQuery(record.City)
	g.cacheSet(ctx, key, record, logger)
	return record, nil
}

func (g *Gateway) fetchByCoordinates(ctx context.Context, lat, lon float64) (models.WeatherRecord, error) {
	record, err := g.client.CurrentByCoordinates(ctx, lat, lon)
	if err != nil {
		observability.GatewayLookupsTotal.WithLabelValues("coordinates", outcomeLabel(err)).Inc()
		return models.WeatherRecord{}, &ProviderError{Query: fmt.Sprintf("%.4f,%.4f", lat, lon), Err: err}
	}
	observability.GatewayLookupsTotal.WithLabelValues("coordinates", "success").Inc()
	return record, nil
}

func (g *Gateway) fetchByName(ctx context.Context, name string, logger *zap.Logger) (models.WeatherRecord, error) {
	city := canonicalName(name)
	logger.Debug("weather lookup", zap.String("input", strings.TrimSpace(name)), zap.String("city", city))

	for _, s := range g.strategies {
		q := city + s.Suffix
		record, err := g.client.CurrentByName(ctx, q)
		if err == nil {
			observability.GatewayLookupsTotal.WithLabelValues(s.Label, "success").Inc()
			logger.Debug("weather found", zap.String("query", q), zap.String("strategy", s.Label))
			return record, nil
		}
		observability.GatewayLookupsTotal.WithLabelValues(s.Label, outcomeLabel(err)).Inc()
		if !errors.Is(err, client.ErrLocationNotFound) {
			return models.WeatherRecord{}, &ProviderError{Query: q, Err: err}
		}
	}
	return models.WeatherRecord{}, &NotFoundError{City: strings.TrimSpace(name)}
}

func (g *Gateway) cacheGet(ctx context.Context, key string, logger *zap.Logger) (models.WeatherRecord, bool) {
	if g.cache == nil {
		return models.WeatherRecord{}, false
	}
	record, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return models.WeatherRecord{}, false
	}
	if ok {
		observability.CacheHitsTotal.WithLabelValues("weather").Inc()
		logger.Debug("cache hit", zap.String("key", key))
	}
	return record, ok
}

func (g *Gateway) cacheSet(ctx context.Context, key string, record models.WeatherRecord, logger *zap.Logger) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, record, g.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// cacheKey is the canonical city name lower-cased, or coordinates rounded
// to two decimals (about 1km).
func cacheKey(query models.CityQuery) string {
	if query.IsName() {
		return "name:" + strings.ToLower(canonicalName(query.Name))
	}
	round := func(v float64) float64 { return math.Round(v*100) / 100 }
	return fmt.Sprintf("coord:%.2f,%.2f", round(query.Lat), round(query.Lon))
}

func outcomeLabel(err error) string {
	switch client.CategorizeError(err) {
	case client.ErrorCategoryLocationNotFound:
		return "not_found"
	case client.ErrorCategoryRateLimited:
		return "rate_limited"
	case client.ErrorCategoryTimeout:
		return "timeout"
	case client.ErrorCategoryCircuitOpen:
		return "circuit_open"
	default:
		return "error"
	}
}
