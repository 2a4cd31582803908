package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string
	Version    string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	WeatherLang       string
	CountryCode       string
	CountryName       string

	GeminiAPIKey      string
	GeminiModel       string
	GenerationTimeout time.Duration

	MaxToolRounds          int
	QuotaBackoff           time.Duration
	QuotaMaxBackoff        time.Duration
	PrefetchSubjectWeather bool
	DefaultTheme           string
	Themes                 map[string]string

	RequestTimeout  time.Duration
	ChatTimeout     time.Duration
	MaxMessageRunes int
	MaxCityRunes    int

	CacheBackend string // "none", "in_memory" or "memcached"
	CacheTTL     time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	WarmSchedule string
	WarmCities   []string
	WarmTimeout  time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow      time.Duration
	DegradedThreshold   float64
	DegradedMinRequests int

	TrackedCities []string
}

type fileConfig struct {
	Server struct {
		Port    string `yaml:"port"`
		Version string `yaml:"version"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL         string `yaml:"url"`
		Timeout     string `yaml:"timeout"`
		Lang        string `yaml:"lang"`
		CountryCode string `yaml:"country_code"`
		CountryName string `yaml:"country_name"`
	} `yaml:"weather_api"`

	Gemini struct {
		Model   string `yaml:"model"`
		Timeout string `yaml:"timeout"`
	} `yaml:"gemini"`

	Assistant struct {
		MaxToolRounds          int               `yaml:"max_tool_rounds"`
		QuotaBackoff           string            `yaml:"quota_backoff"`
		QuotaMaxBackoff        string            `yaml:"quota_max_backoff"`
		PrefetchSubjectWeather *bool             `yaml:"prefetch_subject_weather"`
		DefaultTheme           string            `yaml:"default_theme"`
		Themes                 map[string]string `yaml:"themes"`
	} `yaml:"assistant"`

	Request struct {
		Timeout         string `yaml:"timeout"`
		ChatTimeout     string `yaml:"chat_timeout"`
		MaxMessageRunes int    `yaml:"max_message_runes"`
		MaxCityRunes    int    `yaml:"max_city_runes"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warm struct {
			Schedule string   `yaml:"schedule"`
			Cities   []string `yaml:"cities"`
			Timeout  string   `yaml:"timeout"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow      string `yaml:"degraded_window"`
		DegradedPct         int    `yaml:"degraded_pct"`
		DegradedMinRequests int    `yaml:"degraded_min_requests"`
	} `yaml:"health"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
}

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir reads root/.env (if present), root/config/{ENV_NAME}.yaml (default dev)
// and root/config/secrets.yaml. API keys come from the environment first, then
// the secrets file. Values already in the environment win over .env.
func LoadDir(root string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(root, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(root, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.Version = firstNonEmpty(fc.Server.Version, "dev")

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	cfg.GeminiAPIKey = firstNonEmpty(os.Getenv("GEMINI_API_KEY"), sec.GeminiAPIKey)
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY required (set env or config/secrets.yaml gemini_api_key)")
	}

	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.WeatherLang = firstNonEmpty(fc.WeatherAPI.Lang, "ja")
	cfg.CountryCode = firstNonEmpty(fc.WeatherAPI.CountryCode, "JP")
	cfg.CountryName = firstNonEmpty(fc.WeatherAPI.CountryName, "Japan")

	cfg.GeminiModel = firstNonEmpty(os.Getenv("GEMINI_MODEL"), fc.Gemini.Model, "gemini-2.5-flash")
	cfg.GenerationTimeout = parseDuration(fc.Gemini.Timeout, 30*time.Second)

	cfg.MaxToolRounds = fc.Assistant.MaxToolRounds
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 3
	}
	cfg.QuotaBackoff = parseDuration(fc.Assistant.QuotaBackoff, 60*time.Second)
	cfg.QuotaMaxBackoff = parseDuration(fc.Assistant.QuotaMaxBackoff, 60*time.Second)
	cfg.PrefetchSubjectWeather = true
	if fc.Assistant.PrefetchSubjectWeather != nil {
		cfg.PrefetchSubjectWeather = *fc.Assistant.PrefetchSubjectWeather
	}
	cfg.DefaultTheme = strings.ToLower(strings.TrimSpace(fc.Assistant.DefaultTheme))
	cfg.Themes = fc.Assistant.Themes

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)
	cfg.ChatTimeout = parseDuration(fc.Request.ChatTimeout, 120*time.Second)
	cfg.MaxMessageRunes = fc.Request.MaxMessageRunes
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = 2000
	}
	cfg.MaxCityRunes = fc.Request.MaxCityRunes
	if cfg.MaxCityRunes <= 0 {
		cfg.MaxCityRunes = 100
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "none"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.WarmSchedule = strings.TrimSpace(fc.Cache.Warm.Schedule)
	cfg.WarmCities = fc.Cache.Warm.Cities
	cfg.WarmTimeout = parseDuration(fc.Cache.Warm.Timeout, 30*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 60*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	pct := fc.Health.DegradedPct
	if pct <= 0 {
		pct = 50
	}
	cfg.DegradedThreshold = float64(pct) / 100
	cfg.DegradedMinRequests = fc.Health.DegradedMinRequests
	if cfg.DegradedMinRequests <= 0 {
		cfg.DegradedMinRequests = 5
	}

	cfg.TrackedCities = fc.Metrics.TrackedCities

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks cross-field constraints. RequestTimeout and ChatTimeout
// are raised when they would cut off the upstream call they wrap.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if cfg.ChatTimeout <= cfg.GenerationTimeout {
		cfg.ChatTimeout = cfg.GenerationTimeout + cfg.QuotaMaxBackoff + cfg.GenerationTimeout
	}
	if cfg.QuotaBackoff > cfg.QuotaMaxBackoff {
		return fmt.Errorf("assistant.quota_backoff (%s) exceeds quota_max_backoff (%s)", cfg.QuotaBackoff, cfg.QuotaMaxBackoff)
	}
	switch cfg.CacheBackend {
	case "none", "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be none, in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.WarmSchedule != "" && cfg.CacheBackend == "none" {
		return fmt.Errorf("cache.warm.schedule requires a cache backend")
	}
	if cfg.WarmSchedule != "" && len(cfg.WarmCities) == 0 {
		return fmt.Errorf("cache.warm.schedule set but cache.warm.cities is empty")
	}
	return nil
}
