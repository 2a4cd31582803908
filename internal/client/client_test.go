package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/kjstillabower/weather-chat-assistant/internal/circuitbreaker"
	"github.com/kjstillabower/weather-chat-assistant/internal/models"
	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
)

const testAPIKey = "test-api-key-12345"

func tokyoPayload() map[string]interface{} {
	return map[string]interface{}{
		"name":  "Tokyo",
		"coord": map[string]interface{}{"lat": 35.6895, "lon": 139.6917},
		"main": map[string]interface{}{
			"temp":       18.4,
			"feels_like": 17.5,
			"humidity":   60,
		},
		"weather": []map[string]interface{}{
			{"main": "Clear", "description": "晴天", "icon": "01d"},
		},
		"wind": map[string]interface{}{"speed": 3.2},
		"sys":  map[string]interface{}{"country": "JP"},
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "empty API key", apiKey: "", wantErr: ErrInvalidAPIKey},
		{name: "too short API key", apiKey: "short", wantErr: ErrInvalidAPIKey},
		{name: "valid API key", apiKey: testAPIKey, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if c != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil || c == nil {
				t.Fatalf("NewOpenWeatherClient() = %v, %v", c, err)
			}
		})
	}
}

func TestOpenWeatherClient_CurrentByName_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "Tokyo,JP" {
			t.Errorf("q = %q, want Tokyo,JP", q.Get("q"))
		}
		if q.Get("appid") != testAPIKey {
			t.Errorf("expected API key in query")
		}
		if q.Get("units") != "metric" {
			t.Errorf("units = %q, want metric", q.Get("units"))
		}
		if q.Get("lang") != "ja" {
			t.Errorf("lang = %q, want ja", q.Get("lang"))
		}
		writeJSON(w, http.StatusOK, tokyoPayload())
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	got, err := c.CurrentByName(context.Background(), "Tokyo,JP")
	if err != nil {
		t.Fatalf("CurrentByName() error = %v", err)
	}
	want := models.WeatherRecord{
		City:        "Tokyo",
		Country:     "JP",
		Temperature: 18,
		FeelsLike:   18,
		Description: "晴天",
		Main:        "Clear",
		Humidity:    60,
		WindSpeed:   3.2,
		Icon:        "01d",
		Coordinates: models.Coordinates{Lat: 35.6895, Lon: 139.6917},
	}
	if got != want {
		t.Errorf("CurrentByName() = %+v, want %+v", got, want)
	}
}

func TestOpenWeatherClient_CurrentByCoordinates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("lat") != "35.6895" || q.Get("lon") != "139.6917" {
			t.Errorf("lat/lon = %q/%q", q.Get("lat"), q.Get("lon"))
		}
		if q.Has("q") {
			t.Error("coordinate lookup must not send q")
		}
		writeJSON(w, http.StatusOK, tokyoPayload())
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	got, err := c.CurrentByCoordinates(context.Background(), 35.6895, 139.6917)
	if err != nil {
		t.Fatalf("CurrentByCoordinates() error = %v", err)
	}
	if got.City != "Tokyo" {
		t.Errorf("City = %q, want Tokyo", got.City)
	}
}

func TestOpenWeatherClient_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       interface{}
		wantErr    error
		wantText   string
	}{
		{"401", http.StatusUnauthorized, map[string]interface{}{"cod": 401, "message": "Invalid API key"}, ErrInvalidAPIKey, "Invalid API key"},
		{"404", http.StatusNotFound, map[string]interface{}{"cod": "404", "message": "city not found"}, ErrLocationNotFound, "city not found"},
		{"429", http.StatusTooManyRequests, map[string]interface{}{}, ErrRateLimited, "HTTP 429"},
		{"500", http.StatusInternalServerError, nil, ErrUpstreamFailure, "HTTP 500"},
		{"503", http.StatusServiceUnavailable, nil, ErrUpstreamFailure, "HTTP 503"},
		{"400", http.StatusBadRequest, map[string]interface{}{"message": "wrong latitude"}, ErrUpstreamFailure, "wrong latitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.statusCode, tt.body)
			}))
			defer server.Close()

			c, _ := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
			_, err := c.CurrentByName(context.Background(), "Atlantis")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CurrentByName() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("CurrentByName() error = %q, want it to contain %q", err, tt.wantText)
			}
		})
	}
}

func TestOpenWeatherClient_RetryLogic(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, tokyoPayload())
	}))
	defer server.Close()

	c, err := NewOpenWeatherClientWithOptions(testAPIKey, server.URL, Options{
		Timeout:        2 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: 10 * time.Millisecond,
		RetryMaxDelay:  100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithOptions() error = %v", err)
	}

	if _, err := c.CurrentByName(context.Background(), "Tokyo"); err != nil {
		t.Fatalf("CurrentByName() error = %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestOpenWeatherClient_NoRetryOnNotFound(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClientWithOptions(testAPIKey, server.URL, Options{RetryAttempts: 3, RetryBaseDelay: time.Millisecond})
	_, err := c.CurrentByName(context.Background(), "Atlantis")
	if !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("CurrentByName() error = %v, want ErrLocationNotFound", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("expected 1 attempt (no retry), got %d", got)
	}
}

func TestOpenWeatherClient_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClientWithOptions(testAPIKey, server.URL, Options{RetryAttempts: 2, RetryBaseDelay: time.Millisecond})
	_, err := c.CurrentByName(context.Background(), "Tokyo")
	if err == nil || !strings.Contains(err.Error(), "exhausted retries") {
		t.Errorf("CurrentByName() error = %v, want 'exhausted retries'", err)
	}
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("CurrentByName() error = %v, want ErrUpstreamFailure", err)
	}
}

func TestOpenWeatherClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CurrentByName(ctx, "Tokyo")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("CurrentByName() error = %v, want context.Canceled", err)
	}
}

func TestOpenWeatherClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClient(testAPIKey, server.URL, 50*time.Millisecond)
	_, err := c.CurrentByName(context.Background(), "Tokyo")
	if got := CategorizeError(err); got != ErrorCategoryTimeout {
		t.Errorf("CategorizeError(%v) = %q, want timeout", err, got)
	}
}

func TestOpenWeatherClient_CorrelationID(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("X-Correlation-ID")
		writeJSON(w, http.StatusOK, tokyoPayload())
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	ctx := observability.WithCorrelationID(context.Background(), "test-correlation-id-123")
	if _, err := c.CurrentByName(ctx, "Tokyo"); err != nil {
		t.Fatalf("CurrentByName() error = %v", err)
	}
	if captured != "test-correlation-id-123" {
		t.Errorf("X-Correlation-ID header = %q, want test-correlation-id-123", captured)
	}
}

func TestOpenWeatherClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	_, err := c.CurrentByName(context.Background(), "Tokyo")
	if err == nil || !strings.Contains(err.Error(), "parse response") {
		t.Errorf("CurrentByName() error = %v, want 'parse response'", err)
	}
}

func TestOpenWeatherClient_CircuitBreakerIgnoresNotFound(t *testing.T) {
	var status int32 = http.StatusNotFound
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
	c.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, ErrLocationNotFound) },
	}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.CurrentByName(ctx, "Atlantis"); !errors.Is(err, ErrLocationNotFound) {
			t.Fatalf("CurrentByName() error = %v, want ErrLocationNotFound", err)
		}
	}

	atomic.StoreInt32(&status, http.StatusInternalServerError)
	for i := 0; i < 2; i++ {
		_, _ = c.CurrentByName(ctx, "Tokyo")
	}
	before := atomic.LoadInt32(&attempts)
	_, err := c.CurrentByName(ctx, "Tokyo")
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("CurrentByName() error = %v, want circuit open", err)
	}
	if atomic.LoadInt32(&attempts) != before {
		t.Error("upstream called while breaker open")
	}
}

func TestMapResponse(t *testing.T) {
	tests := []struct {
		name string
		in   openWeatherResponse
		want models.WeatherRecord
	}{
		{
			name: "rounds half away from zero",
			in: func() openWeatherResponse {
				var r openWeatherResponse
				r.Name = "Sapporo"
				r.Main.Temp = -2.5
				r.Main.FeelsLike = 0.5
				return r
			}(),
			want: models.WeatherRecord{City: "Sapporo", Temperature: -3, FeelsLike: 1},
		},
		{
			name: "negative wind clamps to zero",
			in: func() openWeatherResponse {
				var r openWeatherResponse
				r.Name = "Naha"
				r.Wind.Speed = -1
				return r
			}(),
			want: models.WeatherRecord{City: "Naha"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapResponse(tt.in); got != tt.want {
				t.Errorf("mapResponse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOpenWeatherClient_calculateBackoff(t *testing.T) {
	c := &OpenWeatherClient{
		retryBaseDelay: 100 * time.Millisecond,
		retryMaxDelay:  2 * time.Second,
	}

	tests := []struct {
		attempt int
		wantMax time.Duration
	}{
		{1, 110 * time.Millisecond},
		{2, 220 * time.Millisecond},
		{5, 2200 * time.Millisecond},
	}
	for _, tt := range tests {
		got := c.calculateBackoff(tt.attempt)
		if got <= 0 || got > tt.wantMax {
			t.Errorf("calculateBackoff(%d) = %v, want (0, %v]", tt.attempt, got, tt.wantMax)
		}
	}
}

func TestOpenWeatherClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"success", http.StatusOK, false},
		{"401 invalid key", http.StatusUnauthorized, true},
		{"500 server error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			c, _ := NewOpenWeatherClient(testAPIKey, server.URL, 2*time.Second)
			err := c.ValidateAPIKey(context.Background())
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("ValidateAPIKey() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateAPIKey() expected error, got nil")
			}
			if tt.statusCode == http.StatusUnauthorized && !errors.Is(err, ErrInvalidAPIKey) {
				t.Errorf("ValidateAPIKey() error = %v, want ErrInvalidAPIKey", err)
			}
		})
	}
}
