//go:build integration
// +build integration

package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-chat-assistant/internal/ai"
	"github.com/kjstillabower/weather-chat-assistant/internal/assistant"
	"github.com/kjstillabower/weather-chat-assistant/internal/cache"
	"github.com/kjstillabower/weather-chat-assistant/internal/lifecycle"
	"github.com/kjstillabower/weather-chat-assistant/internal/models"
	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
	"github.com/kjstillabower/weather-chat-assistant/internal/traffic"
	testhelpers "github.com/kjstillabower/weather-chat-assistant/internal/testhelpers"
)

var testLogger *zap.Logger

func init() {
	var err error
	testLogger, err = observability.NewLogger()
	if err != nil {
		panic(err)
	}
}

// quotaModel always reports quota exhaustion, so chats exercise the fallback
// against live weather without a model key.
type quotaModel struct{}

func (quotaModel) Generate(ctx context.Context, messages []ai.Message, opts ai.Options) (ai.Response, error) {
	return ai.Response{}, &ai.QuotaError{RetryAfter: time.Millisecond}
}

// setupIntegrationRouter wires the live gateway behind the full router.
func setupIntegrationRouter(t *testing.T, limiter *rate.Limiter) (http.Handler, cache.Cache, func()) {
	t.Helper()
	cfg := testhelpers.GetIntegrationConfig(t)
	gw, cacheSvc, cleanup := testhelpers.SetupIntegrationGateway(t, cfg)

	settings := assistant.DefaultSettings()
	settings.DefaultBackoff = time.Millisecond
	settings.MaxBackoff = time.Millisecond
	orch := assistant.New(gw, quotaModel{}, settings, testLogger)

	tracker := traffic.NewTracker(0)
	h := NewHandler(gw, orch, tracker, lifecycle.New(), HealthConfig{}, Limits{MaxCityRunes: 100, MaxMessageRunes: 2000}, testLogger)
	router := NewRouter(h, RouterConfig{
		RequestTimeout: 10 * time.Second,
		ChatTimeout:    30 * time.Second,
		Limiter:        limiter,
		Tracker:        tracker,
		Logger:         testLogger,
	})
	return router, cacheSvc, cleanup
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestIntegration_GetWeather_CacheHit verifies a cached record is served without a provider call.
func TestIntegration_GetWeather_CacheHit(t *testing.T) {
	router, cacheSvc, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()
	if cacheSvc == nil {
		t.Skip("cache disabled")
	}

	cached := models.WeatherRecord{City: "Tokyo", Country: "JP", Temperature: -40, Description: "cached"}
	if err := cacheSvc.Set(context.Background(), "name:tokyo", cached, 5*time.Minute); err != nil {
		t.Fatalf("cache Set() error = %v", err)
	}

	w := doRequest(router, http.MethodGet, "/api/weather?city=%E6%9D%B1%E4%BA%AC", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var got models.WeatherRecord
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Temperature != -40 || got.Description != "cached" {
		t.Errorf("got %+v, want the cached record", got)
	}
}

// TestIntegration_GetWeather_Live verifies the name and coordinate paths against the provider.
func TestIntegration_GetWeather_Live(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	for _, path := range []string{"/api/weather?city=Osaka", "/api/weather?lat=35.68&lon=139.76"} {
		w := doRequest(router, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, body %s", path, w.Code, w.Body.String())
			continue
		}
		var got models.WeatherRecord
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.City == "" || got.Humidity < 0 || got.Humidity > 100 {
			t.Errorf("%s: implausible record %+v", path, got)
		}
	}
}

// TestIntegration_GetWeather_UnknownCity verifies a not-found surfaces as 500 {error}.
func TestIntegration_GetWeather_UnknownCity(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	w := doRequest(router, http.MethodGet, "/api/weather?city=Atlantisxyzzy", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

// TestIntegration_Chat_FallbackWithLiveWeather verifies the quota path serves
// the deterministic reply built from real weather.
func TestIntegration_Chat_FallbackWithLiveWeather(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	w := doRequest(router, http.MethodPost, "/api/chat", `{"message":"東京の天気を教えて","theme":"travel"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Response string                `json:"response"`
		Weather  *models.WeatherRecord `json:"weather"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Weather == nil || body.Weather.City != "Tokyo" {
		t.Fatalf("weather = %+v, want Tokyo", body.Weather)
	}
	if !strings.Contains(body.Response, "Tokyo") {
		t.Errorf("response = %q, want fallback naming Tokyo", body.Response)
	}
}

// TestIntegration_GetMetrics_Format verifies exposition includes the app metrics.
func TestIntegration_GetMetrics_Format(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	doRequest(router, http.MethodGet, "/api/weather?city=Kyoto", "")
	w := doRequest(router, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	for _, name := range []string{"httpRequestsTotal", "weatherApiCallsTotal", "gatewayLookupsTotal"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

// TestIntegration_RateLimiting_Enforcement verifies the limiter denies past the burst.
func TestIntegration_RateLimiting_Enforcement(t *testing.T) {
	burst := 5
	router, _, cleanup := setupIntegrationRouter(t, rate.NewLimiter(1, burst))
	defer cleanup()

	denied := 0
	for i := 0; i < burst+5; i++ {
		w := doRequest(router, http.MethodGet, "/api/weather?city=Tokyo", "")
		if w.Code == http.StatusTooManyRequests {
			denied++
		}
	}
	if denied == 0 {
		t.Error("no requests were rate limited")
	}
}
