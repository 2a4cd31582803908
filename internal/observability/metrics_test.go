package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that label dimensions match how the client,
// gateway, assistant and http packages use each vector.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/api/chat", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/api/chat").Observe(1.2)
	WeatherAPICallsTotal.WithLabelValues("not_found").Inc()
	WeatherAPIDuration.WithLabelValues("success").Observe(0.1)
	GatewayLookupsTotal.WithLabelValues("country_code", "not_found").Inc()
	ModelCallsTotal.WithLabelValues("quota").Inc()
	ModelCallDuration.Observe(2)
	ToolCallsTotal.WithLabelValues("get_weather", "success").Inc()
	FallbackRepliesTotal.WithLabelValues("quota").Inc()
	ChatRequestsTotal.WithLabelValues("generated").Inc()
	CacheHitsTotal.WithLabelValues("weather").Inc()
	CacheErrorsTotal.WithLabelValues("get").Inc()
	RecordCircuitBreakerTransition("weather_api", "closed", "open", 1)
}

func TestSetTrackedCities_and_RecordWeatherQuery(t *testing.T) {
	SetTrackedCities([]string{"Tokyo", "osaka"})
	defer SetTrackedCities(nil)

	before := testutil.ToFloat64(WeatherQueriesByCityTotal.WithLabelValues("tokyo"))
	RecordWeatherQuery(" TOKYO ")
	if got := testutil.ToFloat64(WeatherQueriesByCityTotal.WithLabelValues("tokyo")); got != before+1 {
		t.Errorf("tokyo counter = %v, want %v", got, before+1)
	}

	if got := CityLabel("Atlantis"); got != "other" {
		t.Errorf("CityLabel(Atlantis) = %q, want other", got)
	}
	if got := CityLabel("Osaka"); got != "osaka" {
		t.Errorf("CityLabel(Osaka) = %q, want osaka", got)
	}
}

func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "weatherMismatchTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("MetricsHandler response missing %s", name)
		}
	}
}
