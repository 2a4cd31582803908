package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-chat-assistant/internal/ai"
	"github.com/kjstillabower/weather-chat-assistant/internal/assistant"
	"github.com/kjstillabower/weather-chat-assistant/internal/circuitbreaker"
	"github.com/kjstillabower/weather-chat-assistant/internal/lifecycle"
	"github.com/kjstillabower/weather-chat-assistant/internal/models"
	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
	"github.com/kjstillabower/weather-chat-assistant/internal/traffic"
	"github.com/kjstillabower/weather-chat-assistant/internal/validation"
)

const (
	msgChatFailed   = "申し訳ございませんが、エラーが発生しました。もう一度お試しください。"
	msgQuotaReached = "APIの利用制限に達しました。しばらく時間をおいてから再度お試しください。"
	msgInvalidJSON  = "Invalid JSON body"
	maxBodyBytes    = 1 << 20
)

// WeatherFetcher is the gateway as seen by the weather endpoint.
type WeatherFetcher interface {
	Fetch(ctx context.Context, query models.CityQuery) (models.WeatherRecord, error)
}

// Assistant is the orchestrator as seen by the chat and suggest endpoints.
type Assistant interface {
	Answer(ctx context.Context, req assistant.ChatRequest) (assistant.ChatResult, error)
	Suggest(ctx context.Context, prompt string, weather *models.WeatherRecord, theme string) (string, error)
}

// Limits bounds request fields.
type Limits struct {
	MaxCityRunes    int
	MaxMessageRunes int
}

// HealthConfig holds the inputs of the /health decision.
type HealthConfig struct {
	Version             string
	DegradedWindow      time.Duration
	DegradedThreshold   float64
	DegradedMinRequests int
	// BreakerState, when set, reports the weather API circuit breaker.
	BreakerState func() circuitbreaker.State
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather   WeatherFetcher
	assistant Assistant
	tracker   *traffic.Tracker
	state     *lifecycle.State
	health    HealthConfig
	limits    Limits
	logger    *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	weather WeatherFetcher,
	asst Assistant,
	tracker *traffic.Tracker,
	state *lifecycle.State,
	health HealthConfig,
	limits Limits,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = traffic.NewTracker(0)
	}
	if state == nil {
		state = lifecycle.New()
	}
	return &Handler{
		weather:   weather,
		assistant: asst,
		tracker:   tracker,
		state:     state,
		health:    health,
		limits:    limits,
		logger:    logger,
	}
}

// GetWeather handles GET /api/weather?city=&lat=&lon=. A city wins over coordinates.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city, err := validation.ValidateCity(q.Get("city"), h.limits.MaxCityRunes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lat, lon, hasCoords, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil && city == "" {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if city == "" && !hasCoords {
		writeError(w, http.StatusBadRequest, validation.ErrLocationRequired.Error())
		return
	}

	query := models.ByName(city)
	if city == "" {
		query = models.ByCoordinates(lat, lon)
	}
	record, err := h.weather.Fetch(r.Context(), query)
	if err != nil {
		h.tracker.Record(traffic.Failure)
		observability.LoggerFromContext(r.Context(), h.logger).Warn("weather lookup failed",
			zap.String("query", query.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.tracker.Record(traffic.Success)
	writeJSON(w, http.StatusOK, record)
}

type chatRequest struct {
	Message string   `json:"message"`
	City    string   `json:"city"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Theme   string   `json:"theme"`
}

type chatResponse struct {
	Response string                `json:"response"`
	Weather  *models.WeatherRecord `json:"weather"`
}

// PostChat handles POST /api/chat.
func (h *Handler) PostChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	message, err := validation.ValidateMessage(body.Message, h.limits.MaxMessageRunes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	city, err := validation.ValidateCity(body.City, h.limits.MaxCityRunes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Lat != nil && body.Lon != nil {
		if err := validation.ValidateCoordinates(*body.Lat, *body.Lon); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	req := assistant.ChatRequest{Message: message, City: city, Lat: body.Lat, Lon: body.Lon, Theme: body.Theme}

	res, err := h.assistant.Answer(r.Context(), req)
	if err != nil {
		h.tracker.Record(traffic.Failure)
		observability.LoggerFromContext(r.Context(), h.logger).Error("chat failed", zap.Error(err))
		userMsg := msgChatFailed
		if ai.IsQuota(err) {
			userMsg = msgQuotaReached
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   userMsg,
			"details": err.Error(),
		})
		return
	}
	if res.Fallback {
		h.tracker.Record(traffic.Fallback)
	} else {
		h.tracker.Record(traffic.Success)
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: res.Reply, Weather: res.Weather})
}

type suggestRequest struct {
	Prompt      string                `json:"prompt"`
	WeatherData *models.WeatherRecord `json:"weatherData"`
	Theme       string                `json:"theme"`
}

// PostSuggest handles POST /api/suggest. No city resolution happens here.
func (h *Handler) PostSuggest(w http.ResponseWriter, r *http.Request) {
	var body suggestRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	prompt, err := validation.ValidatePrompt(body.Prompt, h.limits.MaxMessageRunes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	suggestion, err := h.assistant.Suggest(r.Context(), prompt, body.WeatherData, body.Theme)
	if err != nil {
		h.tracker.Record(traffic.Failure)
		observability.LoggerFromContext(r.Context(), h.logger).Error("suggestion failed", zap.Error(err))
		msg := err.Error()
		if ai.IsQuota(err) {
			msg = msgQuotaReached
		}
		writeError(w, http.StatusInternalServerError, msg)
		return
	}
	h.tracker.Record(traffic.Success)
	writeJSON(w, http.StatusOK, map[string]string{"suggestion": suggestion})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy", "assistant": "healthy"}
	if h.breakerOpen() {
		checks["weatherApi"] = "unhealthy"
	}
	if result.reason == "impaired_rate" {
		checks["assistant"] = "unhealthy"
	}
	if h.health.CachePing != nil {
		if h.health.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	version := h.health.Version
	if version == "" {
		version = "dev"
	}
	writeJSON(w, result.statusCode, map[string]any{
		"status":        result.status,
		"service":       observability.ServiceName,
		"version":       version,
		"checks":        checks,
		"uptimeSeconds": int64(h.state.Uptime().Seconds()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus decides in priority order: shutting-down > breaker open > impaired rate > ok.
// Degraded still answers 200: chats are served, possibly from the fallback.
func (h *Handler) computeHealthStatus() healthResult {
	if h.state.ShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.breakerOpen() {
		return healthResult{"degraded", http.StatusOK, "weather_api_circuit_open"}
	}
	if h.health.DegradedWindow > 0 && h.health.DegradedThreshold > 0 &&
		h.tracker.Degraded(h.health.DegradedWindow, h.health.DegradedThreshold, h.health.DegradedMinRequests) {
		return healthResult{"degraded", http.StatusOK, "impaired_rate"}
	}
	return healthResult{"ok", http.StatusOK, ""}
}

func (h *Handler) breakerOpen() bool {
	return h.health.BreakerState != nil && h.health.BreakerState() == circuitbreaker.StateOpen
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"error": message} body the UI reads.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
