package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
	"github.com/kjstillabower/weather-chat-assistant/internal/traffic"
)

// RouterConfig holds the middleware settings for NewRouter.
type RouterConfig struct {
	// RequestTimeout bounds /api/weather. ChatTimeout bounds /api/chat and
	// /api/suggest, which wait on the model.
	RequestTimeout time.Duration
	ChatTimeout    time.Duration
	Limiter        *rate.Limiter
	Tracker        *traffic.Tracker
	InFlight       *InFlightTracker
	Logger         *zap.Logger
}

// NewRouter wires the handlers: /health and /metrics at the root, the
// rate-limited API under /api. A known path with the wrong method answers 405.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	inFlight := cfg.InFlight
	if inFlight == nil {
		inFlight = &InFlightTracker{}
	}

	router := mux.NewRouter()
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	router.Use(inFlight.Middleware)
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	// API routes sit on the root router rather than a PathPrefix subrouter:
	// a subrouter reports a method mismatch as 404.
	limit := RateLimitMiddleware(cfg.Limiter, cfg.Tracker)
	api := func(timeout time.Duration, fn http.HandlerFunc) http.Handler {
		return limit(TimeoutMiddleware(timeout)(fn))
	}
	router.Handle("/api/weather", api(cfg.RequestTimeout, h.GetWeather)).Methods(http.MethodGet)
	router.Handle("/api/chat", api(cfg.ChatTimeout, h.PostChat)).Methods(http.MethodPost)
	router.Handle("/api/suggest", api(cfg.ChatTimeout, h.PostSuggest)).Methods(http.MethodPost)

	return router
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
