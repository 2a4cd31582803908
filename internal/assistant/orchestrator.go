// Package assistant reconciles the city a user asked about with the weather
// that was fetched, then asks the model for a themed suggestion.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-chat-assistant/internal/ai"
	"github.com/kjstillabower/weather-chat-assistant/internal/models"
	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
	"github.com/kjstillabower/weather-chat-assistant/internal/resolver"
)

// WeatherFetcher is satisfied by *gateway.Gateway.
type WeatherFetcher interface {
	Fetch(ctx context.Context, query models.CityQuery) (models.WeatherRecord, error)
}

// ChatRequest is one chat turn. A coordinate lookup needs both Lat and Lon,
// but either one alone still suppresses city resolution from the message.
type ChatRequest struct {
	Message string
	City    string
	Lat     *float64
	Lon     *float64
	Theme   string
}

func (r ChatRequest) hasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}

func (r ChatRequest) anyCoordinate() bool {
	return r.Lat != nil || r.Lon != nil
}

// ChatResult pairs the reply with the weather shown alongside it, if any.
// Fallback is set when Reply is the deterministic reply.
type ChatResult struct {
	Reply    string
	Weather  *models.WeatherRecord
	Fallback bool
}

// Orchestrator answers chat turns. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	weather  WeatherFetcher
	model    ai.Model
	settings Settings
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator. Zero-valued settings fields take their defaults.
func New(weather WeatherFetcher, model ai.Model, settings Settings, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		weather:  weather,
		model:    model,
		settings: settings.withDefaults(),
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Answer resolves the city, fetches and reconciles weather, and generates a
// reply. Weather failures never fail the call. A generation failure falls
// back to a deterministic reply when weather is known and is returned
// otherwise (a *ai.QuotaError stays typed).
func (o *Orchestrator) Answer(ctx context.Context, req ChatRequest) (ChatResult, error) {
	logger := observability.LoggerFromContext(ctx, o.logger)
	message := req.Message

	cityToUse := o.cityToUse(req)
	mentioned := o.mentionedCity(message)

	var (
		weather     *models.WeatherRecord
		discarded   *models.WeatherRecord
		fetchedName string
	)
	if cityToUse != "" || req.hasCoordinates() {
		query := models.ByName(cityToUse)
		if cityToUse == "" {
			query = models.ByCoordinates(*req.Lat, *req.Lon)
		}
		fetchedName = cityToUse
		record, err := o.weather.Fetch(ctx, query)
		switch {
		case err != nil:
			logger.Warn("weather fetch failed, continuing without weather",
				zap.String("query", query.String()), zap.Error(err))
		case mentioned != "" && !strings.EqualFold(record.City, cityToUse):
			observability.WeatherMismatchTotal.Inc()
			logger.Info("weather mismatch, discarding",
				zap.String("mentioned", mentioned),
				zap.String("requested", cityToUse),
				zap.String("returned", record.City))
			discarded = &record
		default:
			weather = &record
		}
	}

	subject := mentioned
	if subject == "" {
		subject = cityToUse
	}

	promptWeather := weather
	if o.settings.PrefetchSubjectWeather {
		if w := o.prefetch(ctx, subject, weather, discarded, fetchedName, logger); w != nil {
			promptWeather = w
		}
	}

	theme, themeText := o.settings.theme(req.Theme)
	reply, err := o.generate(ctx, message, promptWeather, subject, theme, themeText)
	if err != nil {
		if promptWeather == nil {
			observability.ChatRequestsTotal.WithLabelValues("failed").Inc()
			return ChatResult{}, err
		}
		observability.ChatRequestsTotal.WithLabelValues("fallback").Inc()
		observability.FallbackRepliesTotal.WithLabelValues(fallbackReason(err)).Inc()
		logger.Warn("generation failed, serving fallback reply", zap.Error(err))
		return ChatResult{Reply: FallbackReply(*promptWeather, theme), Weather: weather, Fallback: true}, nil
	}

	observability.ChatRequestsTotal.WithLabelValues("generated").Inc()
	return ChatResult{Reply: reply, Weather: weather}, nil
}

// Suggest generates a reply for prompt with caller-supplied weather and no
// city resolution. Failure handling matches Answer.
func (o *Orchestrator) Suggest(ctx context.Context, prompt string, weather *models.WeatherRecord, theme string) (string, error) {
	theme, themeText := o.settings.theme(theme)
	subject := ""
	if weather != nil {
		subject = weather.City
	}
	reply, err := o.generate(ctx, prompt, weather, subject, theme, themeText)
	if err != nil {
		if weather == nil {
			return "", err
		}
		observability.FallbackRepliesTotal.WithLabelValues(fallbackReason(err)).Inc()
		observability.LoggerFromContext(ctx, o.logger).Warn("suggestion failed, serving fallback reply", zap.Error(err))
		return FallbackReply(*weather, theme), nil
	}
	return reply, nil
}

// cityToUse is the city the request's own weather lookup targets.
func (o *Orchestrator) cityToUse(req ChatRequest) string {
	if city := strings.TrimSpace(req.City); city != "" {
		return resolver.Normalize(city)
	}
	if req.anyCoordinate() {
		return ""
	}
	if city, ok := resolver.Resolve(req.Message); ok {
		return resolver.Normalize(city)
	}
	if resolver.LooksLikeCity(req.Message, o.settings.LiteralCityMaxRunes) {
		return resolver.Normalize(req.Message)
	}
	return ""
}

// mentionedCity is the city the message text itself talks about.
func (o *Orchestrator) mentionedCity(message string) string {
	if city, ok := resolver.Resolve(message); ok {
		return city
	}
	trimmed := strings.TrimSpace(message)
	if trimmed != "" && len([]rune(trimmed)) < o.settings.MentionedCityMaxRunes {
		return trimmed
	}
	return ""
}

// prefetch fetches weather for subject when the request's own lookup does
// not already cover it. The result only feeds the prompt. When the subject is
// the city just looked up, a record discarded as a mismatch is reused and a
// failed lookup is not repeated.
func (o *Orchestrator) prefetch(ctx context.Context, subject string, weather, discarded *models.WeatherRecord, fetchedName string, logger *zap.Logger) *models.WeatherRecord {
	if subject == "" {
		return nil
	}
	if weather != nil && strings.EqualFold(weather.City, subject) {
		return nil
	}
	if fetchedName != "" && strings.EqualFold(resolver.Normalize(subject), fetchedName) {
		return discarded
	}
	record, err := o.weather.Fetch(ctx, models.ByName(subject))
	if err != nil {
		logger.Debug("subject weather prefetch failed", zap.String("subject", subject), zap.Error(err))
		return nil
	}
	logger.Debug("subject weather prefetched", zap.String("subject", subject), zap.String("city", record.City))
	return &record
}

// generate runs the tool loop and applies the quota policy: wait, then one
// reduced, tool-free retry. If the retry fails the original quota error is returned.
func (o *Orchestrator) generate(ctx context.Context, message string, weather *models.WeatherRecord, subject, theme, themeText string) (string, error) {
	logger := observability.LoggerFromContext(ctx, o.logger)
	loop := ai.NewToolLoop(o.model, weatherTool{weather: o.weather, logger: o.logger}, o.settings.MaxToolRounds, o.logger)

	history := []ai.Message{{Role: ai.RoleUser, Text: userPrompt(message, weather, subject)}}
	opts := ai.Options{System: systemPrompt(theme, themeText), Tools: []ai.ToolSpec{ai.WeatherTool}}

	genCtx, cancel := context.WithTimeout(ctx, o.settings.GenerationTimeout)
	res, err := loop.Run(genCtx, history, opts)
	cancel()
	if err == nil {
		return res.Text, nil
	}

	var quota *ai.QuotaError
	if !errors.As(err, &quota) {
		return "", err
	}

	wait := o.settings.backoff(quota.RetryAfter)
	logger.Warn("model quota exceeded, backing off", zap.Duration("wait", wait), zap.Error(err))
	if serr := o.sleep(ctx, wait); serr != nil {
		return "", quota
	}

	retryCtx, cancel := context.WithTimeout(ctx, o.settings.GenerationTimeout)
	defer cancel()
	retry := []ai.Message{{Role: ai.RoleUser, Text: reducedPrompt(message, weather, themeText)}}
	resp, rerr := o.model.Generate(retryCtx, retry, ai.Options{})
	if rerr != nil || strings.TrimSpace(resp.Text) == "" {
		logger.Warn("quota retry failed", zap.Error(rerr))
		return "", quota
	}
	return resp.Text, nil
}

func fallbackReason(err error) string {
	if ai.IsQuota(err) {
		return "quota"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "model_error"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
