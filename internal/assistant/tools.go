package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-chat-assistant/internal/ai"
	"github.com/kjstillabower/weather-chat-assistant/internal/gateway"
	"github.com/kjstillabower/weather-chat-assistant/internal/models"
	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
)

// weatherTool answers get_weather calls through the gateway name path.
type weatherTool struct {
	weather WeatherFetcher
	logger  *zap.Logger
}

func (t weatherTool) Execute(ctx context.Context, call ai.ToolCall) map[string]any {
	if call.Name != ai.WeatherToolName {
		msg := fmt.Sprintf("unknown tool: %s", call.Name)
		return map[string]any{"error": msg, "message": msg}
	}
	city, _ := call.Args["city"].(string)
	city = strings.TrimSpace(city)
	if city == "" {
		return map[string]any{"error": "city is required", "message": "都市名が指定されていません"}
	}

	observability.LoggerFromContext(ctx, t.logger).Info("model requested weather", zap.String("city", city))
	record, err := t.weather.Fetch(ctx, models.ByName(city))
	if err != nil {
		reason := toolErrorText(err)
		observability.LoggerFromContext(ctx, t.logger).Warn("weather tool failed", zap.String("city", city), zap.Error(err))
		return map[string]any{
			"error":   reason,
			"message": fmt.Sprintf("%sの天気情報を取得できませんでした: %s", city, reason),
		}
	}
	return weatherPayload(record)
}

func weatherPayload(w models.WeatherRecord) map[string]any {
	return map[string]any{
		"city":        w.City,
		"country":     w.Country,
		"temperature": w.Temperature,
		"feelsLike":   w.FeelsLike,
		"description": w.Description,
		"main":        w.Main,
		"humidity":    w.Humidity,
		"windSpeed":   w.WindSpeed,
		"message":     w.Summary(),
	}
}

func toolErrorText(err error) string {
	var nf *gateway.NotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("City %q not found. Please check the city name.", nf.City)
	}
	if err == nil {
		return "Failed to fetch weather data"
	}
	return err.Error()
}
