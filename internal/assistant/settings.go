package assistant

import (
	"strings"
	"time"

	"github.com/kjstillabower/weather-chat-assistant/internal/ai"
)

// DefaultTheme is used for empty or unknown theme tags.
const DefaultTheme = "general"

// defaultThemes steer generation toward one topic, in the reply language.
var defaultThemes = map[string]string{
	"travel":      "旅行・観光に関する提案をしてください。天気を考慮した観光スポット、アクティビティ、旅行のヒントを提供してください。",
	"outings":     "お出かけ・外出に関する提案をしてください。天気に適した外出先、アクティビティ、イベント情報を提供してください。",
	"fashion":     "ファッション・服装に関する提案をしてください。天気に適した服装、スタイリング、アクセサリーの提案をしてください。",
	"music":       "音楽・エンターテイメントに関する提案をしてください。天気に合った音楽、コンサート、音楽イベントの提案をしてください。",
	"agriculture": "農業・ガーデニングに関する提案をしてください。天気を考慮した農作業、ガーデニング、植物のケアに関する提案をしてください。",
	"sports":      "スポーツ・運動に関する提案をしてください。天気に適したスポーツ、運動、フィットネス活動の提案をしてください。",
	"food":        "グルメ・食事に関する提案をしてください。天気に合った料理、レストラン、食材、レシピの提案をしてください。",
	"general":     "一般的な提案をしてください。天気を考慮した様々な活動やアドバイスを提供してください。",
}

// Settings is the single configuration structure of the Orchestrator.
type Settings struct {
	// Themes maps a theme tag to its steering text. DefaultTheme must be present.
	Themes       map[string]string
	DefaultTheme string

	// MaxToolRounds caps tool-call rounds per generation.
	MaxToolRounds int

	// DefaultBackoff is waited after a quota error that carries no delay;
	// MaxBackoff caps any wait.
	DefaultBackoff time.Duration
	MaxBackoff     time.Duration

	// PrefetchSubjectWeather fetches weather for the subject city to enrich
	// the prompt when the request's own lookup did not cover it.
	PrefetchSubjectWeather bool

	// GenerationTimeout bounds each generation attempt.
	GenerationTimeout time.Duration

	// LiteralCityMaxRunes and MentionedCityMaxRunes bound how long a message
	// may be and still be taken verbatim as a city.
	LiteralCityMaxRunes   int
	MentionedCityMaxRunes int
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	themes := make(map[string]string, len(defaultThemes))
	for k, v := range defaultThemes {
		themes[k] = v
	}
	return Settings{
		Themes:                 themes,
		DefaultTheme:           DefaultTheme,
		MaxToolRounds:          ai.DefaultMaxToolRounds,
		DefaultBackoff:         60 * time.Second,
		MaxBackoff:             60 * time.Second,
		PrefetchSubjectWeather: true,
		GenerationTimeout:      30 * time.Second,
		LiteralCityMaxRunes:    20,
		MentionedCityMaxRunes:  30,
	}
}

// withDefaults fills zero values from DefaultSettings.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if len(s.Themes) == 0 {
		s.Themes = d.Themes
	} else {
		themes := make(map[string]string, len(s.Themes)+1)
		for k, v := range s.Themes {
			themes[strings.ToLower(k)] = v
		}
		s.Themes = themes
	}
	if s.DefaultTheme == "" {
		s.DefaultTheme = d.DefaultTheme
	}
	if _, ok := s.Themes[s.DefaultTheme]; !ok {
		s.Themes[s.DefaultTheme] = defaultThemes[DefaultTheme]
	}
	if s.MaxToolRounds <= 0 {
		s.MaxToolRounds = d.MaxToolRounds
	}
	if s.DefaultBackoff <= 0 {
		s.DefaultBackoff = d.DefaultBackoff
	}
	if s.MaxBackoff <= 0 {
		s.MaxBackoff = d.MaxBackoff
	}
	if s.GenerationTimeout <= 0 {
		s.GenerationTimeout = d.GenerationTimeout
	}
	if s.LiteralCityMaxRunes <= 0 {
		s.LiteralCityMaxRunes = d.LiteralCityMaxRunes
	}
	if s.MentionedCityMaxRunes <= 0 {
		s.MentionedCityMaxRunes = d.MentionedCityMaxRunes
	}
	return s
}

// theme resolves a tag to (tag, steering text), falling back to the default theme.
func (s Settings) theme(tag string) (string, string) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if text, ok := s.Themes[tag]; ok {
		return tag, text
	}
	return s.DefaultTheme, s.Themes[s.DefaultTheme]
}

// backoff returns the wait before the quota retry.
func (s Settings) backoff(retryAfter time.Duration) time.Duration {
	d := retryAfter
	if d <= 0 {
		d = s.DefaultBackoff
	}
	if d > s.MaxBackoff {
		d = s.MaxBackoff
	}
	return d
}
