package assistant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kjstillabower/weather-chat-assistant/internal/models"
)

// Recommendation is one suggested activity or item.
type Recommendation struct {
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Suggestion is the structured reply the UI renders. Generated replies and
// the deterministic fallback share this shape.
type Suggestion struct {
	Greeting        string           `json:"greeting"`
	WeatherSummary  string           `json:"weather_summary,omitempty"`
	MainSuggestion  string           `json:"main_suggestion"`
	Recommendations []Recommendation `json:"recommendations"`
	Tips            []string         `json:"tips"`
	Closing         string           `json:"closing"`
}

// ErrNoSuggestion is returned by ParseSuggestion when text holds no JSON object.
var ErrNoSuggestion = errors.New("no structured suggestion in reply")

// FallbackReply builds the deterministic reply served when generation fails
// but weather is known. The result is a fenced JSON block.
func FallbackReply(w models.WeatherRecord, theme string) string {
	s := fallbackSuggestion(w, theme)
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		// Suggestion holds only strings and slices of strings.
		return fmt.Sprintf("%sの現在の天気は%sで、気温%d°C（体感%d°C）です。天気に合わせた活動をお楽しみください。",
			w.City, w.Description, w.Temperature, w.FeelsLike)
	}
	return "```json\n" + string(raw) + "\n```"
}

func fallbackSuggestion(w models.WeatherRecord, theme string) Suggestion {
	s := Suggestion{
		Greeting:        fmt.Sprintf("こんにちは！%sの天気についてお答えします。", w.City),
		WeatherSummary:  fmt.Sprintf("現在%d°C（体感%d°C）、%sです。", w.Temperature, w.FeelsLike, w.Description),
		Recommendations: []Recommendation{},
		Tips:            []string{},
		Closing:         "素敵な一日をお過ごしください！🌸",
	}
	temp := w.Temperature

	switch theme {
	case "travel", "outings":
		switch {
		case temp < 10:
			s.MainSuggestion = "寒い日なので、屋内の観光スポットや温かいカフェでのんびり過ごすのがおすすめです。"
			s.Recommendations = []Recommendation{
				{Icon: "🏛️", Title: "美術館・博物館", Description: "文化的なひとときを"},
				{Icon: "☕", Title: "カフェ巡り", Description: "温かい飲み物でほっこり"},
			}
			s.Tips = []string{"防寒対策をしっかりと"}
		case temp < 20:
			s.MainSuggestion = "過ごしやすい気温です。散策や観光に最適な日ですね。"
			s.Recommendations = []Recommendation{
				{Icon: "🚶", Title: "街歩き", Description: "散策を楽しむのに最適"},
				{Icon: "🌳", Title: "公園散歩", Description: "自然を感じながらリフレッシュ"},
			}
		default:
			s.MainSuggestion = "暖かい日なので、屋外でのアクティビティを楽しめます。"
			s.Recommendations = []Recommendation{
				{Icon: "🌸", Title: "屋外観光", Description: "お天気を満喫"},
				{Icon: "🍦", Title: "スイーツ", Description: "冷たいデザートも美味しい"},
			}
			s.Tips = []string{"水分補給を忘れずに"}
		}
	case "fashion":
		switch {
		case temp < 10:
			s.MainSuggestion = "コートやダウンジャケットなど、しっかりとした防寒対策が必要です。"
			s.Recommendations = []Recommendation{
				{Icon: "🧥", Title: "コート", Description: "暖かいアウターを"},
				{Icon: "🧣", Title: "マフラー", Description: "首元の防寒も大切"},
			}
		case temp < 20:
			s.MainSuggestion = "カーディガンやライトジャケットがあると安心です。"
			s.Recommendations = []Recommendation{
				{Icon: "👔", Title: "ライトアウター", Description: "温度調節しやすい服装"},
			}
		default:
			s.MainSuggestion = "軽装で快適に過ごせます。"
			s.Recommendations = []Recommendation{
				{Icon: "👕", Title: "軽装", Description: "涼しい服装で"},
			}
		}
	case "food":
		if temp < 10 {
			s.MainSuggestion = "温かい鍋料理やスープ、ラーメンなどがおすすめです。"
			s.Recommendations = []Recommendation{
				{Icon: "🍜", Title: "ラーメン", Description: "体を温めて"},
				{Icon: "🍲", Title: "鍋料理", Description: "温かいお鍋で"},
			}
		} else {
			s.MainSuggestion = "季節の食材を楽しめる料理がおすすめです。"
			s.Recommendations = []Recommendation{
				{Icon: "🍱", Title: "季節料理", Description: "旬の食材を堪能"},
			}
		}
	default:
		s.MainSuggestion = "天気に合わせた活動を楽しんでください。"
	}
	return s
}

// ParseSuggestion extracts the structured block from a reply: the first
// fenced ```json block, else the outermost {...} span.
func ParseSuggestion(text string) (Suggestion, error) {
	body, ok := extractJSON(text)
	if !ok {
		return Suggestion{}, ErrNoSuggestion
	}
	var s Suggestion
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return Suggestion{}, fmt.Errorf("parse suggestion: %w", err)
	}
	if s.Greeting == "" && s.MainSuggestion == "" && s.Closing == "" {
		return Suggestion{}, ErrNoSuggestion
	}
	return s, nil
}

func extractJSON(text string) (string, bool) {
	if start := strings.Index(text, "```json"); start >= 0 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), true
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
