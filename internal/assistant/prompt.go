package assistant

import (
	"fmt"
	"strings"

	"github.com/kjstillabower/weather-chat-assistant/internal/models"
)

const outputContract = "**重要: 以下のJSON形式で回答してください:**\n" +
	"```json\n" +
	"{\n" +
	"  \"greeting\": \"挨拶文（1文）\",\n" +
	"  \"weather_summary\": \"天気の要約（天気情報がある場合のみ）\",\n" +
	"  \"main_suggestion\": \"メインの提案や回答（2-3文）\",\n" +
	"  \"recommendations\": [\n" +
	"    {\"icon\": \"絵文字\", \"title\": \"タイトル\", \"description\": \"説明\"},\n" +
	"    {\"icon\": \"絵文字\", \"title\": \"タイトル\", \"description\": \"説明\"}\n" +
	"  ],\n" +
	"  \"tips\": [\"ヒント1\", \"ヒント2\"],\n" +
	"  \"closing\": \"締めの言葉（1文）\"\n" +
	"}\n" +
	"```\n\n" +
	"注意:\n" +
	"- greeting, main_suggestion, closingは必須です\n" +
	"- weather_summaryは天気情報がある場合のみ含めてください\n" +
	"- recommendationsは1-3個で、テーマに関連したおすすめを含めてください\n" +
	"- tipsは0-2個で、役立つヒントがあれば含めてください\n" +
	"- すべて日本語で、親しみやすい言葉遣いで書いてください"

// systemPrompt sets the persona and theme focus.
func systemPrompt(theme, themeText string) string {
	return fmt.Sprintf("あなたは親切で知識豊富な日本のAIアシスタントです。"+
		"ユーザーの質問や要望に対して、選択されたテーマ（%s）に基づき、天気情報を考慮しながら、"+
		"実用的で役立つ提案を日本語で提供してください。\n\nテーマの焦点: %s", theme, themeText)
}

// userPrompt carries the message, then either the known weather or an
// instruction to call the weather tool for subject, then the output contract.
func userPrompt(message string, weather *models.WeatherRecord, subject string) string {
	var b strings.Builder
	b.WriteString("ユーザーのメッセージ: ")
	b.WriteString(message)

	switch {
	case weather != nil:
		b.WriteString("\n\n")
		b.WriteString(weatherBlock(*weather))
		b.WriteString("\n\n上記の天気情報を基に、選択されたテーマに沿って、ユーザーに対して親切で実用的な回答を日本語で提供してください。")
	case subject != "":
		fmt.Fprintf(&b, "\n\n重要: ユーザーは「%s」について尋ねています。get_weather関数を使用して「%s」の最新の天気情報を取得してください。", subject, subject)
	}

	b.WriteString("\n\n")
	b.WriteString(outputContract)
	return b.String()
}

// reducedPrompt is the short, tool-free prompt used for the quota retry.
func reducedPrompt(message string, weather *models.WeatherRecord, themeText string) string {
	var b strings.Builder
	b.WriteString("ユーザーのメッセージ: ")
	b.WriteString(message)
	b.WriteString("\n\n")
	if weather != nil {
		b.WriteString(weatherBlock(*weather))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "テーマ: %s\n\n", themeText)
	b.WriteString("上記の情報を基に、選択されたテーマに沿って、ユーザーに対して親切で実用的な回答を日本語で200文字以内で提供してください。")
	return b.String()
}

func weatherBlock(w models.WeatherRecord) string {
	return fmt.Sprintf("現在の天気情報:\n"+
		"- 場所: %s, %s\n"+
		"- 気温: %d°C\n"+
		"- 体感温度: %d°C\n"+
		"- 天気: %s\n"+
		"- 湿度: %d%%\n"+
		"- 風速: %gm/s",
		w.City, w.Country, w.Temperature, w.FeelsLike, w.Description, w.Humidity, w.WindSpeed)
}
