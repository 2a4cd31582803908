// Package ai is the provider-neutral boundary to the language model: message
// and tool-call types, the bounded tool-call loop, and the Gemini adapter.
package ai

import "context"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
	// SyntheticID is set when the provider sent no ID and one was generated locally.
	SyntheticID bool
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	Call    ToolCall
	Payload map[string]any
}

// Message is one turn of the conversation sent to the model. A model turn
// that requested tools carries ToolCalls; the user turn answering it carries
// ToolResults. Raw holds the provider's own representation of a model turn,
// replayed verbatim when present.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
	Raw         any
}

// Response is a single model reply: final text, tool requests, or both.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Raw       any
}

// ToolParam is a string parameter of a declared tool.
type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// ToolSpec declares a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

// Options controls a single Generate call. Nil Tools means no tool use.
type Options struct {
	System string
	Tools  []ToolSpec
}

// Model generates the next reply for a conversation.
type Model interface {
	Generate(ctx context.Context, messages []Message, opts Options) (Response, error)
}

// WeatherToolName is the name of the weather lookup tool.
const WeatherToolName = "get_weather"

// WeatherTool lets the model fetch current weather for a city by name.
var WeatherTool = ToolSpec{
	Name:        WeatherToolName,
	Description: "指定された都市の現在の天気情報を取得します。Get current weather information for a specified city.",
	Params: []ToolParam{{
		Name:        "city",
		Description: "都市名（例: 東京、大阪、京都）または英語名（例: Tokyo, Osaka）",
		Required:    true,
	}},
}
