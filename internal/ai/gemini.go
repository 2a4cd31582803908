package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the subset of *genai.Models used by GeminiModel.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiModel implements Model with the Gemini API.
type GeminiModel struct {
	models contentGenerator
	model  string
	logger *zap.Logger
}

// NewGeminiModel creates a Gemini-backed Model.
func NewGeminiModel(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiModel(client.Models, model, logger), nil
}

func newGeminiModel(models contentGenerator, model string, logger *zap.Logger) *GeminiModel {
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiModel{models: models, model: model, logger: logger}
}

// Generate implements Model. Provider failures come back as *QuotaError or *ModelError.
func (g *GeminiModel) Generate(ctx context.Context, messages []Message, opts Options) (Response, error) {
	contents := toContents(messages)
	config := &genai.GenerateContentConfig{}
	if opts.System != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	if len(opts.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(opts.Tools)}}
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	observability.ModelCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		mapped := classifyError(err)
		if IsQuota(mapped) {
			observability.ModelCallsTotal.WithLabelValues("quota").Inc()
		} else {
			observability.ModelCallsTotal.WithLabelValues("error").Inc()
		}
		observability.LoggerFromContext(ctx, g.logger).Warn("gemini call failed",
			zap.String("model", g.model), zap.Error(err))
		return Response{}, mapped
	}
	observability.ModelCallsTotal.WithLabelValues("success").Inc()
	return fromResponse(resp), nil
}

func toContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if raw, ok := m.Raw.(*genai.Content); ok && raw != nil {
			contents = append(contents, raw)
			continue
		}
		var parts []*genai.Part
		if m.Text != "" {
			parts = append(parts, genai.NewPartFromText(m.Text))
		}
		for _, c := range m.ToolCalls {
			call := &genai.FunctionCall{Name: c.Name, Args: c.Args}
			if !c.SyntheticID {
				call.ID = c.ID
			}
			parts = append(parts, &genai.Part{FunctionCall: call})
		}
		for _, r := range m.ToolResults {
			fr := &genai.FunctionResponse{Name: r.Call.Name, Response: r.Payload}
			if !r.Call.SyntheticID {
				fr.ID = r.Call.ID
			}
			parts = append(parts, &genai.Part{FunctionResponse: fr})
		}
		if len(parts) == 0 {
			continue
		}
		var role genai.Role = genai.RoleUser
		if m.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

func toDeclarations(tools []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(t.Params)),
		}
		for _, p := range t.Params {
			schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func fromResponse(resp *genai.GenerateContentResponse) Response {
	if resp == nil {
		return Response{}
	}
	out := Response{}
	for _, fc := range resp.FunctionCalls() {
		if fc == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		out.Raw = resp.Candidates[0].Content
		out.Text = candidateText(resp.Candidates[0].Content)
	}
	return out
}

// candidateText joins the non-thought text parts of a candidate.
func candidateText(c *genai.Content) string {
	var b strings.Builder
	for _, p := range c.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

var retryInPattern = regexp.MustCompile(`(?i)retry in ([0-9]+(?:\.[0-9]+)?)\s*s`)

// classifyError maps provider errors onto *QuotaError and *ModelError.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ModelError{Err: err}
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		if isQuotaText(err.Error()) {
			return &QuotaError{RetryAfter: parseRetryText(err.Error()), Err: err}
		}
		return &ModelError{Err: err}
	}

	if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" || isQuotaText(apiErr.Message) {
		delay := retryDelayFromDetails(apiErr.Details)
		if delay == 0 {
			delay = parseRetryText(apiErr.Message)
		}
		return &QuotaError{RetryAfter: delay, Err: err}
	}
	return &ModelError{Err: err}
}

func isQuotaText(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "quota") || strings.Contains(s, "resource_exhausted") || strings.Contains(s, "429")
}

// retryDelayFromDetails reads google.rpc.RetryInfo.retryDelay (e.g. "32s").
func retryDelayFromDetails(details []map[string]any) time.Duration {
	for _, d := range details {
		typ, _ := d["@type"].(string)
		if !strings.HasSuffix(typ, "google.rpc.RetryInfo") {
			continue
		}
		raw, ok := d["retryDelay"].(string)
		if !ok {
			continue
		}
		if delay, err := time.ParseDuration(raw); err == nil && delay > 0 {
			return delay
		}
	}
	return 0
}

func parseRetryText(s string) time.Duration {
	m := retryInPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
