package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
)

// DefaultMaxToolRounds caps tool-call rounds per generation; the model is
// called at most DefaultMaxToolRounds+1 times.
const DefaultMaxToolRounds = 3

// ToolExecutor runs one tool call and returns the payload handed back to the
// model. Failures are reported inside the payload, not as errors, so the
// model can explain them.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall) map[string]any
}

// ToolExecutorFunc adapts a function to ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, call ToolCall) map[string]any

func (f ToolExecutorFunc) Execute(ctx context.Context, call ToolCall) map[string]any {
	return f(ctx, call)
}

// LoopState is a state of ToolLoop.Run.
type LoopState int

const (
	StatePrompting LoopState = iota
	StateAwaitingModel
	StateHandlingToolCalls
	StateDone
	StateFailed
)

func (s LoopState) String() string {
	switch s {
	case StatePrompting:
		return "prompting"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateHandlingToolCalls:
		return "handling_tool_calls"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoopResult is the outcome of a completed ToolLoop run.
type LoopResult struct {
	Text      string
	Rounds    int
	ToolCalls int
}

// ToolLoop drives a model through tool-call rounds until it answers with
// text, fails, or exceeds the round cap. Tool calls run sequentially.
type ToolLoop struct {
	model     Model
	executor  ToolExecutor
	maxRounds int
	logger    *zap.Logger
}

// NewToolLoop creates a ToolLoop. maxRounds <= 0 uses DefaultMaxToolRounds.
func NewToolLoop(model Model, executor ToolExecutor, maxRounds int, logger *zap.Logger) *ToolLoop {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolLoop{model: model, executor: executor, maxRounds: maxRounds, logger: logger}
}

// Run sends history to the model and resolves tool calls until text comes
// back. Model errors are returned as produced by the Model; the loop adds
// ErrToolRoundsExhausted and a ModelError for empty replies.
func (l *ToolLoop) Run(ctx context.Context, history []Message, opts Options) (LoopResult, error) {
	logger := observability.LoggerFromContext(ctx, l.logger)
	messages := append([]Message(nil), history...)

	var (
		state   = StatePrompting
		result  LoopResult
		pending Response
		err     error
	)

	for {
		switch state {
		case StatePrompting:
			if len(messages) == 0 {
				err = &ModelError{Err: errors.New("no messages to send")}
				state = StateFailed
				continue
			}
			state = StateAwaitingModel

		case StateAwaitingModel:
			if cerr := ctx.Err(); cerr != nil {
				err = cerr
				state = StateFailed
				continue
			}
			pending, err = l.model.Generate(ctx, messages, opts)
			switch {
			case err != nil:
				state = StateFailed
			case len(pending.ToolCalls) == 0:
				result.Text = pending.Text
				state = StateDone
			case result.Rounds >= l.maxRounds:
				if pending.Text != "" {
					result.Text = pending.Text
					state = StateDone
					continue
				}
				err = fmt.Errorf("%w after %d rounds", ErrToolRoundsExhausted, result.Rounds)
				state = StateFailed
			default:
				state = StateHandlingToolCalls
			}

		case StateHandlingToolCalls:
			result.Rounds++
			calls := assignIDs(pending.ToolCalls)
			messages = append(messages, Message{
				Role:      RoleModel,
				Text:      pending.Text,
				ToolCalls: calls,
				Raw:       pending.Raw,
			})

			results := make([]ToolResult, 0, len(calls))
			for _, call := range calls {
				payload := l.execute(ctx, call)
				results = append(results, ToolResult{Call: call, Payload: payload})
				result.ToolCalls++
				logger.Debug("tool call handled",
					zap.String("tool", call.Name),
					zap.String("call_id", call.ID),
					zap.Int("round", result.Rounds),
					zap.Bool("error", payload["error"] != nil),
				)
			}
			messages = append(messages, Message{Role: RoleUser, ToolResults: results})
			state = StateAwaitingModel

		case StateDone:
			if result.Text == "" {
				return result, &ModelError{Err: ErrEmptyResponse}
			}
			return result, nil

		case StateFailed:
			logger.Debug("tool loop failed", zap.Int("rounds", result.Rounds), zap.Error(err))
			return result, err
		}
	}
}

func (l *ToolLoop) execute(ctx context.Context, call ToolCall) map[string]any {
	if l.executor == nil {
		observability.ToolCallsTotal.WithLabelValues(call.Name, "unsupported").Inc()
		return map[string]any{"error": fmt.Sprintf("unknown tool: %s", call.Name)}
	}
	payload := l.executor.Execute(ctx, call)
	if payload == nil {
		payload = map[string]any{"error": "tool returned no result"}
	}
	outcome := "success"
	if payload["error"] != nil {
		outcome = "error"
	}
	observability.ToolCallsTotal.WithLabelValues(call.Name, outcome).Inc()
	return payload
}

// assignIDs fills missing call IDs with ULIDs so results can be correlated.
func assignIDs(calls []ToolCall) []ToolCall {
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = ulid.Make().String()
			c.SyntheticID = true
		}
		out[i] = c
	}
	return out
}
