package usecase

import (
	"context"
	"errors"
	"strings"

	"agent-gateway/internal/domain"
)

const (
	defaultMaxToolRounds = 8
	defaultHistoryLimit  = 20

	defaultSystemPrompt = "You are a helpful assistant. Use the available tools when they help answer the user's question."
)

// TokenExchanger obtains a bearer token for gateway calls.
type TokenExchanger interface {
	AccessToken(ctx context.Context) (string, error)
}

// ToolClient lists and invokes tools behind the gateway.
type ToolClient interface {
	ListTools(ctx context.Context) ([]domain.RemoteTool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// ToolDialer connects a ToolClient to the gateway endpoint. Each invocation
// establishes a fresh connection; nothing is pooled across requests.
type ToolDialer func(ctx context.Context, gatewayURL, bearerToken string) (ToolClient, error)

// Model runs one conversation turn against the foundation model.
type Model interface {
	Converse(ctx context.Context, system string, msgs []domain.ChatMessage, tools []domain.RemoteTool) (domain.ModelReply, error)
}

// MemoryStore reads and appends conversation turns scoped by actor/session.
type MemoryStore interface {
	AppendTurns(ctx context.Context, actorID, sessionID string, turns []domain.MemoryTurn) (string, error)
	SessionEvents(ctx context.Context, actorID, sessionID string, limit int) ([]domain.MemoryEvent, error)
}

// toolFailure is satisfied by tool invocations that completed but reported an
// error result; those are fed back to the model rather than aborting the turn.
type toolFailure interface {
	Error() string
	ToolFailed() bool
}

// InvokeService wires token exchange, gateway tools, the model, and
// conversation memory into a single streamed agent turn.
type InvokeService struct {
	params        ParamGetter
	tokens        TokenExchanger
	dial          ToolDialer
	model         Model
	memory        MemoryStore
	paramPrefix   string
	systemPrompt  string
	maxToolRounds int
	historyLimit  int
}

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type InvokeInput struct {
	Prompt    string
	UserID    string
	SessionID string
}

type InvokeOutput struct {
	Answer string
}

// EventSink receives stream events as they are produced.
type EventSink func(domain.StreamEvent)

func NewInvokeService(params ParamGetter, tokens TokenExchanger, dial ToolDialer, model Model, memory MemoryStore, paramPrefix, systemPrompt string) (*InvokeService, error) {
	if params == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if tokens == nil {
		return nil, errors.New("usecase: token exchanger must not be nil")
	}
	if dial == nil {
		return nil, errors.New("usecase: tool dialer must not be nil")
	}
	if model == nil {
		return nil, errors.New("usecase: model must not be nil")
	}
	if memory == nil {
		return nil, errors.New("usecase: memory store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &InvokeService{
		params:        params,
		tokens:        tokens,
		dial:          dial,
		model:         model,
		memory:        memory,
		paramPrefix:   paramPrefix,
		systemPrompt:  systemPrompt,
		maxToolRounds: defaultMaxToolRounds,
		historyLimit:  defaultHistoryLimit,
	}, nil
}

// Invoke runs one agent turn: it exchanges credentials, connects to the
// gateway, loads the tool list and session history, then alternates model and
// tool calls until the model stops requesting tools. Chunk and tool_use
// events are emitted as they are produced; the completed turn is appended to
// memory before returning.
func (s *InvokeService) Invoke(ctx context.Context, in InvokeInput, emit EventSink) (InvokeOutput, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return InvokeOutput{}, newError(ErrorInvalidInput, "prompt is required", nil)
	}
	if strings.TrimSpace(in.UserID) == "" {
		return InvokeOutput{}, newError(ErrorInvalidInput, "userId is required", nil)
	}
	if strings.TrimSpace(in.SessionID) == "" {
		return InvokeOutput{}, newError(ErrorInvalidInput, "sessionId is required", nil)
	}
	if emit == nil {
		emit = func(domain.StreamEvent) {}
	}

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return InvokeOutput{}, newError(ErrorAuthExchange, "token_exchange_error", err)
	}

	gatewayURL, err := s.params.GetParameter(ctx, s.paramPrefix+"/gateway_url")
	if err != nil {
		return InvokeOutput{}, newError(ErrorInternal, "gateway_url_load_error", err)
	}

	tools, err := s.dial(ctx, gatewayURL, token)
	if err != nil {
		return InvokeOutput{}, newError(ErrorGateway, "gateway_connect_error", err)
	}
	defer tools.Close()

	toolList, err := tools.ListTools(ctx)
	if err != nil {
		return InvokeOutput{}, newError(ErrorGateway, "tool_list_error", err)
	}

	msgs, err := s.loadHistory(ctx, in.UserID, in.SessionID)
	if err != nil {
		return InvokeOutput{}, newError(ErrorMemory, "memory_load_error", err)
	}
	msgs = append(msgs, domain.ChatMessage{Role: "user", Text: prompt})

	answer, err := s.converseLoop(ctx, msgs, toolList, tools, emit)
	if err != nil {
		return InvokeOutput{}, err
	}

	if _, err := s.memory.AppendTurns(ctx, in.UserID, in.SessionID, []domain.MemoryTurn{
		{Role: domain.RoleUser, Text: prompt},
		{Role: domain.RoleAssistant, Text: answer},
	}); err != nil {
		return InvokeOutput{}, newError(ErrorMemory, "memory_write_error", err)
	}

	return InvokeOutput{Answer: answer}, nil
}

// converseLoop alternates model turns and tool invocations until the model
// stops asking for tools or the round cap is hit.
func (s *InvokeService) converseLoop(ctx context.Context, msgs []domain.ChatMessage, toolList []domain.RemoteTool, tools ToolClient, emit EventSink) (string, error) {
	var answer strings.Builder

	for round := 0; round < s.maxToolRounds; round++ {
		reply, err := s.model.Converse(ctx, s.systemPrompt, msgs, toolList)
		if err != nil {
			return "", newError(ErrorModelUpstream, "model_error", err)
		}

		if reply.Text != "" {
			emit(domain.StreamEvent{Type: domain.EventChunk, Text: reply.Text})
			if answer.Len() > 0 {
				answer.WriteString("\n")
			}
			answer.WriteString(reply.Text)
		}

		if len(reply.ToolCalls) == 0 {
			return answer.String(), nil
		}

		msgs = append(msgs, domain.ChatMessage{
			Role:      "assistant",
			Text:      reply.Text,
			ToolCalls: reply.ToolCalls,
		})

		results := make([]domain.ToolResult, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			emit(domain.StreamEvent{Type: domain.EventToolUse, Tool: call.Name})

			out, err := tools.CallTool(ctx, call.Name, call.Arguments)
			if err != nil {
				var failed toolFailure
				if !errors.As(err, &failed) {
					return "", newError(ErrorGateway, "tool_call_error", err)
				}
				// The tool itself reported failure; let the model see it and
				// decide how to proceed.
				results = append(results, domain.ToolResult{ID: call.ID, Text: err.Error(), IsError: true})
				continue
			}
			results = append(results, domain.ToolResult{ID: call.ID, Text: out})
		}
		msgs = append(msgs, domain.ChatMessage{Role: "user", ToolResults: results})
	}

	return "", newError(ErrorModelUpstream, "tool_round_limit_exceeded", nil)
}

// loadHistory flattens prior session events into chat messages, oldest first.
// Tool-role turns are internal bookkeeping and are not replayed to the model.
func (s *InvokeService) loadHistory(ctx context.Context, actorID, sessionID string) ([]domain.ChatMessage, error) {
	events, err := s.memory.SessionEvents(ctx, actorID, sessionID, s.historyLimit)
	if err != nil {
		return nil, err
	}

	var msgs []domain.ChatMessage
	for _, event := range events {
		for _, turn := range event.Turns {
			switch turn.Role {
			case domain.RoleUser:
				msgs = append(msgs, domain.ChatMessage{Role: "user", Text: turn.Text})
			case domain.RoleAssistant:
				msgs = append(msgs, domain.ChatMessage{Role: "assistant", Text: turn.Text})
			}
		}
	}
	return msgs, nil
}
