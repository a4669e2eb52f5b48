package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"agent-gateway/internal/domain"
)

type fakeParams struct {
	values map[string]string
	err    error
}

func (f *fakeParams) GetParameter(_ context.Context, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.values[name]
	if !ok {
		return "", errors.New("parameter not found: " + name)
	}
	return v, nil
}

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) AccessToken(context.Context) (string, error) { return f.token, f.err }

type fakeToolClient struct {
	tools   []domain.RemoteTool
	listErr error
	results map[string]string
	callErr error
	called  []string
	closed  bool
}

func (f *fakeToolClient) ListTools(context.Context) ([]domain.RemoteTool, error) {
	return f.tools, f.listErr
}

func (f *fakeToolClient) CallTool(_ context.Context, name string, _ map[string]any) (string, error) {
	f.called = append(f.called, name)
	if f.callErr != nil {
		return "", f.callErr
	}
	return f.results[name], nil
}

func (f *fakeToolClient) Close() error {
	f.closed = true
	return nil
}

type fakeModel struct {
	replies []domain.ModelReply
	err     error
	calls   [][]domain.ChatMessage
}

func (f *fakeModel) Converse(_ context.Context, _ string, msgs []domain.ChatMessage, _ []domain.RemoteTool) (domain.ModelReply, error) {
	f.calls = append(f.calls, msgs)
	if f.err != nil {
		return domain.ModelReply{}, f.err
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

type fakeMemory struct {
	events    []domain.MemoryEvent
	loadErr   error
	appended  [][]domain.MemoryTurn
	appendErr error
}

func (f *fakeMemory) AppendTurns(_ context.Context, _, _ string, turns []domain.MemoryTurn) (string, error) {
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.appended = append(f.appended, turns)
	return "event-1", nil
}

func (f *fakeMemory) SessionEvents(_ context.Context, _, _ string, _ int) ([]domain.MemoryEvent, error) {
	return f.events, f.loadErr
}

type toolErr struct{ msg string }

func (e *toolErr) Error() string    { return e.msg }
func (e *toolErr) ToolFailed() bool { return true }

type invokeFixture struct {
	params *fakeParams
	tokens *fakeTokens
	tool   *fakeToolClient
	model  *fakeModel
	memory *fakeMemory
	svc    *InvokeService
	events []domain.StreamEvent
}

func newInvokeFixture(t *testing.T) *invokeFixture {
	t.Helper()
	fx := &invokeFixture{
		params: &fakeParams{values: map[string]string{"/demo/gateway_url": "https://gw.example.com/mcp"}},
		tokens: &fakeTokens{token: "bearer-token"},
		tool:   &fakeToolClient{results: map[string]string{}},
		model:  &fakeModel{},
		memory: &fakeMemory{},
	}
	dial := func(_ context.Context, gatewayURL, bearerToken string) (ToolClient, error) {
		require.Equal(t, "https://gw.example.com/mcp", gatewayURL)
		require.Equal(t, "bearer-token", bearerToken)
		return fx.tool, nil
	}
	svc, err := NewInvokeService(fx.params, fx.tokens, dial, fx.model, fx.memory, "/demo", "")
	require.NoError(t, err)
	fx.svc = svc
	return fx
}

func (fx *invokeFixture) emit(ev domain.StreamEvent) { fx.events = append(fx.events, ev) }

func validInvokeInput() InvokeInput {
	return InvokeInput{Prompt: "what is the weather", UserID: "user-1", SessionID: "session-1"}
}

func TestInvoke_PlainAnswer(t *testing.T) {
	fx := newInvokeFixture(t)
	fx.model.replies = []domain.ModelReply{{Text: "sunny", StopReason: "end_turn"}}

	out, err := fx.svc.Invoke(context.Background(), validInvokeInput(), fx.emit)
	require.NoError(t, err)
	require.Equal(t, "sunny", out.Answer)
	require.True(t, fx.tool.closed)

	require.Len(t, fx.events, 1)
	require.Equal(t, domain.EventChunk, fx.events[0].Type)
	require.Equal(t, "sunny", fx.events[0].Text)

	require.Len(t, fx.memory.appended, 1)
	turns := fx.memory.appended[0]
	require.Equal(t, domain.RoleUser, turns[0].Role)
	require.Equal(t, "what is the weather", turns[0].Text)
	require.Equal(t, domain.RoleAssistant, turns[1].Role)
	require.Equal(t, "sunny", turns[1].Text)
}

func TestInvoke_ToolLoop(t *testing.T) {
	fx := newInvokeFixture(t)
	fx.tool.results["get_weather"] = `{"temp": 21}`
	fx.model.replies = []domain.ModelReply{
		{
			ToolCalls:  []domain.ToolCall{{ID: "call-1", Name: "get_weather", Arguments: map[string]any{"city": "Berlin"}}},
			StopReason: "tool_use",
		},
		{Text: "21 degrees in Berlin", StopReason: "end_turn"},
	}

	out, err := fx.svc.Invoke(context.Background(), validInvokeInput(), fx.emit)
	require.NoError(t, err)
	require.Equal(t, "21 degrees in Berlin", out.Answer)
	require.Equal(t, []string{"get_weather"}, fx.tool.called)

	require.Len(t, fx.events, 2)
	require.Equal(t, domain.EventToolUse, fx.events[0].Type)
	require.Equal(t, "get_weather", fx.events[0].Tool)
	require.Equal(t, domain.EventChunk, fx.events[1].Type)

	// The second model call sees the assistant tool request and its result.
	require.Len(t, fx.model.calls, 2)
	second := fx.model.calls[1]
	last := second[len(second)-1]
	require.Len(t, last.ToolResults, 1)
	require.Equal(t, "call-1", last.ToolResults[0].ID)
	require.Equal(t, `{"temp": 21}`, last.ToolResults[0].Text)
}

func TestInvoke_ToolReportedFailureFedBack(t *testing.T) {
	fx := newInvokeFixture(t)
	fx.tool.callErr = &toolErr{msg: "city not found"}
	fx.model.replies = []domain.ModelReply{
		{ToolCalls: []domain.ToolCall{{ID: "call-1", Name: "get_weather"}}},
		{Text: "I could not find that city"},
	}

	out, err := fx.svc.Invoke(context.Background(), validInvokeInput(), fx.emit)
	require.NoError(t, err)
	require.Equal(t, "I could not find that city", out.Answer)

	second := fx.model.calls[1]
	last := second[len(second)-1]
	require.True(t, last.ToolResults[0].IsError)
	require.Contains(t, last.ToolResults[0].Text, "city not found")
}

func TestInvoke_TransportFailureIsFatal(t *testing.T) {
	fx := newInvokeFixture(t)
	fx.tool.callErr = errors.New("connection reset")
	fx.model.replies = []domain.ModelReply{
		{ToolCalls: []domain.ToolCall{{ID: "call-1", Name: "get_weather"}}},
	}

	_, err := fx.svc.Invoke(context.Background(), validInvokeInput(), fx.emit)
	requireCode(t, err, ErrorGateway)
}

func TestInvoke_ValidatesInput(t *testing.T) {
	fx := newInvokeFixture(t)

	for name, mutate := range map[string]func(*InvokeInput){
		"prompt":    func(in *InvokeInput) { in.Prompt = " " },
		"userId":    func(in *InvokeInput) { in.UserID = "" },
		"sessionId": func(in *InvokeInput) { in.SessionID = "" },
	} {
		t.Run(name, func(t *testing.T) {
			in := validInvokeInput()
			mutate(&in)
			_, err := fx.svc.Invoke(context.Background(), in, fx.emit)
			requireCode(t, err, ErrorInvalidInput)
		})
	}
}

func TestInvoke_TokenExchangeFailure(t *testing.T) {
	fx := newInvokeFixture(t)
	fx.tokens.err = errors.New("invalid_client")

	_, err := fx.svc.Invoke(context.Background(), validInvokeInput(), fx.emit)
	requireCode(t, err, ErrorAuthExchange)
}

func TestInvoke_ToolListFailure(t *testing.T) {
	fx := newInvokeFixture(t)
	fx.tool.listErr = errors.New("unauthorized")
	fx.model.replies = []domain.ModelReply{{Text: "unused"}}

	_, err := fx.svc.Invoke(context.Background(), validInvokeInput(), fx.emit)
	requireCode(t, err, ErrorGateway)
}

func TestInvoke_HistoryIsReplayedToModel(t *testing.T) {
	fx := newInvokeFixture(t)
	fx.memory.events = []domain.MemoryEvent{
		{Turns: []domain.MemoryTurn{
			{Role: domain.RoleUser, Text: "hello"},
			{Role: domain.RoleAssistant, Text: "hi there"},
			{Role: domain.RoleTool, Text: "internal"},
		}},
	}
	fx.model.replies = []domain.ModelReply{{Text: "welcome back"}}

	_, err := fx.svc.Invoke(context.Background(), validInvokeInput(), fx.emit)
	require.NoError(t, err)

	msgs := fx.model.calls[0]
	require.Len(t, msgs, 3)
	require.Equal(t, "hello", msgs[0].Text)
	require.Equal(t, "hi there", msgs[1].Text)
	require.Equal(t, "what is the weather", msgs[2].Text)
}

func TestInvoke_MemoryWriteFailure(t *testing.T) {
	fx := newInvokeFixture(t)
	fx.memory.appendErr = errors.New("throttled")
	fx.model.replies = []domain.ModelReply{{Text: "sunny"}}

	_, err := fx.svc.Invoke(context.Background(), validInvokeInput(), fx.emit)
	requireCode(t, err, ErrorMemory)
}

func TestInvoke_ToolRoundLimit(t *testing.T) {
	fx := newInvokeFixture(t)
	fx.tool.results["get_weather"] = "cloudy"
	fx.model.replies = []domain.ModelReply{
		{ToolCalls: []domain.ToolCall{{ID: "call-1", Name: "get_weather"}}},
	}

	_, err := fx.svc.Invoke(context.Background(), validInvokeInput(), fx.emit)
	requireCode(t, err, ErrorModelUpstream)
	require.Len(t, fx.model.calls, 8)
}
