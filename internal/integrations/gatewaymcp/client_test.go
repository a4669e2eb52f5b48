package gatewaymcp

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

type fakeMCP struct {
	startErr   error
	initErr    error
	listOut    *mcp.ListToolsResult
	listErr    error
	callOut    *mcp.CallToolResult
	callErr    error
	closed     bool
	lastCall   mcp.CallToolRequest
	initCalled bool
}

func (f *fakeMCP) Start(_ context.Context) error { return f.startErr }

func (f *fakeMCP) Initialize(_ context.Context, _ mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	f.initCalled = true
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &mcp.InitializeResult{}, nil
}

func (f *fakeMCP) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return f.listOut, f.listErr
}

func (f *fakeMCP) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.lastCall = req
	return f.callOut, f.callErr
}

func (f *fakeMCP) Close() error {
	f.closed = true
	return nil
}

func withFake(t *testing.T, fake *fakeMCP) {
	t.Helper()
	orig := newMCPClient
	newMCPClient = func(_, _ string) (mcpClient, error) { return fake, nil }
	t.Cleanup(func() { newMCPClient = orig })
}

func dialFake(t *testing.T, fake *fakeMCP) *Client {
	t.Helper()
	withFake(t, fake)
	c, err := Dial(context.Background(), "https://gw.example.com/mcp", "tok")
	require.NoError(t, err)
	return c
}

func TestDial_Validates(t *testing.T) {
	_, err := Dial(context.Background(), " ", "tok")
	require.Error(t, err)

	_, err = Dial(context.Background(), "https://gw.example.com/mcp", "")
	require.Error(t, err)
}

func TestDial_InitializeHandshake(t *testing.T) {
	fake := &fakeMCP{}
	c := dialFake(t, fake)
	require.True(t, fake.initCalled)
	require.NotNil(t, c)
}

func TestDial_StartError(t *testing.T) {
	withFake(t, &fakeMCP{startErr: errors.New("connection refused")})
	_, err := Dial(context.Background(), "https://gw.example.com/mcp", "tok")
	require.Error(t, err)
	require.ErrorContains(t, err, "connection refused")
}

func TestDial_InitializeError_ClosesTransport(t *testing.T) {
	fake := &fakeMCP{initErr: errors.New("401 Unauthorized")}
	withFake(t, fake)
	_, err := Dial(context.Background(), "https://gw.example.com/mcp", "tok")
	require.Error(t, err)
	require.ErrorContains(t, err, "401 Unauthorized")
	require.True(t, fake.closed)
}

func TestListTools_HappyPath(t *testing.T) {
	fake := &fakeMCP{listOut: &mcp.ListToolsResult{Tools: []mcp.Tool{
		{
			Name:        "demo-target___sample_tool",
			Description: "Says hello.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{"name": map[string]any{"type": "string"}},
			},
		},
	}}}
	c := dialFake(t, fake)

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "demo-target___sample_tool", tools[0].Name)
	require.Equal(t, "object", tools[0].InputSchema["type"])
}

func TestListTools_Error(t *testing.T) {
	c := dialFake(t, &fakeMCP{listErr: errors.New("HTTP error 502: bad gateway")})
	_, err := c.ListTools(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "502")
}

func TestCallTool_HappyPath(t *testing.T) {
	fake := &fakeMCP{callOut: &mcp.CallToolResult{Content: []mcp.Content{
		mcp.TextContent{Type: "text", Text: "Hello, World!"},
	}}}
	c := dialFake(t, fake)

	out, err := c.CallTool(context.Background(), "demo-target___sample_tool", map[string]any{"name": "World"})
	require.NoError(t, err)
	require.Equal(t, "Hello, World!", out)
	require.Equal(t, "demo-target___sample_tool", fake.lastCall.Params.Name)
}

func TestCallTool_IsError(t *testing.T) {
	fake := &fakeMCP{callOut: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "tool exploded"}},
	}}
	c := dialFake(t, fake)

	_, err := c.CallTool(context.Background(), "sample_tool", nil)
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, "tool exploded", toolErr.Text)
}

func TestCallTool_TransportError(t *testing.T) {
	c := dialFake(t, &fakeMCP{callErr: errors.New("HTTP error 401: unauthorized")})
	_, err := c.CallTool(context.Background(), "sample_tool", nil)
	require.Error(t, err)
	require.ErrorContains(t, err, "401")
}

func TestCallTool_EmptyName(t *testing.T) {
	c := dialFake(t, &fakeMCP{})
	_, err := c.CallTool(context.Background(), " ", nil)
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	fake := &fakeMCP{}
	c := dialFake(t, fake)
	require.NoError(t, c.Close())
	require.True(t, fake.closed)
}
