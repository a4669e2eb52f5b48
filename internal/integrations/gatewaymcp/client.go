// Package gatewaymcp is the protocol client for the managed tool gateway.
// The gateway speaks MCP (JSON-RPC 2.0 over streamable HTTP) and
// authenticates callers with a bearer token on every request.
package gatewaymcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"agent-gateway/internal/domain"
)

const clientName = "agent-gateway"

// mcpClient is the subset of *client.Client used here, extracted so tests can
// run without a live gateway.
type mcpClient interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

var newMCPClient = func(gatewayURL, bearerToken string) (mcpClient, error) {
	return client.NewStreamableHttpClient(gatewayURL, transport.WithHTTPHeaders(map[string]string{
		"Authorization": "Bearer " + bearerToken,
	}))
}

// ToolError is a tool invocation that completed but reported failure
// (isError in the protocol result). The text is the tool's own error output.
type ToolError struct {
	Tool string
	Text string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("gatewaymcp: tool %s failed: %s", e.Tool, e.Text)
}

// ToolFailed distinguishes tool-reported failures from transport errors so
// callers can feed the former back to the model.
func (e *ToolError) ToolFailed() bool { return true }

// Client lists and invokes tools hosted behind a gateway endpoint. Each call
// is a single synchronous request; failures surface the transport error
// verbatim.
type Client struct {
	mcp mcpClient
}

// Dial connects to the gateway, starts the transport, and performs the
// protocol initialize handshake.
func Dial(ctx context.Context, gatewayURL, bearerToken string) (*Client, error) {
	gatewayURL = strings.TrimSpace(gatewayURL)
	if gatewayURL == "" {
		return nil, errors.New("gatewaymcp: gateway url must not be empty")
	}
	if strings.TrimSpace(bearerToken) == "" {
		return nil, errors.New("gatewaymcp: bearer token must not be empty")
	}

	mc, err := newMCPClient(gatewayURL, bearerToken)
	if err != nil {
		return nil, fmt.Errorf("gatewaymcp: create client: %w", err)
	}
	if err := mc.Start(ctx); err != nil {
		return nil, fmt.Errorf("gatewaymcp: start transport: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: "1.0.0"}
	if _, err := mc.Initialize(ctx, initReq); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("gatewaymcp: initialize: %w", err)
	}

	return &Client{mcp: mc}, nil
}

// ListTools returns the tools currently routed by the gateway.
func (c *Client) ListTools(ctx context.Context) ([]domain.RemoteTool, error) {
	res, err := c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("gatewaymcp: list tools: %w", err)
	}

	tools := make([]domain.RemoteTool, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, domain.RemoteTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
		})
	}
	return tools, nil
}

// CallTool invokes a named tool with a JSON argument object and returns the
// flattened text content. A result flagged isError becomes a *ToolError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("gatewaymcp: tool name must not be empty")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.mcp.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("gatewaymcp: call tool %s: %w", name, err)
	}

	text := flattenText(res.Content)
	if res.IsError {
		return "", &ToolError{Tool: name, Text: text}
	}
	return text, nil
}

func (c *Client) Close() error {
	return c.mcp.Close()
}

func flattenText(content []mcp.Content) string {
	var texts []string
	for _, block := range content {
		if tc, ok := block.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// schemaToMap round-trips the typed schema through JSON to get a plain map
// for the model's tool configuration.
func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
