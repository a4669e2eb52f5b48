// Package bedrock wraps the Bedrock runtime Converse API as the model side of
// the agent loop: messages and tool configuration in, assistant text and tool
// calls out.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"agent-gateway/internal/domain"
)

// bedrockAPI is the minimal Bedrock runtime interface required by Client.
type bedrockAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client invokes a single model with tool configuration.
type Client struct {
	api     bedrockAPI
	modelID string
}

func New(api bedrockAPI, modelID string) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: api must not be nil")
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("bedrock: model id must not be empty")
	}
	return &Client{api: api, modelID: modelID}, nil
}

// Converse sends the conversation so far plus the available tools and returns
// the model's reply. A tool_use stop reason means the caller must execute the
// returned tool calls and converse again with their results appended.
func (c *Client) Converse(ctx context.Context, system string, msgs []domain.ChatMessage, tools []domain.RemoteTool) (domain.ModelReply, error) {
	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.modelID),
		Messages: make([]types.Message, 0, len(msgs)),
	}
	if strings.TrimSpace(system) != "" {
		in.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}
	for _, m := range msgs {
		msg, err := toSDKMessage(m)
		if err != nil {
			return domain.ModelReply{}, err
		}
		in.Messages = append(in.Messages, msg)
	}
	if len(tools) > 0 {
		in.ToolConfig = toolConfig(tools)
	}

	out, err := c.api.Converse(ctx, in)
	if err != nil {
		return domain.ModelReply{}, fmt.Errorf("bedrock: converse: %w", err)
	}
	return fromSDKOutput(out)
}

func toSDKMessage(m domain.ChatMessage) (types.Message, error) {
	role, err := conversationRole(m.Role)
	if err != nil {
		return types.Message{}, err
	}

	var content []types.ContentBlock
	if m.Text != "" {
		content = append(content, &types.ContentBlockMemberText{Value: m.Text})
	}
	for _, call := range m.ToolCalls {
		content = append(content, &types.ContentBlockMemberToolUse{
			Value: types.ToolUseBlock{
				ToolUseId: aws.String(call.ID),
				Name:      aws.String(call.Name),
				Input:     document.NewLazyDocument(call.Arguments),
			},
		})
	}
	for _, result := range m.ToolResults {
		status := types.ToolResultStatusSuccess
		if result.IsError {
			status = types.ToolResultStatusError
		}
		content = append(content, &types.ContentBlockMemberToolResult{
			Value: types.ToolResultBlock{
				ToolUseId: aws.String(result.ID),
				Status:    status,
				Content: []types.ToolResultContentBlock{
					&types.ToolResultContentBlockMemberText{Value: result.Text},
				},
			},
		})
	}
	if len(content) == 0 {
		return types.Message{}, errors.New("bedrock: message has no content")
	}

	return types.Message{Role: role, Content: content}, nil
}

func conversationRole(role string) (types.ConversationRole, error) {
	switch role {
	case "user":
		return types.ConversationRoleUser, nil
	case "assistant":
		return types.ConversationRoleAssistant, nil
	default:
		return "", fmt.Errorf("bedrock: unsupported message role %q", role)
	}
}

func toolConfig(tools []domain.RemoteTool) *types.ToolConfiguration {
	cfg := &types.ToolConfiguration{Tools: make([]types.Tool, 0, len(tools))}
	for _, t := range tools {
		spec := types.ToolSpecification{
			Name:        aws.String(t.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(t.InputSchema)},
		}
		if t.Description != "" {
			spec.Description = aws.String(t.Description)
		}
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{Value: spec})
	}
	return cfg
}

func fromSDKOutput(out *bedrockruntime.ConverseOutput) (domain.ModelReply, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return domain.ModelReply{}, errors.New("bedrock: converse output has no message")
	}

	reply := domain.ModelReply{StopReason: string(out.StopReason)}
	var texts []string
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			texts = append(texts, b.Value)
		case *types.ContentBlockMemberToolUse:
			call := domain.ToolCall{
				ID:   aws.ToString(b.Value.ToolUseId),
				Name: aws.ToString(b.Value.Name),
			}
			if b.Value.Input != nil {
				var args map[string]any
				if err := b.Value.Input.UnmarshalSmithyDocument(&args); err != nil {
					return domain.ModelReply{}, fmt.Errorf("bedrock: decode tool input for %s: %w", call.Name, err)
				}
				call.Arguments = args
			}
			reply.ToolCalls = append(reply.ToolCalls, call)
		}
	}
	reply.Text = strings.Join(texts, "")
	return reply, nil
}
