// Package toollambda implements the lambda side of the gateway's tool
// contract. Each handler backs exactly one tool: the gateway routes the call,
// passes arguments unwrapped, and carries the prefixed tool name in the
// client context.
package toollambda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/lambdacontext"
)

const (
	toolNameKey        = "bedrockAgentCoreToolName"
	targetDelimiter    = "___"
	sampleToolName     = "sample_tool"
	defaultGreetTarget = "World"
)

// Content is one entry in a successful tool response.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the tool invocation outcome: a content array on success or an
// error string on failure. The gateway handles the HTTP layer.
type Result struct {
	Content []Content `json:"content,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// SampleTool is a hello-world tool handler.
type SampleTool struct {
	logger *slog.Logger
}

func NewSampleTool(logger *slog.Logger) (*SampleTool, error) {
	if logger == nil {
		return nil, errors.New("toollambda: logger must not be nil")
	}
	return &SampleTool{logger: logger}, nil
}

// Handle processes one tool invocation. The event carries the tool arguments
// directly; the invoked tool name arrives in the lambda client context as
// "TargetName___toolname" and is matched after stripping the target prefix.
func (t *SampleTool) Handle(ctx context.Context, event map[string]interface{}) (Result, error) {
	toolName, err := invokedToolName(ctx)
	if err != nil {
		t.logger.Error("tool name missing from invocation context", "error", err)
		return Result{Error: "internal server error: " + err.Error()}, nil
	}

	if toolName != sampleToolName {
		// Correct gateway routing guarantees the match; anything else is a
		// target misconfiguration.
		t.logger.Error("unexpected tool name", "tool", toolName)
		return Result{Error: fmt.Sprintf("this lambda only supports %q, received: %s", sampleToolName, toolName)}, nil
	}

	name, _ := event["name"].(string)
	if name == "" {
		name = defaultGreetTarget
	}

	t.logger.Info("handling tool invocation", "tool", toolName, "name", name)
	return Result{Content: []Content{
		{Type: "text", Text: fmt.Sprintf("Hello, %s! This is a sample tool.", name)},
	}}, nil
}

// invokedToolName extracts the routed tool name and strips the target prefix.
func invokedToolName(ctx context.Context) (string, error) {
	lc, ok := lambdacontext.FromContext(ctx)
	if !ok {
		return "", errors.New("toollambda: no lambda context")
	}
	full := lc.ClientContext.Custom[toolNameKey]
	if full == "" {
		return "", errors.New("toollambda: client context has no tool name")
	}
	if i := strings.Index(full, targetDelimiter); i >= 0 {
		return full[i+len(targetDelimiter):], nil
	}
	return full, nil
}
