// Command gatewayctl is the operator harness for a deployed stack: it
// exchanges tokens, exercises the gateway's tools, drives the agent runtime,
// inspects conversation memory, posts feedback, and exports the frontend
// configuration.
//
// Usage:
//
//	gatewayctl token
//	gatewayctl tools list
//	gatewayctl tools call sample_tool --args '{"name":"Ada"}'
//	gatewayctl agent "what can you do?"
//	gatewayctl memory list --memory-id mem-123 --actor user-1 --session s1
//	gatewayctl feedback --session s1 --message "hi" --type positive
//	gatewayctl export-config
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"agent-gateway/internal/domain"
	"agent-gateway/internal/integrations/agentmemory"
	"agent-gateway/internal/integrations/cognito"
	"agent-gateway/internal/integrations/gatewaymcp"
	"agent-gateway/internal/integrations/paramstore"
	"agent-gateway/internal/stackcfg"
)

// CLI defines the command-line interface.
type CLI struct {
	Token        TokenCmd        `cmd:"" help:"Print a gateway bearer token."`
	Tools        ToolsCmd        `cmd:"" help:"List or invoke gateway tools."`
	Agent        AgentCmd        `cmd:"" help:"Send a prompt to the agent runtime and stream the reply."`
	Memory       MemoryCmd       `cmd:"" help:"Read or append conversation memory."`
	Feedback     FeedbackCmd     `cmd:"" help:"Submit feedback through the feedback API."`
	ExportConfig ExportConfigCmd `cmd:"" name:"export-config" help:"Generate aws-exports.json from stack outputs."`

	Stack  string `short:"s" help:"Stack name (defaults to stack_name_base in config.yaml)." env:"STACK_NAME"`
	Config string `short:"c" help:"Path to config.yaml." default:"infra-cdk/config.yaml" type:"path"`
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("gatewayctl"),
		kong.Description("Operator harness for the agent gateway stack."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// --- Output markers, matching the deploy tooling's conventions ---

func printSuccess(format string, args ...any) {
	fmt.Printf("✓ "+format+"\n", args...)
}

func printInfo(format string, args ...any) {
	fmt.Printf("ℹ "+format+"\n", args...)
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// --- Shared wiring ---

func (cli *CLI) stackName() (string, error) {
	if cli.Stack != "" {
		return cli.Stack, nil
	}
	fileCfg, err := stackcfg.LoadFile(cli.Config)
	if err != nil {
		return "", err
	}
	if fileCfg.StackNameBase == "" {
		return "", fmt.Errorf("stack name not given and stack_name_base missing from %s", cli.Config)
	}
	return fileCfg.StackNameBase, nil
}

func (cli *CLI) stackConfig(ctx context.Context) (stackcfg.StackConfig, error) {
	stackName, err := cli.stackName()
	if err != nil {
		return stackcfg.StackConfig{}, err
	}
	pattern := ""
	if fileCfg, err := stackcfg.LoadFile(cli.Config); err == nil {
		pattern = fileCfg.Backend.Pattern
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return stackcfg.StackConfig{}, err
	}
	resolver, err := stackcfg.NewResolver(cloudformation.NewFromConfig(awsCfg))
	if err != nil {
		return stackcfg.StackConfig{}, err
	}
	return resolver.Resolve(ctx, stackName, pattern)
}

func (cli *CLI) gatewaySession(ctx context.Context) (gatewayURL, token string, err error) {
	stackName, err := cli.stackName()
	if err != nil {
		return "", "", err
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", "", err
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return "", "", err
	}

	gatewayURL, err = params.GetParameter(ctx, "/"+stackName+"/gateway_url")
	if err != nil {
		return "", "", err
	}
	exchanger, err := cognito.NewExchanger(params, stackName)
	if err != nil {
		return "", "", err
	}
	token, err = exchanger.AccessToken(ctx)
	if err != nil {
		return "", "", err
	}
	return gatewayURL, token, nil
}

// --- token ---

type TokenCmd struct{}

func (c *TokenCmd) Run(cli *CLI) error {
	ctx := context.Background()
	_, token, err := cli.gatewaySession(ctx)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// --- tools ---

type ToolsCmd struct {
	List ToolsListCmd `cmd:"" help:"List tools routed by the gateway."`
	Call ToolsCallCmd `cmd:"" help:"Invoke one tool with JSON arguments."`
}

type ToolsListCmd struct{}

func (c *ToolsListCmd) Run(cli *CLI) error {
	ctx := context.Background()
	gatewayURL, token, err := cli.gatewaySession(ctx)
	if err != nil {
		return err
	}

	client, err := gatewaymcp.Dial(ctx, gatewayURL, token)
	if err != nil {
		return err
	}
	defer client.Close()

	tools, err := client.ListTools(ctx)
	if err != nil {
		return err
	}
	printSuccess("gateway exposes %d tool(s)", len(tools))
	for _, tool := range tools {
		fmt.Printf("  %s: %s\n", tool.Name, tool.Description)
	}
	return nil
}

type ToolsCallCmd struct {
	Name string `arg:"" help:"Tool name as listed by the gateway."`
	Args string `help:"JSON argument object." default:"{}"`
}

func (c *ToolsCallCmd) Run(cli *CLI) error {
	ctx := context.Background()

	var args map[string]any
	if err := json.Unmarshal([]byte(c.Args), &args); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	gatewayURL, token, err := cli.gatewaySession(ctx)
	if err != nil {
		return err
	}
	client, err := gatewaymcp.Dial(ctx, gatewayURL, token)
	if err != nil {
		return err
	}
	defer client.Close()

	out, err := client.CallTool(ctx, c.Name, args)
	if err != nil {
		return err
	}
	printSuccess("%s", c.Name)
	fmt.Println(out)
	return nil
}

// --- agent ---

type AgentCmd struct {
	Prompt  string `arg:"" help:"Prompt to send."`
	URL     string `help:"Agent runtime base URL." default:"http://localhost:8080"`
	User    string `help:"Actor id." default:"cli-user"`
	Session string `help:"Session id (generated when empty)."`
}

func (c *AgentCmd) Run(_ *CLI) error {
	sessionID := c.Session
	if sessionID == "" {
		sessionID = uuid.NewString()
		printInfo("session %s", sessionID)
	}

	body, err := json.Marshal(map[string]string{
		"prompt":    c.Prompt,
		"userId":    c.User,
		"sessionId": sessionID,
	})
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}
	resp, err := httpClient.Post(strings.TrimRight(c.URL, "/")+"/invocations", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("runtime returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev domain.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case domain.EventChunk:
			fmt.Println(ev.Text)
		case domain.EventToolUse:
			printInfo("using tool %s", ev.Tool)
		case domain.EventError:
			return fmt.Errorf("agent error: %s", ev.Error)
		case domain.EventDone:
			printSuccess("done")
		}
	}
	return scanner.Err()
}

// --- memory ---

type MemoryCmd struct {
	Put  MemoryPutCmd  `cmd:"" help:"Append a turn to session memory."`
	List MemoryListCmd `cmd:"" help:"List session memory events."`

	MemoryID string `help:"Memory resource id." env:"MEMORY_ID" required:""`
	Actor    string `help:"Actor id." default:"cli-user"`
	Session  string `help:"Session id." required:""`
}

func (c *MemoryCmd) client(ctx context.Context) (*agentmemory.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return agentmemory.New(bedrockagentcore.NewFromConfig(awsCfg), c.MemoryID)
}

type MemoryPutCmd struct {
	Text string `arg:"" help:"Turn text."`
	Role string `help:"Turn role." enum:"user,assistant" default:"user"`
}

func (c *MemoryPutCmd) Run(parent *MemoryCmd) error {
	ctx := context.Background()
	client, err := parent.client(ctx)
	if err != nil {
		return err
	}

	role := domain.RoleUser
	if c.Role == "assistant" {
		role = domain.RoleAssistant
	}
	eventID, err := client.AppendTurns(ctx, parent.Actor, parent.Session, []domain.MemoryTurn{
		{Role: role, Text: c.Text},
	})
	if err != nil {
		return err
	}
	printSuccess("event %s", eventID)
	return nil
}

type MemoryListCmd struct {
	Limit int `help:"Maximum events to fetch." default:"20"`
}

func (c *MemoryListCmd) Run(parent *MemoryCmd) error {
	ctx := context.Background()
	client, err := parent.client(ctx)
	if err != nil {
		return err
	}

	events, err := client.SessionEvents(ctx, parent.Actor, parent.Session, c.Limit)
	if err != nil {
		return err
	}
	printSuccess("%d event(s)", len(events))
	for _, event := range events {
		for _, turn := range event.Turns {
			fmt.Printf("  [%s] %s: %s\n", event.Timestamp.Format(time.RFC3339), turn.Role, turn.Text)
		}
	}
	return nil
}

// --- feedback ---

type FeedbackCmd struct {
	Session  string `help:"Session id." required:""`
	Message  string `help:"Agent message the feedback refers to." required:""`
	Type     string `help:"Feedback type." enum:"positive,negative" required:""`
	Comment  string `help:"Optional free-text comment."`
	Username string `help:"Identity-provider username." env:"COGNITO_USERNAME" required:""`
	Password string `help:"Identity-provider password." env:"COGNITO_PASSWORD" required:""`
}

func (c *FeedbackCmd) Run(cli *CLI) error {
	ctx := context.Background()

	stack, err := cli.stackConfig(ctx)
	if err != nil {
		return err
	}
	clientID, err := stack.Output("CognitoClientId")
	if err != nil {
		return err
	}
	apiURL, err := stack.Output("FeedbackApiUrl")
	if err != nil {
		return err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}
	auth, err := cognito.NewUserAuth(cognitoidentityprovider.NewFromConfig(awsCfg))
	if err != nil {
		return err
	}
	session, err := auth.Authenticate(ctx, clientID, c.Username, c.Password)
	if err != nil {
		return err
	}
	printInfo("authenticated as %s", session.UserID)

	body, err := json.Marshal(map[string]string{
		"sessionId":    c.Session,
		"message":      c.Message,
		"feedbackType": c.Type,
		"comment":      c.Comment,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(apiURL, "/")+"/feedback", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.IDToken)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feedback API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		FeedbackID string `json:"feedbackId"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("malformed feedback API response: %w", err)
	}
	printSuccess("feedback recorded: %s", out.FeedbackID)
	return nil
}

// --- export-config ---

type ExportConfigCmd struct {
	Out string `help:"Output path for aws-exports.json." default:"frontend/public/aws-exports.json" type:"path"`
}

func (c *ExportConfigCmd) Run(cli *CLI) error {
	ctx := context.Background()

	stack, err := cli.stackConfig(ctx)
	if err != nil {
		return err
	}
	exports, err := stackcfg.BuildExports(stack)
	if err != nil {
		return err
	}
	raw, err := stackcfg.MarshalExports(exports)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, raw, 0o644); err != nil {
		return err
	}
	printSuccess("wrote %s", c.Out)
	return nil
}
