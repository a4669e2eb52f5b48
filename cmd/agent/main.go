// Command agent is the conversational agent runtime: an HTTP service exposing
// POST /invocations (server-sent event stream) and GET /ping.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"agent-gateway/handler"
	"agent-gateway/internal/integrations/agentmemory"
	"agent-gateway/internal/integrations/bedrock"
	"agent-gateway/internal/integrations/cognito"
	"agent-gateway/internal/integrations/gatewaymcp"
	"agent-gateway/internal/integrations/paramstore"
	"agent-gateway/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// ---- Configuration (read only here) ----
	stackName := mustEnv("STACK_NAME")
	memoryID := mustEnv("MEMORY_ID")
	modelID := mustEnv("MODEL_ID")
	systemPrompt := os.Getenv("SYSTEM_PROMPT")
	port := envInt("PORT", 8080)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		logger.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	tokens, err := cognito.NewExchanger(ssmClient, stackName)
	if err != nil {
		logger.Error("failed to create token exchanger", "err", err)
		os.Exit(1)
	}
	model, err := bedrock.New(bedrockruntime.NewFromConfig(cfg), modelID)
	if err != nil {
		logger.Error("failed to create model client", "err", err)
		os.Exit(1)
	}
	memory, err := agentmemory.New(bedrockagentcore.NewFromConfig(cfg), memoryID)
	if err != nil {
		logger.Error("failed to create memory client", "err", err)
		os.Exit(1)
	}

	dial := func(ctx context.Context, gatewayURL, bearerToken string) (usecase.ToolClient, error) {
		return gatewaymcp.Dial(ctx, gatewayURL, bearerToken)
	}

	// ---- Handler ----
	invokeService, err := usecase.NewInvokeService(ssmClient, tokens, dial, model, memory, "/"+stackName, systemPrompt)
	if err != nil {
		logger.Error("failed to create invoke service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewInvokeHandler(invokeService, logger)
	if err != nil {
		logger.Error("failed to create invoke handler", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("agent runtime listening", "port", port)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
