// Command feedback is the API Gateway proxy Lambda behind POST /feedback.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"agent-gateway/handler"
	"agent-gateway/internal/repository"
	"agent-gateway/internal/usecase"
)

func main() {
	ctx := context.Background()

	feedbackTable := mustEnv("FEEDBACK_TABLE")

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	store, err := repository.NewFeedbackStore(awsdynamodb.NewFromConfig(cfg), feedbackTable)
	if err != nil {
		slog.Error("failed to create feedback store", "err", err)
		os.Exit(1)
	}
	feedbackService, err := usecase.NewFeedbackService(store)
	if err != nil {
		slog.Error("failed to create feedback service", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewFeedbackHandler(feedbackService)
	if err != nil {
		slog.Error("failed to create feedback handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}
