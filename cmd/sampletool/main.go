// Command sampletool is a hello-world tool Lambda following the one tool per
// Lambda pattern: the gateway routes sample_tool invocations here.
package main

import (
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"agent-gateway/internal/toollambda"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	tool, err := toollambda.NewSampleTool(logger)
	if err != nil {
		logger.Error("failed to create sample tool", "err", err)
		os.Exit(1)
	}

	lambda.Start(tool.Handle)
}
