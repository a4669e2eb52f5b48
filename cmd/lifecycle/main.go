// Command lifecycle is the CloudFormation custom-resource Lambda that
// reconciles the managed gateway and its lambda target on stack events.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"agent-gateway/internal/integrations/gatewayadmin"
	"agent-gateway/internal/integrations/paramstore"
	"agent-gateway/internal/reconciler"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	control, err := gatewayadmin.New(bedrockagentcorecontrol.NewFromConfig(cfg), cfg.Region)
	if err != nil {
		logger.Error("failed to create gateway control client", "err", err)
		os.Exit(1)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		logger.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	rec, err := reconciler.New(control, params, logger)
	if err != nil {
		logger.Error("failed to create reconciler", "err", err)
		os.Exit(1)
	}
	responder, err := reconciler.NewResponder(&http.Client{Timeout: 60 * time.Second})
	if err != nil {
		logger.Error("failed to create responder", "err", err)
		os.Exit(1)
	}

	lambda.Start(func(ctx context.Context, event cfn.Event) error {
		return rec.Handle(ctx, event, responder)
	})
}
