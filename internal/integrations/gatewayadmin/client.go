// Package gatewayadmin wraps the gateway control plane used by the lifecycle
// reconciler: gateway and target CRUD plus status reads. The control plane is
// eventually consistent; target creation against a gateway that is still
// CREATING or UPDATING surfaces as a typed NotReadyError so callers can
// decide to retry.
package gatewayadmin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol/types"

	"agent-gateway/internal/domain"
)

// controlAPI is the minimal control-plane interface required by Client.
type controlAPI interface {
	CreateGateway(ctx context.Context, in *bedrockagentcorecontrol.CreateGatewayInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateGatewayOutput, error)
	GetGateway(ctx context.Context, in *bedrockagentcorecontrol.GetGatewayInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.GetGatewayOutput, error)
	ListGateways(ctx context.Context, in *bedrockagentcorecontrol.ListGatewaysInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListGatewaysOutput, error)
	DeleteGateway(ctx context.Context, in *bedrockagentcorecontrol.DeleteGatewayInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.DeleteGatewayOutput, error)
	CreateGatewayTarget(ctx context.Context, in *bedrockagentcorecontrol.CreateGatewayTargetInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateGatewayTargetOutput, error)
	UpdateGatewayTarget(ctx context.Context, in *bedrockagentcorecontrol.UpdateGatewayTargetInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.UpdateGatewayTargetOutput, error)
	ListGatewayTargets(ctx context.Context, in *bedrockagentcorecontrol.ListGatewayTargetsInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListGatewayTargetsOutput, error)
	DeleteGatewayTarget(ctx context.Context, in *bedrockagentcorecontrol.DeleteGatewayTargetInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.DeleteGatewayTargetOutput, error)
}

// NotReadyError marks a target operation rejected because the gateway is
// still transitioning (CREATING/UPDATING). Retryable with backoff.
type NotReadyError struct {
	GatewayID string
	Err       error
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("gatewayadmin: gateway %s not ready: %v", e.GatewayID, e.Err)
}

func (e *NotReadyError) Unwrap() error { return e.Err }

// GatewayNotReady satisfies the interface check callers use without importing
// this package's concrete type.
func (e *NotReadyError) GatewayNotReady() bool { return true }

// IsNotReady reports whether err (or anything it wraps) marks a transient
// gateway-transition failure.
func IsNotReady(err error) bool {
	var nr interface{ GatewayNotReady() bool }
	return errors.As(err, &nr) && nr.GatewayNotReady()
}

// Client is the control-plane client for managed gateways.
type Client struct {
	api    controlAPI
	region string
}

func New(api controlAPI, region string) (*Client, error) {
	if api == nil {
		return nil, errors.New("gatewayadmin: api must not be nil")
	}
	if strings.TrimSpace(region) == "" {
		return nil, errors.New("gatewayadmin: region must not be empty")
	}
	return &Client{api: api, region: region}, nil
}

// ListGateways returns all gateways in the account/region, following
// pagination tokens.
func (c *Client) ListGateways(ctx context.Context) ([]domain.GatewaySummary, error) {
	var summaries []domain.GatewaySummary
	var nextToken *string
	for {
		out, err := c.api.ListGateways(ctx, &bedrockagentcorecontrol.ListGatewaysInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("gatewayadmin: list gateways: %w", err)
		}
		for _, item := range out.Items {
			summaries = append(summaries, domain.GatewaySummary{
				ID:     aws.ToString(item.GatewayId),
				Name:   aws.ToString(item.Name),
				Status: domain.GatewayStatus(item.Status),
			})
		}
		if out.NextToken == nil {
			return summaries, nil
		}
		nextToken = out.NextToken
	}
}

// GetGateway fetches a gateway by id. Some control-plane responses omit the
// gateway URL; in that case it is constructed from the id and region.
func (c *Client) GetGateway(ctx context.Context, gatewayID string) (domain.Gateway, error) {
	out, err := c.api.GetGateway(ctx, &bedrockagentcorecontrol.GetGatewayInput{
		GatewayIdentifier: aws.String(gatewayID),
	})
	if err != nil {
		return domain.Gateway{}, fmt.Errorf("gatewayadmin: get gateway %s: %w", gatewayID, err)
	}
	return domain.Gateway{
		ID:     aws.ToString(out.GatewayId),
		Name:   aws.ToString(out.Name),
		URL:    c.gatewayURL(aws.ToString(out.GatewayId), out.GatewayUrl),
		Status: domain.GatewayStatus(out.Status),
	}, nil
}

// CreateGateway creates an MCP gateway with a custom JWT authorizer.
func (c *Client) CreateGateway(ctx context.Context, spec domain.GatewaySpec) (domain.Gateway, error) {
	in := &bedrockagentcorecontrol.CreateGatewayInput{
		Name:           aws.String(spec.Name),
		RoleArn:        aws.String(spec.RoleArn),
		ProtocolType:   types.GatewayProtocolTypeMcp,
		AuthorizerType: types.AuthorizerTypeCustomJwt,
		AuthorizerConfiguration: &types.AuthorizerConfigurationMemberCustomJWTAuthorizer{
			Value: types.CustomJWTAuthorizerConfiguration{
				AllowedClients: []string{spec.AllowedClientID},
				DiscoveryUrl:   aws.String(spec.DiscoveryURL),
			},
		},
	}
	if spec.Description != "" {
		in.Description = aws.String(spec.Description)
	}

	out, err := c.api.CreateGateway(ctx, in)
	if err != nil {
		return domain.Gateway{}, fmt.Errorf("gatewayadmin: create gateway %s: %w", spec.Name, err)
	}
	return domain.Gateway{
		ID:     aws.ToString(out.GatewayId),
		Name:   spec.Name,
		URL:    c.gatewayURL(aws.ToString(out.GatewayId), out.GatewayUrl),
		Status: domain.GatewayStatus(out.Status),
	}, nil
}

func (c *Client) DeleteGateway(ctx context.Context, gatewayID string) error {
	_, err := c.api.DeleteGateway(ctx, &bedrockagentcorecontrol.DeleteGatewayInput{
		GatewayIdentifier: aws.String(gatewayID),
	})
	if err != nil {
		return fmt.Errorf("gatewayadmin: delete gateway %s: %w", gatewayID, err)
	}
	return nil
}

// ListTargets returns the targets attached to a gateway.
func (c *Client) ListTargets(ctx context.Context, gatewayID string) ([]domain.Target, error) {
	var targets []domain.Target
	var nextToken *string
	for {
		out, err := c.api.ListGatewayTargets(ctx, &bedrockagentcorecontrol.ListGatewayTargetsInput{
			GatewayIdentifier: aws.String(gatewayID),
			NextToken:         nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("gatewayadmin: list targets for %s: %w", gatewayID, err)
		}
		for _, item := range out.Items {
			targets = append(targets, domain.Target{
				ID:   aws.ToString(item.TargetId),
				Name: aws.ToString(item.Name),
			})
		}
		if out.NextToken == nil {
			return targets, nil
		}
		nextToken = out.NextToken
	}
}

// CreateTarget attaches a Lambda target with an inline tool schema. A
// rejection caused by the gateway still transitioning comes back as a
// *NotReadyError.
func (c *Client) CreateTarget(ctx context.Context, gatewayID string, spec domain.TargetSpec) (string, error) {
	in := &bedrockagentcorecontrol.CreateGatewayTargetInput{
		GatewayIdentifier:                aws.String(gatewayID),
		Name:                             aws.String(spec.Name),
		TargetConfiguration:              targetConfiguration(spec),
		CredentialProviderConfigurations: iamRoleCredentials(),
	}
	if spec.Description != "" {
		in.Description = aws.String(spec.Description)
	}

	out, err := c.api.CreateGatewayTarget(ctx, in)
	if err != nil {
		if isTransitionMessage(err) {
			return "", &NotReadyError{GatewayID: gatewayID, Err: err}
		}
		return "", fmt.Errorf("gatewayadmin: create target on %s: %w", gatewayID, err)
	}
	return aws.ToString(out.TargetId), nil
}

// UpdateTarget replaces an existing target's configuration in place.
func (c *Client) UpdateTarget(ctx context.Context, gatewayID, targetID string, spec domain.TargetSpec) error {
	_, err := c.api.UpdateGatewayTarget(ctx, &bedrockagentcorecontrol.UpdateGatewayTargetInput{
		GatewayIdentifier:                aws.String(gatewayID),
		TargetId:                         aws.String(targetID),
		Name:                             aws.String(spec.Name),
		TargetConfiguration:              targetConfiguration(spec),
		CredentialProviderConfigurations: iamRoleCredentials(),
	})
	if err != nil {
		return fmt.Errorf("gatewayadmin: update target %s on %s: %w", targetID, gatewayID, err)
	}
	return nil
}

func (c *Client) DeleteTarget(ctx context.Context, gatewayID, targetID string) error {
	_, err := c.api.DeleteGatewayTarget(ctx, &bedrockagentcorecontrol.DeleteGatewayTargetInput{
		GatewayIdentifier: aws.String(gatewayID),
		TargetId:          aws.String(targetID),
	})
	if err != nil {
		return fmt.Errorf("gatewayadmin: delete target %s on %s: %w", targetID, gatewayID, err)
	}
	return nil
}

func (c *Client) gatewayURL(gatewayID string, url *string) string {
	if url != nil && *url != "" {
		return *url
	}
	return fmt.Sprintf("https://%s.gateway.bedrock-agentcore.%s.amazonaws.com/mcp", gatewayID, c.region)
}

func targetConfiguration(spec domain.TargetSpec) types.TargetConfiguration {
	return &types.TargetConfigurationMemberMcp{
		Value: &types.McpTargetConfigurationMemberLambda{
			Value: types.McpLambdaTargetConfiguration{
				LambdaArn: aws.String(spec.LambdaArn),
				ToolSchema: &types.ToolSchemaMemberInlinePayload{
					Value: toSDKToolDefinitions(spec.Tools),
				},
			},
		},
	}
}

func iamRoleCredentials() []types.CredentialProviderConfiguration {
	return []types.CredentialProviderConfiguration{
		{CredentialProviderType: types.CredentialProviderTypeGatewayIamRole},
	}
}

func toSDKToolDefinitions(tools []domain.ToolDefinition) []types.ToolDefinition {
	defs := make([]types.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		def := types.ToolDefinition{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: toSDKSchema(t.InputSchema),
		}
		defs = append(defs, def)
	}
	return defs
}

func toSDKSchema(s *domain.Schema) *types.SchemaDefinition {
	if s == nil {
		return nil
	}
	out := &types.SchemaDefinition{
		Type:     types.SchemaType(s.Type),
		Required: s.Required,
	}
	if s.Description != "" {
		out.Description = aws.String(s.Description)
	}
	if s.Items != nil {
		out.Items = toSDKSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]types.SchemaDefinition, len(s.Properties))
		for name, prop := range s.Properties {
			if converted := toSDKSchema(prop); converted != nil {
				out.Properties[name] = *converted
			}
		}
	}
	return out
}

// isTransitionMessage matches the control plane's conflict wording for a
// gateway that has not finished its previous state change.
func isTransitionMessage(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "CREATING") || strings.Contains(msg, "UPDATING")
}
