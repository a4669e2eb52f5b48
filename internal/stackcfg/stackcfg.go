// Package stackcfg resolves deployment-time configuration: the project's
// config.yaml plus the deployed stack's outputs, region, and account.
// Configuration is immutable once fetched; callers re-resolve per invocation.
package stackcfg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"gopkg.in/yaml.v3"
)

const defaultPattern = "strands-single-agent"

// cfnAPI is the minimal CloudFormation interface required by the Resolver.
type cfnAPI interface {
	DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
}

// FileConfig is the subset of config.yaml this tooling reads.
type FileConfig struct {
	StackNameBase string `yaml:"stack_name_base"`
	Backend       struct {
		Pattern string `yaml:"pattern"`
	} `yaml:"backend"`
}

// StackConfig is a deployed stack's resolved configuration.
type StackConfig struct {
	StackName string
	Region    string
	Account   string
	Pattern   string
	Outputs   map[string]string
}

// Output returns a named stack output, failing with the missing key so a
// partially deployed stack is diagnosed immediately.
func (c StackConfig) Output(key string) (string, error) {
	v, ok := c.Outputs[key]
	if !ok || v == "" {
		return "", fmt.Errorf("stackcfg: stack %s has no output %s", c.StackName, key)
	}
	return v, nil
}

// LoadFile reads config.yaml from the given path.
func LoadFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("stackcfg: read %s: %w", path, err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("stackcfg: parse %s: %w", path, err)
	}
	if cfg.Backend.Pattern == "" {
		cfg.Backend.Pattern = defaultPattern
	}
	return cfg, nil
}

// Resolver fetches stack configuration from CloudFormation.
type Resolver struct {
	api cfnAPI
}

func NewResolver(api cfnAPI) (*Resolver, error) {
	if api == nil {
		return nil, errors.New("stackcfg: api must not be nil")
	}
	return &Resolver{api: api}, nil
}

// Resolve describes the named stack and extracts its outputs plus the region
// and account encoded in the stack ARN.
func (r *Resolver) Resolve(ctx context.Context, stackName, pattern string) (StackConfig, error) {
	stackName = strings.TrimSpace(stackName)
	if stackName == "" {
		return StackConfig{}, errors.New("stackcfg: stack name must not be empty")
	}

	out, err := r.api.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		return StackConfig{}, fmt.Errorf("stackcfg: describe stack %s: %w", stackName, err)
	}
	if len(out.Stacks) == 0 {
		return StackConfig{}, fmt.Errorf("stackcfg: stack %s not found", stackName)
	}
	stack := out.Stacks[0]

	region, account, err := parseStackARN(aws.ToString(stack.StackId))
	if err != nil {
		return StackConfig{}, err
	}

	outputs := make(map[string]string, len(stack.Outputs))
	for _, o := range stack.Outputs {
		outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}

	if pattern == "" {
		pattern = defaultPattern
	}
	return StackConfig{
		StackName: stackName,
		Region:    region,
		Account:   account,
		Pattern:   pattern,
		Outputs:   outputs,
	}, nil
}

// parseStackARN extracts region and account from
// arn:aws:cloudformation:REGION:ACCOUNT:stack/NAME/ID.
func parseStackARN(arn string) (region, account string, err error) {
	parts := strings.Split(arn, ":")
	if len(parts) < 5 || parts[3] == "" || parts[4] == "" {
		return "", "", fmt.Errorf("stackcfg: malformed stack arn %q", arn)
	}
	return parts[3], parts[4], nil
}
