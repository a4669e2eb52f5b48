package stackcfg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AWSExports is the frontend runtime configuration generated from stack
// outputs and written to aws-exports.json.
type AWSExports struct {
	Authority             string `json:"authority"`
	ClientID              string `json:"client_id"`
	RedirectURI           string `json:"redirect_uri"`
	PostLogoutRedirectURI string `json:"post_logout_redirect_uri"`
	ResponseType          string `json:"response_type"`
	Scope                 string `json:"scope"`
	AutomaticSilentRenew  bool   `json:"automaticSilentRenew"`
	AgentRuntimeArn       string `json:"agentRuntimeArn"`
	AWSRegion             string `json:"awsRegion"`
	FeedbackAPIURL        string `json:"feedbackApiUrl"`
	AgentPattern          string `json:"agentPattern"`
}

var requiredExportOutputs = []string{
	"CognitoClientId",
	"CognitoUserPoolId",
	"AmplifyUrl",
	"RuntimeArn",
	"FeedbackApiUrl",
}

// BuildExports assembles the frontend configuration, failing when any
// required stack output is absent.
func BuildExports(cfg StackConfig) (AWSExports, error) {
	var missing []string
	for _, key := range requiredExportOutputs {
		if cfg.Outputs[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return AWSExports{}, fmt.Errorf("stackcfg: missing required stack outputs: %s", strings.Join(missing, ", "))
	}

	return AWSExports{
		Authority:             fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", cfg.Region, cfg.Outputs["CognitoUserPoolId"]),
		ClientID:              cfg.Outputs["CognitoClientId"],
		RedirectURI:           cfg.Outputs["AmplifyUrl"],
		PostLogoutRedirectURI: cfg.Outputs["AmplifyUrl"],
		ResponseType:          "code",
		Scope:                 "email openid profile",
		AutomaticSilentRenew:  true,
		AgentRuntimeArn:       cfg.Outputs["RuntimeArn"],
		AWSRegion:             cfg.Region,
		FeedbackAPIURL:        cfg.Outputs["FeedbackApiUrl"],
		AgentPattern:          cfg.Pattern,
	}, nil
}

// MarshalExports renders the exports file content.
func MarshalExports(exports AWSExports) ([]byte, error) {
	raw, err := json.MarshalIndent(exports, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("stackcfg: marshal exports: %w", err)
	}
	return append(raw, '\n'), nil
}
