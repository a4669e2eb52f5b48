package cognito

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Getter resolves provider configuration from the parameter store.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx responses from the identity provider with
// status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("cognito: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// tokenResponse is the minimal shape of the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Exchanger performs the OAuth2 client-credentials exchange used for
// machine-to-machine gateway access. Tokens are short-lived and fetched fresh
// per invocation; no refresh tracking happens here.
type Exchanger struct {
	getter     Getter
	stackName  string
	httpClient *http.Client
}

type Option func(*Exchanger)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(e *Exchanger) {
		e.httpClient = httpClient
	}
}

// NewExchanger creates an Exchanger that resolves the provider domain, client
// id, and client secret from the parameter store under /{stack}/.
func NewExchanger(g Getter, stackName string, opts ...Option) (*Exchanger, error) {
	if g == nil {
		return nil, errors.New("cognito: paramstore getter must not be nil")
	}
	stackName = strings.TrimSpace(stackName)
	if stackName == "" {
		return nil, errors.New("cognito: stack name must not be empty")
	}
	e := &Exchanger{
		getter:     g,
		stackName:  stackName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// AccessToken resolves provider credentials and exchanges them for a bearer
// token. The caller decides whether to retry on failure.
func (e *Exchanger) AccessToken(ctx context.Context) (string, error) {
	prefix := "/" + e.stackName

	domain, err := e.getter.GetParameter(ctx, prefix+"/cognito_provider")
	if err != nil {
		return "", fmt.Errorf("cognito: resolve provider domain: %w", err)
	}
	clientID, err := e.getter.GetParameter(ctx, prefix+"/machine_client_id")
	if err != nil {
		return "", fmt.Errorf("cognito: resolve client id: %w", err)
	}
	clientSecret, err := e.getter.GetParameter(ctx, prefix+"/machine_client_secret")
	if err != nil {
		return "", fmt.Errorf("cognito: resolve client secret: %w", err)
	}

	return e.exchange(ctx, domain, clientID, clientSecret)
}

func (e *Exchanger) exchange(ctx context.Context, domain, clientID, clientSecret string) (string, error) {
	tokenURL := tokenEndpoint(domain)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", fmt.Sprintf("%s-gateway/read %s-gateway/write", e.stackName, e.stackName))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("cognito: create token request: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := e.resolvedHTTPClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("cognito: token request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("cognito: read token response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", &HTTPStatusError{StatusCode: res.StatusCode, URL: tokenURL, Body: string(body)}
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("cognito: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("cognito: no access_token in token response")
	}
	return payload.AccessToken, nil
}

func (e *Exchanger) resolvedHTTPClient() *http.Client {
	if e.httpClient != nil {
		return e.httpClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// tokenEndpoint builds the OAuth2 token URL from a provider domain. A bare
// domain gets the https scheme; a full URL is used as-is.
func tokenEndpoint(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain + "/oauth2/token"
	}
	return "https://" + domain + "/oauth2/token"
}
