package cognito

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// idpAPI is the minimal Cognito IDP interface required by UserAuth.
type idpAPI interface {
	InitiateAuth(ctx context.Context, in *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
}

// UserAuth authenticates a user-pool user with username/password. The CLI
// harness uses it to obtain id tokens for the feedback API authorizer.
type UserAuth struct {
	api idpAPI
}

// Session holds the tokens from a successful user authentication. The id
// token is for API Gateway user-pool authorizers, the access token for the
// runtime JWT authorizer.
type Session struct {
	AccessToken string
	IDToken     string
	UserID      string
}

func NewUserAuth(api idpAPI) (*UserAuth, error) {
	if api == nil {
		return nil, errors.New("cognito: idp api must not be nil")
	}
	return &UserAuth{api: api}, nil
}

// Authenticate runs USER_PASSWORD_AUTH and decodes the user id (sub claim)
// from the returned id token.
func (u *UserAuth) Authenticate(ctx context.Context, clientID, username, password string) (Session, error) {
	if strings.TrimSpace(clientID) == "" {
		return Session{}, errors.New("cognito: client id is required")
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return Session{}, errors.New("cognito: username and password are required")
	}

	out, err := u.api.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: &clientID,
		AuthParameters: map[string]string{
			"USERNAME": username,
			"PASSWORD": password,
		},
	})
	if err != nil {
		return Session{}, fmt.Errorf("cognito: initiate auth: %w", err)
	}
	if out == nil || out.AuthenticationResult == nil ||
		out.AuthenticationResult.AccessToken == nil || out.AuthenticationResult.IdToken == nil {
		return Session{}, errors.New("cognito: authentication result missing tokens")
	}

	idToken := *out.AuthenticationResult.IdToken
	sub, err := subjectClaim(idToken)
	if err != nil {
		return Session{}, err
	}

	return Session{
		AccessToken: *out.AuthenticationResult.AccessToken,
		IDToken:     idToken,
		UserID:      sub,
	}, nil
}

// subjectClaim extracts the sub claim from a JWT payload without verifying
// the signature; the token was just issued by the provider over TLS.
func subjectClaim(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", errors.New("cognito: malformed id token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("cognito: decode id token payload: %w", err)
	}
	var claims struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("cognito: parse id token claims: %w", err)
	}
	if claims.Sub == "" {
		return "", errors.New("cognito: id token missing sub claim")
	}
	return claims.Sub, nil
}
