package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"agent-gateway/internal/usecase"
)

type stubFeedback struct {
	id  string
	err error
	in  usecase.FeedbackInput
}

func (s *stubFeedback) Submit(_ context.Context, in usecase.FeedbackInput) (string, error) {
	s.in = in
	return s.id, s.err
}

func makeFeedbackEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/feedback",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: map[string]interface{}{
				"claims": map[string]interface{}{"sub": "user-1"},
			},
		},
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewFeedbackHandler_ValidatesDependency(t *testing.T) {
	_, err := NewFeedbackHandler(nil)
	require.Error(t, err)
}

func TestFeedbackHandle_HappyPath(t *testing.T) {
	svc := &stubFeedback{id: "fb-1"}
	h, err := NewFeedbackHandler(svc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeFeedbackEvent(
		`{"sessionId":"s1","message":"hi","feedbackType":"positive"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	out := parseBody[feedbackResponse](t, resp.Body)
	require.True(t, out.Success)
	require.Equal(t, "fb-1", out.FeedbackID)

	require.Equal(t, "user-1", svc.in.UserID)
	require.Equal(t, "s1", svc.in.SessionID)
}

func TestFeedbackHandle_OptionsIsCORSOnly(t *testing.T) {
	svc := &stubFeedback{}
	h, err := NewFeedbackHandler(svc)
	require.NoError(t, err)

	event := makeFeedbackEvent("")
	event.HTTPMethod = http.MethodOptions

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Body)
	require.Equal(t, "POST,OPTIONS", resp.Headers["Access-Control-Allow-Methods"])
}

func TestFeedbackHandle_InvalidJSON(t *testing.T) {
	h, err := NewFeedbackHandler(&stubFeedback{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeFeedbackEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
}

func TestFeedbackHandle_MissingClaims(t *testing.T) {
	svc := &stubFeedback{err: &usecase.Error{Code: usecase.ErrorUnauthorized, Reason: "missing_identity_claims"}}
	h, err := NewFeedbackHandler(svc)
	require.NoError(t, err)

	event := makeFeedbackEvent(`{"sessionId":"s1","message":"hi","feedbackType":"positive"}`)
	event.RequestContext.Authorizer = nil

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, svc.in.UserID)
}

func TestFeedbackHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "validation",
			err:     &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "feedbackType is required"},
			status:  http.StatusBadRequest,
			code:    string(usecase.ErrorInvalidInput),
			message: "feedbackType is required",
		},
		{
			name:    "storage failure stays generic",
			err:     &usecase.Error{Code: usecase.ErrorInternal, Reason: "feedback_store_error"},
			status:  http.StatusInternalServerError,
			code:    string(usecase.ErrorInternal),
			message: "internal server error",
		},
		{
			name:    "unexpected error stays generic",
			err:     context.DeadlineExceeded,
			status:  http.StatusInternalServerError,
			code:    string(usecase.ErrorInternal),
			message: "internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := NewFeedbackHandler(&stubFeedback{err: tc.err})
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), makeFeedbackEvent(
				`{"sessionId":"s1","message":"hi","feedbackType":"positive"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, tc.message, out.Message)
		})
	}
}

func TestFeedbackHandle_UsesProvidedCorrelationID(t *testing.T) {
	h, err := NewFeedbackHandler(&stubFeedback{id: "fb-1"})
	require.NoError(t, err)

	event := makeFeedbackEvent(`{"sessionId":"s1","message":"hi","feedbackType":"positive"}`)
	event.Headers["x-correlation-id"] = "corr-123"

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
