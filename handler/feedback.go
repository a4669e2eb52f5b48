// Package handler adapts transport events to the usecase layer: the feedback
// handler speaks API Gateway proxy events, the invoke handler serves the
// agent runtime's HTTP contract.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"agent-gateway/internal/usecase"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type,Authorization",
	"Access-Control-Allow-Methods": "POST,OPTIONS",
}

// FeedbackSubmitter is the usecase surface consumed by FeedbackHandler.
type FeedbackSubmitter interface {
	Submit(ctx context.Context, in usecase.FeedbackInput) (string, error)
}

type FeedbackHandler struct {
	svc FeedbackSubmitter
}

type feedbackRequest struct {
	SessionID    string `json:"sessionId"`
	Message      string `json:"message"`
	FeedbackType string `json:"feedbackType"`
	Comment      string `json:"comment,omitempty"`
}

type feedbackResponse struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedbackId"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewFeedbackHandler(svc FeedbackSubmitter) (*FeedbackHandler, error) {
	if svc == nil {
		return nil, errors.New("handler: feedback service must not be nil")
	}
	return &FeedbackHandler{svc: svc}, nil
}

// Handle processes one feedback API event. OPTIONS requests get a bare CORS
// response; POST requests are validated and persisted by the usecase.
func (h *FeedbackHandler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(event.Headers)

	if event.HTTPMethod == http.MethodOptions {
		return respond(http.StatusOK, correlationID, nil), nil
	}

	var req feedbackRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return respond(http.StatusBadRequest, correlationID, errorResponse{
			Error:   string(usecase.ErrorInvalidInput),
			Message: "request body must be valid JSON",
		}), nil
	}

	feedbackID, err := h.svc.Submit(ctx, usecase.FeedbackInput{
		SessionID:    req.SessionID,
		Message:      req.Message,
		FeedbackType: req.FeedbackType,
		Comment:      req.Comment,
		UserID:       subjectFromClaims(event.RequestContext.Authorizer),
	})
	if err != nil {
		status, body := mapError(err)
		return respond(status, correlationID, body), nil
	}

	return respond(http.StatusOK, correlationID, feedbackResponse{
		Success:    true,
		FeedbackID: feedbackID,
	}), nil
}

// mapError translates usecase errors into HTTP responses. Internal failures
// get a generic message so storage details never reach the caller.
func mapError(err error) (int, errorResponse) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return http.StatusInternalServerError, errorResponse{
			Error:   string(usecase.ErrorInternal),
			Message: "internal server error",
		}
	}

	switch ue.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, errorResponse{Error: string(ue.Code), Message: ue.Reason}
	case usecase.ErrorUnauthorized:
		return http.StatusUnauthorized, errorResponse{Error: string(ue.Code), Message: "unauthorized"}
	default:
		return http.StatusInternalServerError, errorResponse{
			Error:   string(usecase.ErrorInternal),
			Message: "internal server error",
		}
	}
}

// subjectFromClaims pulls the authenticated subject out of the authorizer
// context populated by the identity provider. Missing claims mean the request
// is unauthenticated.
func subjectFromClaims(authorizer map[string]interface{}) string {
	claims, ok := authorizer["claims"].(map[string]interface{})
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == "X-Correlation-Id" && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func respond(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":     "application/json",
		"X-Correlation-Id": correlationID,
	}
	for k, v := range corsHeaders {
		headers[k] = v
	}

	resp := events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			resp.StatusCode = http.StatusInternalServerError
			resp.Body = `{"error":"INTERNAL_ERROR","message":"internal server error"}`
			return resp
		}
		resp.Body = string(raw)
	}
	return resp
}
