package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"agent-gateway/internal/domain"
)

const (
	maxSessionIDLen = 100
	maxTextLen      = 5000
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)

// FeedbackWriter persists one feedback record.
type FeedbackWriter interface {
	SaveFeedback(ctx context.Context, record domain.FeedbackRecord) error
}

// FeedbackService validates and stores user feedback on agent responses.
type FeedbackService struct {
	store FeedbackWriter
	now   func() time.Time
}

type FeedbackInput struct {
	SessionID    string
	Message      string
	FeedbackType string
	Comment      string
	UserID       string
}

func NewFeedbackService(store FeedbackWriter) (*FeedbackService, error) {
	if store == nil {
		return nil, errors.New("usecase: feedback store must not be nil")
	}
	return &FeedbackService{store: store, now: time.Now}, nil
}

// Submit validates the input, truncates free-text fields, and writes a record
// keyed by a freshly generated id, which is returned to the caller.
func (s *FeedbackService) Submit(ctx context.Context, in FeedbackInput) (string, error) {
	if in.SessionID == "" {
		return "", newError(ErrorInvalidInput, "sessionId is required", nil)
	}
	if in.Message == "" {
		return "", newError(ErrorInvalidInput, "message is required", nil)
	}
	if in.FeedbackType == "" {
		return "", newError(ErrorInvalidInput, "feedbackType is required", nil)
	}

	feedbackType := domain.FeedbackType(in.FeedbackType)
	if feedbackType != domain.FeedbackPositive && feedbackType != domain.FeedbackNegative {
		return "", newError(ErrorInvalidInput, "feedbackType must be positive or negative", nil)
	}
	if len(in.SessionID) > maxSessionIDLen {
		return "", newError(ErrorInvalidInput, "sessionId exceeds maximum length", nil)
	}
	if !sessionIDPattern.MatchString(in.SessionID) {
		return "", newError(ErrorInvalidInput, "sessionId contains invalid characters", nil)
	}

	// Body validation takes precedence over the identity check.
	if strings.TrimSpace(in.UserID) == "" {
		return "", newError(ErrorUnauthorized, "missing_identity_claims", nil)
	}

	record := domain.FeedbackRecord{
		FeedbackID:  newUUID(),
		SessionID:   in.SessionID,
		Message:     truncate(in.Message, maxTextLen),
		UserID:      in.UserID,
		Type:        feedbackType,
		Comment:     truncate(in.Comment, maxTextLen),
		TimestampMS: s.now().UnixMilli(),
	}

	if err := s.store.SaveFeedback(ctx, record); err != nil {
		return "", newError(ErrorInternal, "feedback_store_error", err)
	}
	return record.FeedbackID, nil
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

var newUUID = func() string {
	return uuid.NewString()
}
