package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agent-gateway/internal/domain"
)

type fakeFeedbackStore struct {
	saved []domain.FeedbackRecord
	err   error
}

func (f *fakeFeedbackStore) SaveFeedback(_ context.Context, record domain.FeedbackRecord) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, record)
	return nil
}

func validFeedbackInput() FeedbackInput {
	return FeedbackInput{
		SessionID:    "session-1",
		Message:      "the agent reply",
		FeedbackType: "positive",
		UserID:       "user-1",
	}
}

func newFeedbackServiceForTest(t *testing.T, store *fakeFeedbackStore) *FeedbackService {
	t.Helper()
	s, err := NewFeedbackService(store)
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return s
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, code, ue.Code)
}

func TestSubmit_HappyPath(t *testing.T) {
	prev := newUUID
	newUUID = func() string { return "fb-fixed" }
	t.Cleanup(func() { newUUID = prev })

	store := &fakeFeedbackStore{}
	s := newFeedbackServiceForTest(t, store)

	id, err := s.Submit(context.Background(), validFeedbackInput())
	require.NoError(t, err)
	require.Equal(t, "fb-fixed", id)

	require.Len(t, store.saved, 1)
	record := store.saved[0]
	require.Equal(t, "session-1", record.SessionID)
	require.Equal(t, domain.FeedbackPositive, record.Type)
	require.Equal(t, "user-1", record.UserID)
	require.Equal(t, int64(1700000000123), record.TimestampMS)
	require.Empty(t, record.Comment)
}

func TestSubmit_MissingRequiredFields(t *testing.T) {
	s := newFeedbackServiceForTest(t, &fakeFeedbackStore{})

	cases := map[string]func(*FeedbackInput){
		"sessionId":    func(in *FeedbackInput) { in.SessionID = "" },
		"message":      func(in *FeedbackInput) { in.Message = "" },
		"feedbackType": func(in *FeedbackInput) { in.FeedbackType = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validFeedbackInput()
			mutate(&in)
			_, err := s.Submit(context.Background(), in)
			requireCode(t, err, ErrorInvalidInput)
			require.Contains(t, err.Error(), name)
		})
	}
}

func TestSubmit_RejectsUnknownFeedbackType(t *testing.T) {
	s := newFeedbackServiceForTest(t, &fakeFeedbackStore{})

	in := validFeedbackInput()
	in.FeedbackType = "neutral"
	_, err := s.Submit(context.Background(), in)
	requireCode(t, err, ErrorInvalidInput)
}

func TestSubmit_ValidatesSessionID(t *testing.T) {
	s := newFeedbackServiceForTest(t, &fakeFeedbackStore{})

	in := validFeedbackInput()
	in.SessionID = strings.Repeat("a", 101)
	_, err := s.Submit(context.Background(), in)
	requireCode(t, err, ErrorInvalidInput)

	in = validFeedbackInput()
	in.SessionID = "bad session!"
	_, err = s.Submit(context.Background(), in)
	requireCode(t, err, ErrorInvalidInput)

	in = validFeedbackInput()
	in.SessionID = "ok-session_01"
	_, err = s.Submit(context.Background(), in)
	require.NoError(t, err)
}

func TestSubmit_TruncatesLongText(t *testing.T) {
	store := &fakeFeedbackStore{}
	s := newFeedbackServiceForTest(t, store)

	in := validFeedbackInput()
	in.Message = strings.Repeat("m", 6000)
	in.Comment = strings.Repeat("c", 5001)

	_, err := s.Submit(context.Background(), in)
	require.NoError(t, err)

	record := store.saved[0]
	require.Len(t, record.Message, 5000)
	require.Len(t, record.Comment, 5000)
}

func TestSubmit_MissingIdentityIsUnauthorized(t *testing.T) {
	s := newFeedbackServiceForTest(t, &fakeFeedbackStore{})

	in := validFeedbackInput()
	in.UserID = ""
	_, err := s.Submit(context.Background(), in)
	requireCode(t, err, ErrorUnauthorized)
}

func TestSubmit_InvalidBodyWinsOverMissingIdentity(t *testing.T) {
	s := newFeedbackServiceForTest(t, &fakeFeedbackStore{})

	in := validFeedbackInput()
	in.UserID = ""
	in.FeedbackType = ""
	_, err := s.Submit(context.Background(), in)
	requireCode(t, err, ErrorInvalidInput)
}

func TestSubmit_StoreFailure(t *testing.T) {
	s := newFeedbackServiceForTest(t, &fakeFeedbackStore{err: errors.New("throttled")})

	_, err := s.Submit(context.Background(), validFeedbackInput())
	requireCode(t, err, ErrorInternal)
}
