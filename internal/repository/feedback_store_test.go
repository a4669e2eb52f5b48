package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"agent-gateway/internal/domain"
)

type fakeDynamo struct {
	putErr       error
	lastPutInput *dynamodb.PutItemInput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func mustNewStore(t *testing.T, db *fakeDynamo) *FeedbackStore {
	t.Helper()
	s, err := NewFeedbackStore(db, "feedback-table")
	require.NoError(t, err)
	return s
}

func strAttr(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	v, ok := item[key].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %q missing or not a string", key)
	return v.Value
}

func TestNewFeedbackStore_ValidatesArguments(t *testing.T) {
	_, err := NewFeedbackStore(nil, "feedback-table")
	require.Error(t, err)

	_, err = NewFeedbackStore(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestSaveFeedback_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)

	err := s.SaveFeedback(context.Background(), domain.FeedbackRecord{
		FeedbackID:  "fb-123",
		SessionID:   "session-1",
		Message:     "the agent reply",
		UserID:      "user-1",
		Type:        domain.FeedbackPositive,
		Comment:     "very helpful",
		TimestampMS: 1700000000123,
	})
	require.NoError(t, err)

	in := db.lastPutInput
	require.Equal(t, "feedback-table", aws.ToString(in.TableName))
	require.Equal(t, "fb-123", strAttr(t, in.Item, "feedbackId"))
	require.Equal(t, "session-1", strAttr(t, in.Item, "sessionId"))
	require.Equal(t, "positive", strAttr(t, in.Item, "feedbackType"))
	require.Equal(t, "very helpful", strAttr(t, in.Item, "comment"))

	ts, ok := in.Item["timestamp"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	require.Equal(t, "1700000000123", ts.Value)
}

func TestSaveFeedback_OmitsEmptyComment(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)

	err := s.SaveFeedback(context.Background(), domain.FeedbackRecord{
		FeedbackID:  "fb-123",
		SessionID:   "session-1",
		Message:     "the agent reply",
		UserID:      "user-1",
		Type:        domain.FeedbackNegative,
		TimestampMS: 1700000000123,
	})
	require.NoError(t, err)
	require.NotContains(t, db.lastPutInput.Item, "comment")
}

func TestSaveFeedback_RequiresID(t *testing.T) {
	s := mustNewStore(t, &fakeDynamo{})
	err := s.SaveFeedback(context.Background(), domain.FeedbackRecord{})
	require.Error(t, err)
}

func TestSaveFeedback_PropagatesError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("throttled")}
	s := mustNewStore(t, db)

	err := s.SaveFeedback(context.Background(), domain.FeedbackRecord{FeedbackID: "fb-1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "SaveFeedback")
}
