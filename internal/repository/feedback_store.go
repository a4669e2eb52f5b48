// Package repository persists feedback records to a DynamoDB table.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"agent-gateway/internal/domain"
)

// dynamodbAPI is the minimal DynamoDB interface required by FeedbackStore.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// FeedbackWriter is the write operation consumed by the feedback service.
type FeedbackWriter interface {
	SaveFeedback(ctx context.Context, record domain.FeedbackRecord) error
}

// FeedbackStore writes feedback records keyed by their generated id.
type FeedbackStore struct {
	api       dynamodbAPI
	tableName string
}

// NewFeedbackStore creates a new FeedbackStore.
func NewFeedbackStore(api dynamodbAPI, tableName string) (*FeedbackStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &FeedbackStore{api: api, tableName: tableName}, nil
}

// SaveFeedback persists one write-once record. The comment attribute is
// written only when a comment is present.
func (s *FeedbackStore) SaveFeedback(ctx context.Context, record domain.FeedbackRecord) error {
	if record.FeedbackID == "" {
		return errors.New("repository: SaveFeedback: feedback id is required")
	}

	item := map[string]types.AttributeValue{
		"feedbackId":   &types.AttributeValueMemberS{Value: record.FeedbackID},
		"sessionId":    &types.AttributeValueMemberS{Value: record.SessionID},
		"message":      &types.AttributeValueMemberS{Value: record.Message},
		"userId":       &types.AttributeValueMemberS{Value: record.UserID},
		"feedbackType": &types.AttributeValueMemberS{Value: string(record.Type)},
		"timestamp":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", record.TimestampMS)},
	}
	if record.Comment != "" {
		item["comment"] = &types.AttributeValueMemberS{Value: record.Comment}
	}

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: SaveFeedback: %w", err)
	}
	return nil
}
