package domain

// FeedbackType is the enum-constrained rating on an agent response.
type FeedbackType string

const (
	FeedbackPositive FeedbackType = "positive"
	FeedbackNegative FeedbackType = "negative"
)

// FeedbackRecord is a write-once rating keyed by a generated id.
type FeedbackRecord struct {
	FeedbackID  string
	SessionID   string
	Message     string
	UserID      string
	Type        FeedbackType
	Comment     string
	TimestampMS int64
}
