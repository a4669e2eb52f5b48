// Package agentmemory persists conversation turns in the managed memory
// service. Events are append-only, scoped by actor and session, and ordered
// by timestamp; every read re-queries the service.
package agentmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore/types"

	"agent-gateway/internal/domain"
)

// memoryAPI is the minimal data-plane interface required by Client.
type memoryAPI interface {
	CreateEvent(ctx context.Context, in *bedrockagentcore.CreateEventInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.CreateEventOutput, error)
	ListEvents(ctx context.Context, in *bedrockagentcore.ListEventsInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.ListEventsOutput, error)
}

// Client reads and appends memory events for one memory resource.
type Client struct {
	api      memoryAPI
	memoryID string
	now      func() time.Time
}

func New(api memoryAPI, memoryID string) (*Client, error) {
	if api == nil {
		return nil, errors.New("agentmemory: api must not be nil")
	}
	if strings.TrimSpace(memoryID) == "" {
		return nil, errors.New("agentmemory: memory id must not be empty")
	}
	return &Client{api: api, memoryID: memoryID, now: time.Now}, nil
}

// AppendTurns writes one event holding the given role-tagged turns and
// returns the generated event id.
func (c *Client) AppendTurns(ctx context.Context, actorID, sessionID string, turns []domain.MemoryTurn) (string, error) {
	if actorID == "" || sessionID == "" {
		return "", errors.New("agentmemory: actor id and session id are required")
	}
	if len(turns) == 0 {
		return "", errors.New("agentmemory: at least one turn is required")
	}

	payload := make([]types.PayloadType, 0, len(turns))
	for _, turn := range turns {
		role, err := sdkRole(turn.Role)
		if err != nil {
			return "", err
		}
		payload = append(payload, &types.PayloadTypeMemberConversational{
			Value: types.Conversational{
				Role:    role,
				Content: &types.ContentMemberText{Value: turn.Text},
			},
		})
	}

	ts := c.now().UTC()
	out, err := c.api.CreateEvent(ctx, &bedrockagentcore.CreateEventInput{
		MemoryId:       aws.String(c.memoryID),
		ActorId:        aws.String(actorID),
		SessionId:      aws.String(sessionID),
		EventTimestamp: aws.Time(ts),
		Payload:        payload,
	})
	if err != nil {
		return "", fmt.Errorf("agentmemory: create event: %w", err)
	}
	if out == nil || out.Event == nil || out.Event.EventId == nil {
		return "", errors.New("agentmemory: create event returned no event id")
	}
	return *out.Event.EventId, nil
}

// SessionEvents lists up to limit events for an actor/session pair, following
// pagination tokens, ordered oldest first.
func (c *Client) SessionEvents(ctx context.Context, actorID, sessionID string, limit int) ([]domain.MemoryEvent, error) {
	if actorID == "" || sessionID == "" {
		return nil, errors.New("agentmemory: actor id and session id are required")
	}
	if limit <= 0 {
		limit = 100
	}

	var events []domain.MemoryEvent
	var nextToken *string
	for {
		out, err := c.api.ListEvents(ctx, &bedrockagentcore.ListEventsInput{
			MemoryId:   aws.String(c.memoryID),
			ActorId:    aws.String(actorID),
			SessionId:  aws.String(sessionID),
			MaxResults: aws.Int32(int32(min(limit-len(events), 100))),
			NextToken:  nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("agentmemory: list events: %w", err)
		}
		for _, ev := range out.Events {
			events = append(events, fromSDKEvent(ev))
		}
		if out.NextToken == nil || len(events) >= limit {
			break
		}
		nextToken = out.NextToken
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

func fromSDKEvent(ev types.Event) domain.MemoryEvent {
	out := domain.MemoryEvent{
		EventID:   aws.ToString(ev.EventId),
		ActorID:   aws.ToString(ev.ActorId),
		SessionID: aws.ToString(ev.SessionId),
	}
	if ev.EventTimestamp != nil {
		out.Timestamp = *ev.EventTimestamp
	}
	for _, p := range ev.Payload {
		conv, ok := p.(*types.PayloadTypeMemberConversational)
		if !ok {
			continue
		}
		turn := domain.MemoryTurn{Role: domain.Role(conv.Value.Role)}
		if text, ok := conv.Value.Content.(*types.ContentMemberText); ok {
			turn.Text = text.Value
		}
		out.Turns = append(out.Turns, turn)
	}
	return out
}

func sdkRole(role domain.Role) (types.Role, error) {
	switch role {
	case domain.RoleUser:
		return types.RoleUser, nil
	case domain.RoleAssistant:
		return types.RoleAssistant, nil
	case domain.RoleTool:
		return types.RoleTool, nil
	default:
		return "", fmt.Errorf("agentmemory: unsupported role %q", role)
	}
}
