package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/cfn"
)

// Response statuses reported back to the orchestrator.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Response is the terminal one-shot notification sent to the pre-signed
// callback URL. Exactly one is sent per lifecycle event, on every exit path.
type Response struct {
	Status             string            `json:"Status"`
	Reason             string            `json:"Reason"`
	PhysicalResourceId string            `json:"PhysicalResourceId"`
	StackId            string            `json:"StackId"`
	RequestId          string            `json:"RequestId"`
	LogicalResourceId  string            `json:"LogicalResourceId"`
	Data               map[string]string `json:"Data,omitempty"`
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Responder delivers lifecycle responses over HTTP PUT.
type Responder struct {
	client httpDoer
}

func NewResponder(client httpDoer) (*Responder, error) {
	if client == nil {
		return nil, errors.New("reconciler: client must not be nil")
	}
	return &Responder{client: client}, nil
}

// Send PUTs the response to the event's callback URL. The pre-signed URL
// rejects requests carrying a content type, so the header is forced empty.
func (r *Responder) Send(ctx context.Context, event cfn.Event, resp Response) error {
	resp.StackId = event.StackID
	resp.RequestId = event.RequestID
	resp.LogicalResourceId = event.LogicalResourceID

	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("reconciler: marshal response: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, event.ResponseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reconciler: build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "")
	req.ContentLength = int64(len(body))

	httpResp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("reconciler: send callback: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("reconciler: callback returned status %d", httpResp.StatusCode)
	}
	return nil
}
