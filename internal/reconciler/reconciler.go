// Package reconciler implements the custom-resource lifecycle handler for the
// managed tool gateway: it creates, updates, and deletes the gateway and its
// lambda target on stack events, retries around the control plane's transient
// "still transitioning" rejections, publishes the resulting identifiers to the
// parameter store, and reports the outcome through a single callback.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/cfn"

	"agent-gateway/internal/domain"
	"agent-gateway/internal/integrations/paramstore"
)

const (
	pollInterval      = 10 * time.Second
	readyTimeout      = 120 * time.Second
	maxTargetAttempts = 5
	deletePause       = 5 * time.Second
)

// ControlPlane is the gateway control-plane surface the reconciler drives.
type ControlPlane interface {
	ListGateways(ctx context.Context) ([]domain.GatewaySummary, error)
	GetGateway(ctx context.Context, gatewayID string) (domain.Gateway, error)
	CreateGateway(ctx context.Context, spec domain.GatewaySpec) (domain.Gateway, error)
	DeleteGateway(ctx context.Context, gatewayID string) error
	ListTargets(ctx context.Context, gatewayID string) ([]domain.Target, error)
	CreateTarget(ctx context.Context, gatewayID string, spec domain.TargetSpec) (string, error)
	UpdateTarget(ctx context.Context, gatewayID, targetID string, spec domain.TargetSpec) error
	DeleteTarget(ctx context.Context, gatewayID, targetID string) error
}

// gatewayNotReady is satisfied by control-plane errors that mean the gateway
// is still transitioning and the operation can be retried.
type gatewayNotReady interface {
	GatewayNotReady() bool
}

func isNotReady(err error) bool {
	var nr gatewayNotReady
	return errors.As(err, &nr) && nr.GatewayNotReady()
}

// Properties is the resource configuration carried on a lifecycle event.
type Properties struct {
	GatewayName         string
	GatewayRoleArn      string
	LambdaArn           string
	CognitoClientID     string
	CognitoDiscoveryURL string
	SSMPrefix           string
	Tools               []domain.ToolDefinition
}

// Reconciler applies lifecycle events to the managed gateway.
type Reconciler struct {
	control ControlPlane
	params  paramstore.Putter
	logger  *slog.Logger
	sleep   func(time.Duration)
}

func New(control ControlPlane, params paramstore.Putter, logger *slog.Logger) (*Reconciler, error) {
	if control == nil {
		return nil, errors.New("reconciler: control must not be nil")
	}
	if params == nil {
		return nil, errors.New("reconciler: params must not be nil")
	}
	if logger == nil {
		return nil, errors.New("reconciler: logger must not be nil")
	}
	return &Reconciler{
		control: control,
		params:  params,
		logger:  logger,
		sleep:   time.Sleep,
	}, nil
}

// Reconcile applies one lifecycle event and returns the physical resource id
// together with the data payload for the callback. The error, if any, is the
// first fatal failure; Delete never returns one.
func (r *Reconciler) Reconcile(ctx context.Context, event cfn.Event) (string, map[string]string, error) {
	switch event.RequestType {
	case cfn.RequestCreate:
		props, err := parseProperties(event.ResourceProperties)
		if err != nil {
			return fallbackPhysicalID(event), nil, err
		}
		return r.create(ctx, props)

	case cfn.RequestUpdate:
		props, err := parseProperties(event.ResourceProperties)
		if err != nil {
			return fallbackPhysicalID(event), nil, err
		}
		oldName, _ := event.OldResourceProperties["GatewayName"].(string)
		if oldName != "" && oldName != props.GatewayName {
			// Renames are full replacements: tear down the old gateway and
			// build a new one rather than mutating in place.
			r.logger.Info("gateway name changed, replacing",
				"old_name", oldName, "new_name", props.GatewayName)
			r.deleteGateway(ctx, event.PhysicalResourceID)
			return r.create(ctx, props)
		}
		return r.update(ctx, event.PhysicalResourceID, props)

	case cfn.RequestDelete:
		r.deleteGateway(ctx, event.PhysicalResourceID)
		return fallbackPhysicalID(event), nil, nil

	default:
		return fallbackPhysicalID(event), nil, fmt.Errorf("reconciler: unknown request type %q", event.RequestType)
	}
}

// Handle runs Reconcile and always sends exactly one callback, success or
// failure, before returning.
func (r *Reconciler) Handle(ctx context.Context, event cfn.Event, responder *Responder) error {
	physicalID, data, err := r.Reconcile(ctx, event)

	resp := Response{
		Status:             StatusSuccess,
		Reason:             "reconciliation complete",
		PhysicalResourceId: physicalID,
		Data:               data,
	}
	if err != nil {
		r.logger.Error("reconciliation failed", "request_type", event.RequestType, "error", err)
		resp.Status = StatusFailed
		resp.Reason = err.Error()
	}
	return responder.Send(ctx, event, resp)
}

func (r *Reconciler) create(ctx context.Context, props Properties) (string, map[string]string, error) {
	gw, err := r.findGatewayByName(ctx, props.GatewayName)
	if err != nil {
		return "", nil, err
	}
	if gw.ID != "" {
		r.logger.Info("gateway already exists, reconciling target only",
			"gateway_id", gw.ID, "name", gw.Name)
	} else {
		created, err := r.control.CreateGateway(ctx, domain.GatewaySpec{
			Name:            props.GatewayName,
			RoleArn:         props.GatewayRoleArn,
			AllowedClientID: props.CognitoClientID,
			DiscoveryURL:    props.CognitoDiscoveryURL,
		})
		if err != nil {
			return "", nil, err
		}
		r.logger.Info("gateway created, waiting for readiness", "gateway_id", created.ID)
		gw, err = r.waitUntilReady(ctx, created.ID)
		if err != nil {
			return created.ID, nil, err
		}
	}

	targetID, err := r.reconcileTarget(ctx, gw.ID, props)
	if err != nil {
		return gw.ID, nil, err
	}

	data, err := r.publish(ctx, props.SSMPrefix, gw, targetID)
	if err != nil {
		return gw.ID, nil, err
	}
	return gw.ID, data, nil
}

func (r *Reconciler) update(ctx context.Context, physicalID string, props Properties) (string, map[string]string, error) {
	gw, err := r.findGatewayByName(ctx, props.GatewayName)
	if err != nil {
		return physicalID, nil, err
	}
	if gw.ID == "" {
		// The gateway disappeared out of band; rebuild it from scratch.
		r.logger.Warn("gateway missing during update, recreating", "name", props.GatewayName)
		return r.create(ctx, props)
	}

	targetID, err := r.reconcileTarget(ctx, gw.ID, props)
	if err != nil {
		return gw.ID, nil, err
	}

	data, err := r.publish(ctx, props.SSMPrefix, gw, targetID)
	if err != nil {
		return gw.ID, nil, err
	}
	return gw.ID, data, nil
}

// deleteGateway tears down the gateway and its targets best-effort. Failures
// are logged and swallowed so stack teardown is never blocked.
func (r *Reconciler) deleteGateway(ctx context.Context, gatewayID string) {
	if gatewayID == "" {
		r.logger.Warn("delete requested without a physical resource id, nothing to do")
		return
	}

	targets, err := r.control.ListTargets(ctx, gatewayID)
	if err != nil {
		r.logger.Error("listing targets for deletion failed", "gateway_id", gatewayID, "error", err)
	}
	for i, target := range targets {
		if i > 0 {
			// Target deletion is asynchronous; give each one time to settle
			// before issuing the next.
			r.sleep(deletePause)
		}
		if err := r.control.DeleteTarget(ctx, gatewayID, target.ID); err != nil {
			r.logger.Error("target deletion failed", "gateway_id", gatewayID, "target_id", target.ID, "error", err)
		} else {
			r.logger.Info("target deleted", "gateway_id", gatewayID, "target_id", target.ID)
		}
	}

	if len(targets) > 0 {
		r.sleep(deletePause)
	}
	if err := r.control.DeleteGateway(ctx, gatewayID); err != nil {
		r.logger.Error("gateway deletion failed", "gateway_id", gatewayID, "error", err)
		return
	}
	r.logger.Info("gateway deleted", "gateway_id", gatewayID)
}

// reconcileTarget updates the first existing target in place or creates one
// with bounded retry. Extra targets are not managed; they are logged so the
// drift is visible.
func (r *Reconciler) reconcileTarget(ctx context.Context, gatewayID string, props Properties) (string, error) {
	spec := domain.TargetSpec{
		Name:      props.GatewayName + "-target",
		LambdaArn: props.LambdaArn,
		Tools:     props.Tools,
	}

	targets, err := r.control.ListTargets(ctx, gatewayID)
	if err != nil {
		return "", err
	}
	if len(targets) > 0 {
		if len(targets) > 1 {
			r.logger.Warn("multiple targets attached, updating the first only",
				"gateway_id", gatewayID, "target_count", len(targets))
		}
		target := targets[0]
		if err := r.control.UpdateTarget(ctx, gatewayID, target.ID, spec); err != nil {
			return "", err
		}
		r.logger.Info("target updated", "gateway_id", gatewayID, "target_id", target.ID)
		return target.ID, nil
	}

	return r.createTargetWithRetry(ctx, gatewayID, spec)
}

// createTargetWithRetry retries only transient "gateway still transitioning"
// rejections, backing off 1,2,4,8,16 seconds across at most five attempts.
func (r *Reconciler) createTargetWithRetry(ctx context.Context, gatewayID string, spec domain.TargetSpec) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxTargetAttempts; attempt++ {
		targetID, err := r.control.CreateTarget(ctx, gatewayID, spec)
		if err == nil {
			r.logger.Info("target created", "gateway_id", gatewayID, "target_id", targetID)
			return targetID, nil
		}
		if !isNotReady(err) {
			return "", err
		}
		lastErr = err
		delay := time.Duration(1<<attempt) * time.Second
		r.logger.Info("gateway not ready for target creation, retrying",
			"gateway_id", gatewayID, "attempt", attempt+1, "delay", delay)
		r.sleep(delay)
	}
	return "", fmt.Errorf("reconciler: target creation exhausted %d attempts: %w", maxTargetAttempts, lastErr)
}

// waitUntilReady polls gateway status until READY, a terminal failure state,
// or the readiness deadline.
func (r *Reconciler) waitUntilReady(ctx context.Context, gatewayID string) (domain.Gateway, error) {
	deadline := readyTimeout
	for waited := time.Duration(0); ; waited += pollInterval {
		gw, err := r.control.GetGateway(ctx, gatewayID)
		if err != nil {
			return domain.Gateway{}, err
		}
		switch gw.Status {
		case domain.GatewayStatusReady:
			return gw, nil
		case domain.GatewayStatusFailed, domain.GatewayStatusDeleting:
			return domain.Gateway{}, fmt.Errorf("reconciler: gateway %s entered terminal status %s", gatewayID, gw.Status)
		}
		if waited+pollInterval > deadline {
			return domain.Gateway{}, fmt.Errorf("reconciler: gateway %s not ready after %s (status %s)", gatewayID, deadline, gw.Status)
		}
		r.sleep(pollInterval)
	}
}

func (r *Reconciler) publish(ctx context.Context, prefix string, gw domain.Gateway, targetID string) (map[string]string, error) {
	entries := map[string]string{
		prefix + "/gateway_url": gw.URL,
		prefix + "/gateway_id":  gw.ID,
		prefix + "/target_id":   targetID,
	}
	for name, value := range entries {
		if err := r.params.PutParameter(ctx, name, value); err != nil {
			return nil, err
		}
	}
	return map[string]string{
		"GatewayId":  gw.ID,
		"GatewayUrl": gw.URL,
		"TargetId":   targetID,
	}, nil
}

func (r *Reconciler) findGatewayByName(ctx context.Context, name string) (domain.Gateway, error) {
	summaries, err := r.control.ListGateways(ctx)
	if err != nil {
		return domain.Gateway{}, err
	}
	for _, s := range summaries {
		if s.Name == name {
			return r.control.GetGateway(ctx, s.ID)
		}
	}
	return domain.Gateway{}, nil
}

func parseProperties(raw map[string]interface{}) (Properties, error) {
	props := Properties{
		GatewayName:         stringProp(raw, "GatewayName"),
		GatewayRoleArn:      stringProp(raw, "GatewayRoleArn"),
		LambdaArn:           stringProp(raw, "LambdaArn"),
		CognitoClientID:     stringProp(raw, "CognitoClientId"),
		CognitoDiscoveryURL: stringProp(raw, "CognitoDiscoveryUrl"),
		SSMPrefix:           strings.TrimSuffix(stringProp(raw, "SsmPrefix"), "/"),
	}
	for _, field := range []struct{ name, value string }{
		{"GatewayName", props.GatewayName},
		{"GatewayRoleArn", props.GatewayRoleArn},
		{"LambdaArn", props.LambdaArn},
		{"CognitoClientId", props.CognitoClientID},
		{"CognitoDiscoveryUrl", props.CognitoDiscoveryURL},
		{"SsmPrefix", props.SSMPrefix},
	} {
		if field.value == "" {
			return Properties{}, fmt.Errorf("reconciler: resource property %s is required", field.name)
		}
	}

	apiSpec := stringProp(raw, "ApiSpec")
	if apiSpec == "" {
		return Properties{}, errors.New("reconciler: resource property ApiSpec is required")
	}
	if err := json.Unmarshal([]byte(apiSpec), &props.Tools); err != nil {
		return Properties{}, fmt.Errorf("reconciler: parse ApiSpec: %w", err)
	}
	if len(props.Tools) == 0 {
		return Properties{}, errors.New("reconciler: ApiSpec must define at least one tool")
	}
	return props, nil
}

func stringProp(raw map[string]interface{}, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

func fallbackPhysicalID(event cfn.Event) string {
	if event.PhysicalResourceID != "" {
		return event.PhysicalResourceID
	}
	return event.LogicalResourceID
}
