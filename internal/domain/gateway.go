package domain

// GatewayStatus is the control-plane lifecycle state of a gateway.
type GatewayStatus string

const (
	GatewayStatusCreating GatewayStatus = "CREATING"
	GatewayStatusUpdating GatewayStatus = "UPDATING"
	GatewayStatusReady    GatewayStatus = "READY"
	GatewayStatusFailed   GatewayStatus = "FAILED"
	GatewayStatusDeleting GatewayStatus = "DELETING"
)

// Gateway is the managed resource that authenticates callers and routes tool
// invocations to backing Lambda targets. Status is polled, never mutated here.
type Gateway struct {
	ID     string
	Name   string
	URL    string
	Status GatewayStatus
}

// GatewaySummary is the list-call projection of a gateway.
type GatewaySummary struct {
	ID     string
	Name   string
	Status GatewayStatus
}

// GatewaySpec describes a gateway to be created.
type GatewaySpec struct {
	Name            string
	Description     string
	RoleArn         string
	AllowedClientID string
	DiscoveryURL    string
}

// Target binds a gateway to one backing Lambda and its inline tool schema.
type Target struct {
	ID   string
	Name string
}

// TargetSpec describes a Lambda target to be created or updated in place.
type TargetSpec struct {
	Name        string
	Description string
	LambdaArn   string
	Tools       []ToolDefinition
}

// ToolDefinition is one entry of a target's inline tool schema. The JSON tags
// match the api-spec document passed through the custom resource properties.
type ToolDefinition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	InputSchema *Schema `json:"inputSchema,omitempty"`
}

// Schema is a minimal JSON-schema subset accepted by the gateway control plane.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// RemoteTool is a tool discovered through the gateway protocol client.
type RemoteTool struct {
	Name        string
	Description string
	InputSchema map[string]any
}
