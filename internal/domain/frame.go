// Package domain contains the core data types shared across the bridge:
// gateway wire frames, bridge-internal events, presence and status records,
// and operator control payloads.
package domain

// FrameType discriminates a GatewayFrame's shape.
type FrameType string

const (
	FrameTypeEvent    FrameType = "event"
	FrameTypeResponse FrameType = "response"
	FrameTypeHelloOK  FrameType = "hello-ok"
)

// GatewayFrame is an inbound frame from the gateway, as described in
// the gateway wire protocol's incoming envelope. Only one of Event/Response/Hello
// is meaningful depending on Type.
type GatewayFrame struct {
	Type FrameType `json:"type"`

	// event frames
	Event        string `json:"event,omitempty"`
	Payload      any    `json:"payload,omitempty"`
	Seq          *int64 `json:"seq,omitempty"`
	StateVersion *int64 `json:"stateVersion,omitempty"`

	// response frames
	ID     string           `json:"id,omitempty"`
	OK     bool             `json:"ok,omitempty"`
	Result any              `json:"result,omitempty"`
	Error  *GatewayRPCError `json:"error,omitempty"`

	// hello-ok frames
	Presence any              `json:"presence,omitempty"`
	Health   any              `json:"health,omitempty"`
	Features *GatewayFeatures `json:"features,omitempty"`
	Snapshot *GatewaySnapshot `json:"snapshot,omitempty"`
}

// GatewayRPCError is the error slot on a response frame.
type GatewayRPCError struct {
	Message string `json:"message,omitempty"`
	Code    any    `json:"code,omitempty"`
}

// GatewayFeatures advertises what the gateway supports.
type GatewayFeatures struct {
	Methods []string `json:"methods,omitempty"`
	Events  []string `json:"events,omitempty"`
}

// GatewaySnapshot is the nested snapshot some servers embed in hello-ok.
type GatewaySnapshot struct {
	Presence any `json:"presence,omitempty"`
	Health   any `json:"health,omitempty"`
}

// GatewayRequest is an outgoing request frame.
type GatewayRequest struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// NewGatewayRequest builds a "req"-typed outgoing frame.
func NewGatewayRequest(id, method string, params any) GatewayRequest {
	return GatewayRequest{Type: "req", ID: id, Method: method, Params: params}
}
