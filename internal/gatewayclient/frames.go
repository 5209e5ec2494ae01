package gatewayclient

import (
	"encoding/json"
	"fmt"

	"github.com/corvidlabs/missionbridge/internal/domain"
)

// parseFrame decodes a raw inbound message into a GatewayFrame and
// validates that its type discriminator is one of the recognized
// variants. Any other shape surfaces an error to the caller, who emits it
// to observers and discards the frame.
func parseFrame(raw []byte) (domain.GatewayFrame, error) {
	var frame domain.GatewayFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return domain.GatewayFrame{}, fmt.Errorf("parse gateway frame: %w", err)
	}
	switch frame.Type {
	case domain.FrameTypeEvent, domain.FrameTypeResponse, domain.FrameTypeHelloOK:
		return frame, nil
	default:
		return domain.GatewayFrame{}, fmt.Errorf("unrecognized gateway frame type: %q", frame.Type)
	}
}

// extractNonce pulls payload.nonce out of a connect.challenge event payload.
func extractNonce(payload any) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	nonce, _ := obj["nonce"].(string)
	return nonce
}

// extractHelloFromResult looks for an embedded hello-ok payload on a
// connect response's result/payload, since some gateway servers answer
// the connect request with the hello snapshot directly rather than
// emitting a separate hello-ok frame.
func extractHelloFromResult(value any) (domain.GatewayFrame, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return domain.GatewayFrame{}, false
	}
	// Some servers nest it one level under "result" or "payload"; by the
	// time it reaches here `value` is already the resolved result/payload,
	// so we only need to check whether it itself looks hello-shaped.
	_, hasPresence := obj["presence"]
	_, hasHealth := obj["health"]
	_, hasFeatures := obj["features"]
	_, hasSnapshot := obj["snapshot"]
	if !hasPresence && !hasHealth && !hasFeatures && !hasSnapshot {
		return domain.GatewayFrame{}, false
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return domain.GatewayFrame{}, false
	}
	var frame domain.GatewayFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return domain.GatewayFrame{}, false
	}
	frame.Type = domain.FrameTypeHelloOK
	return frame, true
}
