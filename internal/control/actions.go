package control

import (
	"encoding/json"
	"fmt"

	"github.com/corvidlabs/missionbridge/internal/domain"
)

// ValidationError marks a per-command validation failure: these
// surface as a "rejected" response rather than an "error" one.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func newValidationError(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// BuildActions translates a command into the gateway actions to execute
// for one agent, in order.
func BuildActions(command domain.ControlCommand, sessionKey string, params map[string]any) ([]domain.GatewayAction, error) {
	switch command {
	case domain.CommandPause:
		return []domain.GatewayAction{sendAction(sessionKey, "/stop")}, nil

	case domain.CommandResume:
		text := firstNonEmptyString(params, "text", "message")
		if text == "" {
			text = "Resume work"
		}
		return []domain.GatewayAction{callAction("cron.wake", map[string]any{"text": text, "mode": "now"})}, nil

	case domain.CommandRedirect:
		if v, ok := firstPresent(params, "taskPayload", "text", "message", "task"); ok {
			message, err := stringifyPayload(v)
			if err != nil {
				return nil, err
			}
			return []domain.GatewayAction{sendAction(sessionKey, message)}, nil
		}
		taskID, _ := params["taskId"].(string)
		if taskID == "" {
			return nil, newValidationError("Missing task payload")
		}
		body := map[string]any{"taskId": taskID}
		if priority, ok := params["priority"]; ok {
			body["priority"] = priority
		}
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode redirect payload: %w", err)
		}
		return []domain.GatewayAction{sendAction(sessionKey, string(data))}, nil

	case domain.CommandKill:
		return []domain.GatewayAction{
			sendAction(sessionKey, "/stop"),
			sendAction(sessionKey, "/reset"),
		}, nil

	case domain.CommandRestart:
		return []domain.GatewayAction{sendAction(sessionKey, "/new")}, nil

	case domain.CommandPriority:
		priority, ok := params["priority"]
		if !ok {
			return nil, newValidationError("Missing priority")
		}
		return []domain.GatewayAction{sendAction(sessionKey, fmt.Sprintf("/queue priority:%v", priority))}, nil

	default:
		return nil, newValidationError("unsupported command %q", command)
	}
}

func sendAction(sessionKey, message string) domain.GatewayAction {
	return domain.GatewayAction{Kind: domain.ActionSend, SessionKey: sessionKey, Message: message}
}

func callAction(method string, params any) domain.GatewayAction {
	return domain.GatewayAction{Kind: domain.ActionCall, Method: method, Params: params}
}

func stringifyPayload(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode redirect payload: %w", err)
	}
	return string(data), nil
}

func firstNonEmptyString(params map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func firstPresent(params map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			return v, true
		}
	}
	return nil, false
}
