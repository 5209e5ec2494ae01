package control

import (
	"context"
	"fmt"

	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/presence"
)

// GatewayExecutor is the subset of the gateway client the control plane
// drives.
type GatewayExecutor interface {
	Send(ctx context.Context, sessionKey, message string) (any, error)
	Call(ctx context.Context, method string, params any) (any, error)
}

// SessionKeyFor resolves the target session key for an agent, honoring
// an explicit params.sessionKey override.
func SessionKeyFor(agentID string, params map[string]any) string {
	if sk, ok := params["sessionKey"].(string); ok && sk != "" {
		return sk
	}
	return "agent:" + agentID + ":main"
}

// ApplyStatusSideEffect applies the tracker-side effect of a successfully
// executed command and returns the status update to post, or nil if the
// command has none.
func ApplyStatusSideEffect(tracker *presence.Tracker, command domain.ControlCommand, agentID, sessionKey string, nowMs int64) *domain.AgentStatusUpdate {
	switch command {
	case domain.CommandPause:
		tracker.SetPaused(agentID)
		return &domain.AgentStatusUpdate{
			AgentID:     agentID,
			Status:      domain.AgentStatusPaused,
			LastSeen:    nowMs,
			SessionInfo: map[string]any{"sessionKey": sessionKey},
		}
	case domain.CommandResume, domain.CommandRedirect, domain.CommandRestart:
		tracker.ClearPaused(agentID)
		return &domain.AgentStatusUpdate{
			AgentID:  agentID,
			Status:   domain.AgentStatusBusy,
			LastSeen: nowMs,
		}
	default:
		return nil
	}
}

// ExecuteForAgent runs one command against one agent: builds its actions,
// executes them in order, and on success applies the status side effect.
func ExecuteForAgent(ctx context.Context, gw GatewayExecutor, tracker *presence.Tracker, command domain.ControlCommand, agentID string, params map[string]any, nowMs int64) (*domain.AgentStatusUpdate, error) {
	sessionKey := SessionKeyFor(agentID, params)

	actions, err := BuildActions(command, sessionKey, params)
	if err != nil {
		return nil, err
	}

	for _, action := range actions {
		if err := executeAction(ctx, gw, action); err != nil {
			return nil, err
		}
	}

	return ApplyStatusSideEffect(tracker, command, agentID, sessionKey, nowMs), nil
}

func executeAction(ctx context.Context, gw GatewayExecutor, action domain.GatewayAction) error {
	switch action.Kind {
	case domain.ActionSend:
		_, err := gw.Send(ctx, action.SessionKey, action.Message)
		return err
	case domain.ActionCall:
		_, err := gw.Call(ctx, action.Method, action.Params)
		return err
	default:
		return fmt.Errorf("unknown gateway action kind")
	}
}
