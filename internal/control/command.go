// Package control implements the operator HTTP control plane: command
// parsing/validation, translation to gateway actions, per-agent and bulk
// execution, and status side-effects.
package control

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/corvidlabs/missionbridge/internal/domain"
)

type rawBulkPayload struct {
	Command   string         `json:"command"`
	AgentIDs  []string       `json:"agentIds"`
	Params    map[string]any `json:"params"`
	RequestID string         `json:"requestId"`
}

type rawControlPayload struct {
	AgentID     string          `json:"agentId"`
	AgentIDs    []string        `json:"agentIds"`
	Command     string          `json:"command"`
	Params      map[string]any  `json:"params"`
	RequestID   string          `json:"requestId"`
	RequestedBy string          `json:"requestedBy"`
	Bulk        *rawBulkPayload `json:"bulk"`
}

// ParseControlPayload decodes and validates a control HTTP body into a
// ControlPayload. Errors here are shape/parse failures (HTTP 400), distinct
// from per-command validation errors surfaced as a "rejected" response.
func ParseControlPayload(data []byte) (domain.ControlPayload, error) {
	var raw rawControlPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.ControlPayload{}, fmt.Errorf("invalid JSON body: %w", err)
	}

	token := normalizeCommandToken(raw.Command)

	payload := domain.ControlPayload{
		AgentID:     raw.AgentID,
		AgentIDs:    raw.AgentIDs,
		Params:      raw.Params,
		RequestID:   raw.RequestID,
		RequestedBy: raw.RequestedBy,
	}

	if token == "agents.bulk" {
		if raw.Bulk == nil {
			return domain.ControlPayload{}, fmt.Errorf("agents.bulk requires a nested bulk payload")
		}
		token = normalizeCommandToken(raw.Bulk.Command)
		payload.AgentIDs = raw.Bulk.AgentIDs
		payload.Params = raw.Bulk.Params
		if raw.Bulk.RequestID != "" {
			payload.RequestID = raw.Bulk.RequestID
		}
	}

	command, ok := knownCommand(token)
	if !ok {
		return domain.ControlPayload{}, fmt.Errorf("unrecognized command %q", raw.Command)
	}
	payload.Command = command

	if payload.AgentID == "" && len(payload.AgentIDs) == 0 {
		return domain.ControlPayload{}, fmt.Errorf("either agentId or agentIds is required")
	}
	if payload.Params == nil {
		payload.Params = map[string]any{}
	}

	return payload, nil
}

// normalizeCommandToken accepts short forms, "agent.<name>", and the
// "agent.priority.override" alias, and returns the bare command token.
func normalizeCommandToken(raw string) string {
	switch raw {
	case "agents.bulk":
		return "agents.bulk"
	case "agent.priority.override":
		return "priority"
	}
	return strings.TrimPrefix(raw, "agent.")
}

func knownCommand(token string) (domain.ControlCommand, bool) {
	switch domain.ControlCommand(token) {
	case domain.CommandPause, domain.CommandResume, domain.CommandRedirect,
		domain.CommandKill, domain.CommandRestart, domain.CommandPriority:
		return domain.ControlCommand(token), true
	default:
		return "", false
	}
}
