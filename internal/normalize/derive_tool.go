package normalize

import "github.com/corvidlabs/missionbridge/internal/domain"

var toolSlotKeys = []string{
	"tool", "toolCall", "tool_call",
	"toolResult", "tool_result",
	"toolCalls", "tool_calls",
	"toolResults", "tool_results",
}
var toolNestedKeys = []string{"entries", "items", "calls", "results"}

// DeriveToolEvents implements derivation rule 1: tool_call/tool_result
// events from payload.delta and from any of the payload's tool slots,
// deduped by (eventType, toolCallId|toolName, status).
func DeriveToolEvents(payload map[string]any, primary domain.BridgeEvent, seq *Sequencer) []domain.BridgeEvent {
	if payload == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []domain.BridgeEvent

	emit := func(eventType string, fields map[string]any) {
		key := toolDedupKey(eventType, fields)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, NewDerivedEvent(primary, eventType, fields, seq, ""))
	}

	d := delta(payload)
	if d != nil {
		switch stringField(d, "type") {
		case "tool_call":
			emit("tool_call", toolCallFields(d, payload, "started"))
		case "tool_result":
			emit("tool_result", toolResultFields(d, payload, "completed"))
		}
	}

	for _, rec := range flattenSlots(payload, toolSlotKeys, toolNestedKeys) {
		eventType, status := classifyToolRecord(rec)
		if eventType == "" {
			continue
		}
		if eventType == "tool_call" {
			emit("tool_call", toolCallFields(rec, rec, status))
		} else {
			emit("tool_result", toolResultFields(rec, rec, status))
		}
	}

	return out
}

// classifyToolRecord classifies a flattened tool record by explicit type,
// then status, then the presence of toolOutput/toolInput.
func classifyToolRecord(rec map[string]any) (eventType, status string) {
	switch stringField(rec, "type") {
	case "tool_call":
		return "tool_call", normalizeToolStatus(stringField(rec, "status"), "started")
	case "tool_result":
		return "tool_result", normalizeToolStatus(stringField(rec, "status"), "completed")
	}

	switch normalizeToolStatus(stringField(rec, "status"), "") {
	case "completed", "failed":
		return "tool_result", normalizeToolStatus(stringField(rec, "status"), "completed")
	case "started", "streaming":
		return "tool_call", normalizeToolStatus(stringField(rec, "status"), "started")
	}

	if _, ok := firstPresent(rec, "toolOutput", "tool_output"); ok {
		return "tool_result", "completed"
	}
	if _, ok := firstPresent(rec, "toolInput", "tool_input"); ok {
		return "tool_call", "started"
	}
	return "", ""
}

func normalizeToolStatus(status, fallback string) string {
	switch status {
	case "":
		return fallback
	case "error", "errored":
		return "failed"
	default:
		return status
	}
}

func toolCallFields(primary, fallback map[string]any, defaultStatus string) map[string]any {
	fields := map[string]any{
		"toolName":   coalesceString(primary, fallback, "toolName", "tool_name"),
		"toolCallId": coalesceString(primary, fallback, "toolCallId", "tool_call_id"),
		"status":     normalizeToolStatus(coalesceStatus(primary, fallback), defaultStatus),
	}
	if v, ok := coalesceAny(primary, fallback, "toolInput", "tool_input"); ok {
		fields["toolInput"] = v
	}
	if v, ok := coalesceAny(primary, fallback, "durationMs", "duration_ms"); ok {
		fields["durationMs"] = v
	}
	if v, ok := coalesceAny(primary, fallback, "error"); ok {
		fields["error"] = v
	}
	if v, ok := coalesceAny(primary, fallback, "stack"); ok {
		fields["stack"] = v
	}
	return fields
}

func toolResultFields(primary, fallback map[string]any, defaultStatus string) map[string]any {
	fields := toolCallFields(primary, fallback, defaultStatus)
	if v, ok := coalesceAny(primary, fallback, "toolOutput", "tool_output"); ok {
		fields["toolOutput"] = v
	}
	return fields
}

func toolDedupKey(eventType string, fields map[string]any) string {
	id, _ := fields["toolCallId"].(string)
	if id == "" {
		id, _ = fields["toolName"].(string)
	}
	status, _ := fields["status"].(string)
	return eventType + "|" + id + "|" + status
}
