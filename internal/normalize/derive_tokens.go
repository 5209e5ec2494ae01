package normalize

import "github.com/corvidlabs/missionbridge/internal/domain"

var tokenFieldKeys = [][2]string{
	{"inputTokens", "input_tokens"},
	{"outputTokens", "output_tokens"},
	{"totalTokens", "total_tokens"},
	{"cacheReadTokens", "cache_read_tokens"},
	{"cacheWriteTokens", "cache_write_tokens"},
	{"durationMs", "duration_ms"},
	{"costUsd", "cost_usd"},
	{"model", "model"},
}

// DeriveTokenUsageEvent implements derivation rule 4.
func DeriveTokenUsageEvent(payload map[string]any, primary domain.BridgeEvent, seq *Sequencer) []domain.BridgeEvent {
	if payload == nil {
		return nil
	}
	s := summary(payload)

	fields := map[string]any{}
	for _, pair := range tokenFieldKeys {
		if v, ok := coalesceAny(s, payload, pair[0], pair[1]); ok {
			fields[pair[0]] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}

	if _, hasTotal := fields["totalTokens"]; !hasTotal {
		in, inOK := numberField(fields, "inputTokens")
		out, outOK := numberField(fields, "outputTokens")
		if inOK && outOK {
			fields["totalTokens"] = in + out
		}
	}

	return []domain.BridgeEvent{NewDerivedEvent(primary, "token_usage", fields, seq, "")}
}
