package normalize

// delta returns payload.delta as a map, or nil if absent/not object-shaped.
func delta(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	m, _ := asMap(payload["delta"])
	return m
}

// summary returns payload.summary as a map, or nil if absent/not
// object-shaped.
func summary(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	m, _ := asMap(payload["summary"])
	return m
}

// coalesceString returns the first non-empty string found for keys on
// primary, else on fallback.
func coalesceString(primary, fallback map[string]any, keys ...string) string {
	if s := stringField(primary, keys...); s != "" {
		return s
	}
	return stringField(fallback, keys...)
}

// coalesceAny returns the first present value for keys on primary, else
// on fallback.
func coalesceAny(primary, fallback map[string]any, keys ...string) (any, bool) {
	if v, ok := firstPresent(primary, keys...); ok {
		return v, true
	}
	return firstPresent(fallback, keys...)
}

// coalesceStatus returns primary's status, falling back to fallback's.
func coalesceStatus(primary, fallback map[string]any) string {
	if s := stringField(primary, "status"); s != "" {
		return s
	}
	return stringField(fallback, "status")
}
