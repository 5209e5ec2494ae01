package normalize

// asMap narrows v to a JSON object, as produced by encoding/json into `any`.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// stringField returns the first candidate key present on obj with a
// non-empty string value.
func stringField(obj map[string]any, candidates ...string) string {
	for _, key := range candidates {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// firstPresent returns the first candidate key present on obj at all,
// regardless of value shape.
func firstPresent(obj map[string]any, candidates ...string) (any, bool) {
	for _, key := range candidates {
		if v, ok := obj[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// numberField returns the first candidate key present with a numeric
// value, coerced to float64 (encoding/json decodes all JSON numbers this
// way when the target is `any`).
func numberField(obj map[string]any, candidates ...string) (float64, bool) {
	for _, key := range candidates {
		if v, ok := obj[key]; ok {
			switch n := v.(type) {
			case float64:
				return n, true
			case int:
				return float64(n), true
			case int64:
				return float64(n), true
			}
		}
	}
	return 0, false
}

// flattenSlots collects record maps found under any of slotKeys on obj,
// flattening one or more levels through each record's nested container
// keys (e.g. entries|items|calls|results).
func flattenSlots(obj map[string]any, slotKeys []string, nestedKeys []string) []map[string]any {
	var out []map[string]any
	for _, key := range slotKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		out = append(out, flattenValue(v, nestedKeys)...)
	}
	return out
}

func flattenValue(v any, nestedKeys []string) []map[string]any {
	switch val := v.(type) {
	case map[string]any:
		var out []map[string]any
		sawNested := false
		for _, nk := range nestedKeys {
			if nv, ok := val[nk]; ok {
				out = append(out, flattenValue(nv, nestedKeys)...)
				sawNested = true
			}
		}
		if !sawNested {
			out = append(out, val)
		}
		return out
	case []any:
		var out []map[string]any
		for _, item := range val {
			out = append(out, flattenValue(item, nestedKeys)...)
		}
		return out
	default:
		return nil
	}
}
