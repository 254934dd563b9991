package adapter

// helpers for parsing map[string]any args into typed values

// GetString returns args[key] as a string, or "" when absent or not a string.
func GetString(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetInt returns args[key] as an int, tolerating the float64 that JSON
// decoding produces for numbers. Returns def when absent.
func GetInt(args map[string]any, key string, def int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// GetInt64 is GetInt for identifiers too large for 32 bits, such as chat ids.
func GetInt64(args map[string]any, key string, def int64) int64 {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case float64:
			return int64(n)
		case int64:
			return n
		case int:
			return int64(n)
		}
	}
	return def
}

// GetFloat returns args[key] as a float64, or def when absent.
func GetFloat(args map[string]any, key string, def float64) float64 {
	if v, ok := args[key]; ok {
		if n, ok := v.(float64); ok {
			return n
		}
	}
	return def
}

// GetBool returns args[key] as a bool, or def when absent.
func GetBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// GetStringSlice returns args[key] as a []string, decoding the []any that
// JSON produces. Returns nil when absent or mistyped.
func GetStringSlice(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return s
	}
	return nil
}
