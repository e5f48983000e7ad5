package codec

import "strings"

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func anySlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

func strString(v any) string {
	s, _ := v.(string)
	return s
}

func strSlice(v any) []string {
	items := anySlice(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func strSliceToSet(v any) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range strSlice(v) {
		out[s] = struct{}{}
	}
	return out
}

func numVal(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func trimPrefix(s, prefix string) string {
	return strings.TrimPrefix(s, prefix)
}
