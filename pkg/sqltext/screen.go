package sqltext

import (
	"github.com/corazawaf/libinjection-go"
)

const redactedValue = "[REDACTED]"

// ScreenSampleValues copies sample rows, replacing any string value that
// libinjection flags as SQL-injection-shaped. Sample rows get embedded
// verbatim into LLM prompts, so hostile catalog data must not ride along.
func ScreenSampleValues(rows []map[string]any) []map[string]any {
	if rows == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		clean := make(map[string]any, len(row))
		for k, v := range row {
			clean[k] = screenValue(v)
		}
		out = append(out, clean)
	}
	return out
}

func screenValue(v any) any {
	switch t := v.(type) {
	case string:
		if isInjection(t) {
			return redactedValue
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = screenValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = screenValue(e)
		}
		return out
	default:
		return v
	}
}

func isInjection(s string) bool {
	res, _ := libinjection.IsSQLi(s)
	return res
}
