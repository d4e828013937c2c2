package logutil

import (
	"encoding/json"
	"strings"
)

// Redacted replaces sensitive values in logs and summaries.
const Redacted = "[REDACTED]"

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ReplaceAll(normalized, " ", "")

	switch {
	case normalized == "authorization":
		return true
	case strings.Contains(normalized, "privatekey"):
		return true
	case strings.Contains(normalized, "mnemonic"):
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "cookie"):
		return true
	default:
		return false
	}
}

// RedactValue redacts a value when the key looks sensitive.
func RedactValue(key, value string) string {
	if value == "" {
		return ""
	}
	if IsSensitiveLogField(key) {
		return Redacted
	}
	return value
}

// RedactJSON redacts sensitive fields from a JSON-compatible value, such as
// the decoded params of a wallet RPC call. The input is not modified.
func RedactJSON(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, child := range typed {
			if IsSensitiveLogField(k) {
				out[k] = Redacted
				continue
			}
			out[k] = RedactJSON(child)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, child := range typed {
			out[i] = RedactJSON(child)
		}
		return out
	default:
		return v
	}
}

// FormatJSONForLog renders v as compact, redacted, truncated JSON.
func FormatJSONForLog(v any, maxChars int) string {
	raw, err := json.Marshal(RedactJSON(v))
	if err != nil {
		return "<unencodable>"
	}
	return TruncateForLog(string(raw), maxChars)
}

// TruncateForLog returns a single-line truncated preview for unstructured values.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	return normalized[:maxChars] + "... [truncated]"
}
