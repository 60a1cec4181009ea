package util

import "strings"

func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// Abbreviate shortens value to at most limit bytes for log output, keeping
// the result valid UTF-8 and marking the cut with "…".
func Abbreviate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	cut := strings.ToValidUTF8(value[:limit], "")
	return cut + "…"
}
