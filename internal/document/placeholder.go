package document

import "strings"

const (
	placeholderOpen  = "{{"
	placeholderClose = "}}"
)

// IsPlaceholder reports whether a persisted fragment is wrapped in the
// placeholder marker and therefore needs user input before generation.
func IsPlaceholder(value string) bool {
	return len(value) >= len(placeholderOpen)+len(placeholderClose) &&
		strings.HasPrefix(value, placeholderOpen) &&
		strings.HasSuffix(value, placeholderClose)
}

// StripPlaceholder removes the marker from a placeholder fragment. Other
// values are returned unchanged.
func StripPlaceholder(value string) string {
	if !IsPlaceholder(value) {
		return value
	}
	inner := value[len(placeholderOpen) : len(value)-len(placeholderClose)]
	return strings.TrimSpace(inner)
}

// Placeholder wraps value in the placeholder marker.
func Placeholder(value string) string {
	return placeholderOpen + value + placeholderClose
}
