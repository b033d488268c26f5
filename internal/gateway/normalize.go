package gateway

import (
	"regexp"
	"strings"
)

var (
	nonDigitRe    = regexp.MustCompile(`[^0-9]`)
	individualRe  = regexp.MustCompile(`^628[0-9]{7,12}$`)
	groupSuffixRe = regexp.MustCompile(`^[0-9]{10,20}-[0-9]+@g\.[a-z]+$`)
)

const groupPrefix = "group:"

// IsGroupTarget reports whether the raw target addresses a staff/customer
// group rather than an individual number.
func IsGroupTarget(raw string) bool {
	return strings.HasPrefix(raw, groupPrefix) || strings.Contains(raw, "@g.")
}

// NormalizeTarget strips non-digits from individual numbers and rewrites the
// local 08xx / 8xx forms to the 62 country prefix. Group identifiers pass
// through unchanged.
func NormalizeTarget(raw string) string {
	raw = strings.TrimSpace(raw)
	if IsGroupTarget(raw) {
		return raw
	}

	digits := nonDigitRe.ReplaceAllString(raw, "")
	switch {
	case strings.HasPrefix(digits, "62"):
		return digits
	case strings.HasPrefix(digits, "0"):
		return "62" + digits[1:]
	case strings.HasPrefix(digits, "8"):
		return "62" + digits
	default:
		return digits
	}
}

// ValidateTarget reports whether raw is deliverable: a normalized individual
// number matching the national mobile pattern, or a well-formed group id.
func ValidateTarget(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if strings.HasPrefix(raw, groupPrefix) {
		return len(raw) > len(groupPrefix)
	}
	if strings.Contains(raw, "@g.") {
		return groupSuffixRe.MatchString(raw)
	}
	return individualRe.MatchString(NormalizeTarget(raw))
}
