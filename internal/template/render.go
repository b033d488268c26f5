// Package template substitutes {{name}} placeholders in human-editable
// message templates. Rendering is pure and never fails: a placeholder with no
// matching key becomes "-" so the surrounding text always survives.
package template

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// MissingValue replaces placeholders whose key is absent from the data bag.
const MissingValue = "-"

// Render replaces every {{name}} token in tpl with data[name].
func Render(tpl string, data map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tpl, func(token string) string {
		name := placeholderRe.FindStringSubmatch(token)[1]
		if v, ok := data[name]; ok {
			return v
		}
		return MissingValue
	})
}

// Vars returns the placeholder names appearing in tpl, in order, without
// duplicates.
func Vars(tpl string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// MatchCode reports whether a template code is a usable fallback for a
// notification type when no exact code exists: case-insensitive substring
// match in either direction.
func MatchCode(code, notificationType string) bool {
	c := strings.ToLower(code)
	t := strings.ToLower(notificationType)
	return strings.Contains(c, t) || strings.Contains(t, c)
}
