package render

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// ReplaceVariables substitutes {{Variable}} placeholders with values from
// data. Lookup probes the exact key, then lowercase, then uppercase, so CSV
// imports with inconsistent header casing still resolve. Placeholders with
// no non-empty value are left verbatim.
func ReplaceVariables(content string, data map[string]string) string {
	if len(data) == 0 {
		return content
	}
	return placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		key := match[2 : len(match)-2]
		for _, probe := range []string{key, strings.ToLower(key), strings.ToUpper(key)} {
			if v, ok := data[probe]; ok && v != "" {
				return v
			}
		}
		return match
	})
}
