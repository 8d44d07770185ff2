package rewrite

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// HandlerName derives a handler name from a matcher identifier: the suffix
// is stripped, the first remaining rune upper-cased and the prefix added.
//
//	HandlerName("healRegex", "Regex", "parse") == "parseHeal"
func HandlerName(id, suffix, prefix string) string {
	base := strings.TrimSuffix(id, suffix)
	r, size := utf8.DecodeRuneInString(base)
	if r == utf8.RuneError {
		return prefix + base
	}
	return prefix + string(unicode.ToUpper(r)) + base[size:]
}
