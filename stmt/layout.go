package stmt

import (
	"math"
	"strings"

	"github.com/rubiojr/ruletab/scanner"
)

// Dedent removes the common leading whitespace from the lines of src,
// ignoring blank lines and lines that continue a raw string literal when
// computing the minimum indent. A tab counts as one column: input is
// expected to be gofmt-indented.
func Dedent(src string) string {
	lines := strings.Split(src, "\n")
	inString := scanner.LineStartsInString(src)

	minIndent := math.MaxInt
	for i, l := range lines {
		if inString[i] || strings.TrimSpace(l) == "" {
			continue
		}
		if n := len(l) - len(strings.TrimLeft(l, " \t")); n < minIndent {
			minIndent = n
		}
	}
	if minIndent == 0 || minIndent == math.MaxInt {
		return src
	}

	for i, l := range lines {
		if inString[i] {
			continue
		}
		if strings.TrimSpace(l) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = l[minIndent:]
	}
	return strings.Join(lines, "\n")
}

// Indent prefixes every non-blank line of src with prefix, except lines
// that continue a raw string literal.
func Indent(src, prefix string) string {
	lines := strings.Split(src, "\n")
	inString := scanner.LineStartsInString(src)
	for i, l := range lines {
		if inString[i] || strings.TrimSpace(l) == "" {
			continue
		}
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// StripBlankLines removes whitespace-only lines from src, keeping those
// inside raw string literals.
func StripBlankLines(src string) string {
	lines := strings.Split(src, "\n")
	inString := scanner.LineStartsInString(src)
	kept := lines[:0]
	for i, l := range lines {
		if !inString[i] && strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// Join renders statements one per line.
func Join(stmts []Stmt) string {
	texts := make([]string, len(stmts))
	for i, s := range stmts {
		texts[i] = s.Text
	}
	return strings.Join(texts, "\n")
}
