// Package stmt splits Go source text into top-level statements and parses
// the small set of block constructs the rewriter cares about. It is a
// line-oriented scanner, not a parser: statements are delimited by newlines
// at bracket depth zero.
package stmt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rubiojr/ruletab/scanner"
)

// Bracket errors reported in Stmt.Err.
var (
	ErrUnexpected   = errors.New("unexpected closing bracket")
	ErrUnterminated = errors.New("unterminated bracket")
)

// Stmt is one top-level statement (or comment) of a source fragment.
type Stmt struct {
	// Text is the raw statement text, including the indentation of its
	// first line. It never ends with a newline.
	Text string
	// Line is the 1-based line of the statement's first line in the
	// fragment it was split from.
	Line int
	// Comment is true when the statement contains no code.
	Comment bool
	// Err is set when the statement's brackets do not balance.
	Err error
}

// Trimmed returns the statement text without surrounding whitespace.
func (s Stmt) Trimmed() string { return strings.TrimSpace(s.Text) }

// IsReturn reports whether the statement is a return statement.
func (s Stmt) IsReturn() bool {
	t := s.Trimmed()
	return !s.Comment && (t == "return" || strings.HasPrefix(t, "return ") || strings.HasPrefix(t, "return\t"))
}

// Split breaks src into top-level statements. Blank lines between
// statements are dropped. A statement continues past a newline while
// brackets are open or while its last code byte is an operator that cannot
// end a Go statement.
func Split(src string) []Stmt {
	var (
		stmts      []Stmt
		stack      []byte
		start      = -1
		startLine  = 1
		hasCode    bool
		lastCode   = -1
		bracketErr error
	)

	flush := func(end int) {
		if start < 0 {
			return
		}
		text := strings.TrimRight(src[start:end], " \t\r\n")
		if strings.TrimSpace(text) != "" {
			if len(stack) > 0 {
				bracketErr = fmt.Errorf("line %d: %w %q", startLine, ErrUnterminated, stack[len(stack)-1])
			}
			stmts = append(stmts, Stmt{Text: text, Line: startLine, Comment: !hasCode, Err: bracketErr})
		}
		start, hasCode, lastCode, stack, bracketErr = -1, false, -1, nil, nil
	}

	sc := scanner.New(src)
	lineStart := 0
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		pos := sc.Pos()
		if ch == '\n' {
			if sc.InCode() && len(stack) == 0 && start >= 0 && !continues(src, lastCode) {
				flush(pos)
			}
			lineStart = pos + 1
			continue
		}
		if start < 0 {
			if ch == ' ' || ch == '\t' || ch == '\r' {
				continue
			}
			start = lineStart
			startLine = sc.Line()
		}
		if sc.ClosedLiteral() {
			// "x := `a`" ends at its closing delimiter.
			hasCode = true
			lastCode = pos
			continue
		}
		if !sc.InCode() {
			continue
		}
		if ch == ' ' || ch == '\t' || ch == '\r' {
			continue
		}
		hasCode = true
		lastCode = pos
		switch {
		case scanner.IsOpenBracket(ch):
			stack = append(stack, ch)
		case scanner.IsCloseBracket(ch):
			if len(stack) > 0 && stack[len(stack)-1] == scanner.Opener(ch) {
				stack = stack[:len(stack)-1]
				continue
			}
			if bracketErr == nil {
				bracketErr = fmt.Errorf("line %d: %w %q", sc.Line(), ErrUnexpected, ch)
			}
			// Resynchronise on the nearest matching opener, closing the
			// unterminated brackets above it. A closer with no opener at all
			// is ignored.
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == scanner.Opener(ch) {
					stack = stack[:i]
					break
				}
			}
		}
	}
	flush(len(src))
	return stmts
}

// continues reports whether the code byte at pos leaves the statement open
// (binary operator, comma, dot, or opening of an expression).
func continues(src string, pos int) bool {
	if pos < 0 {
		return false
	}
	switch src[pos] {
	case ',', '.', '=', '&', '|', '^', '<', '>', '!', ':', '*', '/', '%':
		return true
	case '+', '-':
		// x++ and x-- end a statement.
		return pos == 0 || src[pos-1] != src[pos]
	}
	return false
}

// Block is a braced construct split into its parts:
//
//	Head { Body } Tail
type Block struct {
	Head string
	Body string
	Tail string
}

// ParseBlock splits text at its first top-level opening brace and the
// brace matching it. Braces inside parentheses or brackets (composite
// literals in call arguments) do not count as the block opener.
func ParseBlock(text string) (Block, bool) {
	open := firstOpenBrace(text)
	if open < 0 {
		return Block{}, false
	}
	closePos := scanner.MatchingClose(text, open)
	if closePos < 0 {
		return Block{}, false
	}
	return Block{
		Head: strings.TrimSpace(text[:open]),
		Body: trimBody(text[open+1 : closePos]),
		Tail: strings.TrimSpace(text[closePos+1:]),
	}, true
}

// ParseTrailingBlock is ParseBlock for text whose inner brackets do not
// balance: the block ends at the last closing brace of text, which must be
// its final code byte.
func ParseTrailingBlock(text string) (Block, bool) {
	open := firstOpenBrace(text)
	t := strings.TrimRight(text, " \t\r\n")
	if open < 0 || !strings.HasSuffix(t, "}") || len(t)-1 <= open {
		return Block{}, false
	}
	return Block{
		Head: strings.TrimSpace(text[:open]),
		Body: trimBody(t[open+1 : len(t)-1]),
	}, true
}

// firstOpenBrace returns the offset of the first '{' in code that is not
// nested inside parentheses or square brackets.
func firstOpenBrace(text string) int {
	depth := 0
	sc := scanner.New(text)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if !sc.InCode() {
			continue
		}
		switch ch {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '{':
			if depth == 0 {
				return sc.Pos()
			}
		}
	}
	return -1
}

// trimBody removes the newline following an opening brace and the
// whitespace preceding the closing one, keeping the indentation of the
// first body line.
func trimBody(body string) string {
	if i := strings.IndexByte(body, '\n'); i >= 0 && strings.TrimSpace(body[:i]) == "" {
		body = body[i+1:]
	}
	return strings.TrimRight(body, " \t\r\n")
}

// If is a parsed if statement.
type If struct {
	// Cond is the full header after the "if" keyword, including any init
	// statement ("x := f(); x != nil").
	Cond string
	Body string
	// Else is true when the statement has an else branch.
	Else bool
}

// ParseIf parses an if statement. It returns false when s is not an if
// statement, when its braces do not balance, or when anything other than an
// else branch follows the closing brace.
func ParseIf(s string) (If, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "if ") && !strings.HasPrefix(s, "if\t") {
		return If{}, false
	}
	b, ok := ParseBlock(s)
	if !ok {
		return If{}, false
	}
	ifs := If{Cond: strings.TrimSpace(b.Head[2:]), Body: b.Body}
	switch {
	case b.Tail == "":
	case strings.HasPrefix(b.Tail, "else"):
		ifs.Else = true
	default:
		return If{}, false
	}
	return ifs, true
}

// SplitTopLevel splits expr on every top-level occurrence of sep that sits
// in code. Parts are trimmed.
func SplitTopLevel(expr, sep string) []string {
	positions := scanner.FindAllTopLevel(expr, func(_ byte, pos int, src string) bool {
		return strings.HasPrefix(src[pos:], sep)
	})
	var parts []string
	last := 0
	for _, p := range positions {
		if p < last {
			continue
		}
		parts = append(parts, strings.TrimSpace(expr[last:p]))
		last = p + len(sep)
	}
	return append(parts, strings.TrimSpace(expr[last:]))
}
