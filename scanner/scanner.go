// Package scanner provides string- and comment-aware scanning of Go source
// text. It tracks interpreted strings, rune literals, raw strings, escape
// sequences and both comment forms so that callers looking for brackets or
// tokens never have to re-implement that bookkeeping.
package scanner

import "strings"

// closingKind records which kind of literal or comment the current byte
// closes.
type closingKind byte

const (
	noClosing closingKind = iota
	closingDouble
	closingRune
	closingRaw
	closingBlock
)

// CodeScanner iterates byte-by-byte over Go source text, tracking literal
// and comment boundaries. Callers check InString(), InComment() or InCode()
// instead of maintaining their own flags.
//
// InString() and InComment() return true for the entire span including the
// opening and closing delimiters. The newline ending a line comment is code.
type CodeScanner struct {
	src        string
	pos        int
	line       int
	inDbl      bool
	inRune     bool
	inRaw      bool
	inLine     bool
	inBlock    bool
	blockStart int
	escaped    bool
	closing    closingKind
}

// New creates a CodeScanner for the given source text.
// Call Next() to advance to the first byte.
func New(src string) *CodeScanner {
	return &CodeScanner{src: src, pos: -1, line: 1}
}

// Next advances to the next byte, updating literal/comment state.
// Returns the byte and true, or (0, false) at end of input.
func (s *CodeScanner) Next() (byte, bool) {
	s.closing = noClosing
	s.pos++
	if s.pos >= len(s.src) {
		return 0, false
	}
	ch := s.src[s.pos]
	if ch == '\n' {
		s.line++
	}

	switch {
	case s.inLine:
		if ch == '\n' {
			s.inLine = false
		}
		return ch, true
	case s.inBlock:
		if ch == '/' && s.pos-1 > s.blockStart+1 && s.src[s.pos-1] == '*' {
			s.inBlock = false
			s.closing = closingBlock
		}
		return ch, true
	case s.escaped:
		s.escaped = false
		return ch, true
	}

	if ch == '\\' && (s.inDbl || s.inRune) {
		s.escaped = true
		return ch, true
	}
	switch {
	case ch == '"' && !s.inRune && !s.inRaw:
		if s.inDbl {
			s.closing = closingDouble
		}
		s.inDbl = !s.inDbl
	case ch == '\'' && !s.inDbl && !s.inRaw:
		if s.inRune {
			s.closing = closingRune
		}
		s.inRune = !s.inRune
	case ch == '`' && !s.inDbl && !s.inRune:
		if s.inRaw {
			s.closing = closingRaw
		}
		s.inRaw = !s.inRaw
	case ch == '/' && !s.inDbl && !s.inRune && !s.inRaw:
		if s.LookingAt("//") {
			s.inLine = true
		} else if s.LookingAt("/*") {
			s.inBlock = true
			s.blockStart = s.pos
		}
	}

	return ch, true
}

// InString reports whether the current position is inside a string, rune or
// raw string literal, including both delimiters.
func (s *CodeScanner) InString() bool {
	return s.inDbl || s.inRune || s.inRaw || s.ClosedLiteral()
}

// ClosedLiteral reports whether the current byte is the closing delimiter
// of a string, rune or raw string literal.
func (s *CodeScanner) ClosedLiteral() bool {
	return s.closing == closingDouble || s.closing == closingRune || s.closing == closingRaw
}

// InRawString reports whether the current position is inside a raw string.
func (s *CodeScanner) InRawString() bool { return s.inRaw || s.closing == closingRaw }

// InComment reports whether the current position is inside a line or block
// comment, including the comment markers.
func (s *CodeScanner) InComment() bool {
	return (s.inLine && s.src[s.pos] != '\n') || s.inBlock || s.closing == closingBlock
}

// InCode reports whether the current position is outside all literals and
// comments.
func (s *CodeScanner) InCode() bool { return !s.InString() && !s.InComment() }

// Pos returns the current byte offset (the position of the last byte
// returned by Next). Returns -1 before the first call to Next.
func (s *CodeScanner) Pos() int { return s.pos }

// Line returns the current 1-based line number.
func (s *CodeScanner) Line() int { return s.line }

// LookingAt checks if src[pos:] starts with the given prefix.
func (s *CodeScanner) LookingAt(prefix string) bool {
	if s.pos < 0 {
		return false
	}
	return strings.HasPrefix(s.src[s.pos:], prefix)
}

// IsOpenBracket reports whether ch is an opening bracket/paren/brace.
func IsOpenBracket(ch byte) bool {
	return ch == '(' || ch == '[' || ch == '{'
}

// IsCloseBracket reports whether ch is a closing bracket/paren/brace.
func IsCloseBracket(ch byte) bool {
	return ch == ')' || ch == ']' || ch == '}'
}

// Opener returns the opening bracket matching the closing bracket ch.
func Opener(ch byte) byte {
	switch ch {
	case ')':
		return '('
	case ']':
		return '['
	case '}':
		return '{'
	}
	return 0
}

// MatchingClose returns the offset of the bracket closing the one at
// openPos, skipping literals and comments. Returns -1 when src[openPos] is
// not an opening bracket, when a bracket of another kind closes first, or
// when input ends before the bracket is closed.
func MatchingClose(src string, openPos int) int {
	if openPos < 0 || openPos >= len(src) || !IsOpenBracket(src[openPos]) {
		return -1
	}
	var stack []byte
	sc := New(src)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if sc.Pos() < openPos || !sc.InCode() {
			continue
		}
		if IsOpenBracket(ch) {
			stack = append(stack, ch)
			continue
		}
		if !IsCloseBracket(ch) {
			continue
		}
		if len(stack) == 0 || stack[len(stack)-1] != Opener(ch) {
			return -1
		}
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			return sc.Pos()
		}
	}
	return -1
}

// FindAllTopLevel returns the offsets of every byte in code at bracket
// depth 0 that matches pred.
func FindAllTopLevel(s string, pred func(ch byte, pos int, src string) bool) []int {
	var positions []int
	depth := 0
	sc := New(s)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if !sc.InCode() {
			continue
		}
		if IsOpenBracket(ch) {
			depth++
		} else if IsCloseBracket(ch) {
			depth--
		}
		if depth == 0 && pred(ch, sc.Pos(), s) {
			positions = append(positions, sc.Pos())
		}
	}
	return positions
}

// CodeMask returns, for every byte of src, whether it is code (outside
// literals and comments).
func CodeMask(src string) []bool {
	mask := make([]bool, len(src))
	sc := New(src)
	for _, ok := sc.Next(); ok; _, ok = sc.Next() {
		mask[sc.Pos()] = sc.InCode()
	}
	return mask
}

// LineStartsInString reports, for each line of src, whether the line begins
// inside a multi-line literal (a raw string spanning lines). Such lines must
// not be re-indented or dropped.
func LineStartsInString(src string) []bool {
	starts := []bool{false}
	sc := New(src)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if ch == '\n' {
			starts = append(starts, sc.InRawString())
		}
	}
	return starts
}
