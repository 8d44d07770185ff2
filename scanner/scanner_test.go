package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeScanner_BasicIteration(t *testing.T) {
	sc := New("ab")
	assert.Equal(t, -1, sc.Pos())

	ch, ok := sc.Next()
	require.True(t, ok)
	assert.Equal(t, byte('a'), ch)
	assert.Equal(t, 0, sc.Pos())

	ch, ok = sc.Next()
	require.True(t, ok)
	assert.Equal(t, byte('b'), ch)

	_, ok = sc.Next()
	assert.False(t, ok)
}

func TestCodeScanner_LineTracking(t *testing.T) {
	sc := New("a\nb")
	sc.Next() // a
	assert.Equal(t, 1, sc.Line())
	sc.Next() // \n
	assert.Equal(t, 2, sc.Line())
	sc.Next() // b
	assert.Equal(t, 2, sc.Line())
}

func split(src string) (code, other string) {
	var c, o []byte
	sc := New(src)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if sc.InCode() {
			c = append(c, ch)
		} else {
			o = append(o, ch)
		}
	}
	return string(c), string(o)
}

func TestCodeScanner_Literals(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		code  string
		other string
	}{
		{"string", `x := "a{b" + y`, `x :=  + y`, `"a{b"`},
		{"escaped quote", `f("a\"}") + 1`, `f() + 1`, `"a\"}"`},
		{"rune", `c == '}'`, `c == `, `'}'`},
		{"escaped rune", `c == '\''`, `c == `, `'\''`},
		{"raw string", "r := `a\\\"}`", "r := ", "`a\\\"}`"},
		{"line comment", "x // it's {\ny", "x \ny", "// it's {"},
		{"block comment", "a /* } */ b", "a  b", "/* } */"},
		{"empty block comment", "a /**/ b", "a  b", "/**/"},
		{"quote in comment", "// \"\nx", "\nx", "// \""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, other := split(tt.src)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.other, other)
		})
	}
}

func TestCodeScanner_RawString(t *testing.T) {
	sc := New("a `b` c")
	var raw []byte
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if sc.InRawString() {
			raw = append(raw, ch)
		}
	}
	assert.Equal(t, "`b`", string(raw))
}

func TestCodeScanner_ClosedLiteral(t *testing.T) {
	sc := New("a \"b\" 'c' `d` /* e */")
	var closers []int
	for _, ok := sc.Next(); ok; _, ok = sc.Next() {
		if sc.ClosedLiteral() {
			closers = append(closers, sc.Pos())
		}
	}
	assert.Equal(t, []int{4, 8, 12}, closers)
}

func TestMatchingClose(t *testing.T) {
	tests := []struct {
		name string
		src  string
		open int
		want int
	}{
		{"simple", "{a}", 0, 2},
		{"nested", "{ {} ( ) }", 0, 9},
		{"brace in string", `{ "}" }`, 0, 6},
		{"brace in rune", `{ '}' }`, 0, 6},
		{"brace in comment", "{ // }\n}", 0, 7},
		{"inner open", "f(a, {b})", 1, 8},
		{"mismatched", "{ ( }", 0, -1},
		{"unterminated", "{ {", 0, -1},
		{"not a bracket", "x{}", 0, -1},
		{"out of range", "{}", 5, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchingClose(tt.src, tt.open))
		})
	}
}

func TestFindAllTopLevel(t *testing.T) {
	isComma := func(ch byte, _ int, _ string) bool { return ch == ',' }

	assert.Equal(t, []int{6}, FindAllTopLevel("f(a,b),c", isComma))
	assert.Empty(t, FindAllTopLevel(`"a,b"`, isComma))
	assert.Equal(t, []int{1, 9}, FindAllTopLevel(`a,f(b, c),"d,e"`, isComma))
}

func TestCodeMask(t *testing.T) {
	mask := CodeMask(`a"b"c`)
	assert.Equal(t, []bool{true, false, false, false, true}, mask)
}

func TestLineStartsInString(t *testing.T) {
	src := "x := `one\ntwo\nthree`\ny"
	assert.Equal(t, []bool{false, true, true, false}, LineStartsInString(src))
	assert.Equal(t, []bool{false}, LineStartsInString("no newline"))
}
