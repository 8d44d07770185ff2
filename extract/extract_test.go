package extract

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubiojr/ruletab/config"
)

const sample = `package effects

import (
	"regexp"
	"strconv"
	"strings"

	"example.com/game/core"
)

var (
	healRegex   = regexp.MustCompile(` + "`^Heal (\\d+) HP\\.?$`" + `)
	drawRegex   = regexp.MustCompile(` + "`^Draw a card\\.?$`" + `)
	damageRegex = regexp.MustCompile(` + "`^Deal (\\d+) damage to (\\w+) and (\\d+) to (\\w+)\\.?$`" + `)
)

func Parse(text string) []core.Effect {
	text = strings.TrimSpace(text)

	if matches := healRegex.FindStringSubmatch(text); matches != nil {
		amount, err := strconv.Atoi(matches[1])
		if err == nil {
			return []core.Effect{{Type: core.EffectHeal, Amount: amount}}
		}
	}

	// --- Draw ---
	if drawRegex.MatchString(text) {
		return []core.Effect{{Type: core.EffectDraw, Amount: 1}}
	}

	// --- Damage ---
	if matches := damageRegex.FindStringSubmatch(text); matches != nil {
		first, err1 := strconv.Atoi(matches[1])
		second, err2 := strconv.Atoi(matches[3])
		if err1 == nil && err2 == nil {
			return []core.Effect{
				{Type: core.EffectDamage, Amount: first, Target: matches[2]},
				{Type: core.EffectDamage, Amount: second, Target: matches[4]},
			}
		}
	}

	return []core.Effect{{Type: core.EffectUnknown, Description: text}}
}
`

func extract(t *testing.T, src string) *Source {
	t.Helper()
	out, err := New(config.Default().Profile).Extract(src)
	require.NoError(t, err)
	return out
}

// dispatch wraps body in a minimal file around a Parse function.
func dispatch(body string) string {
	return "package effects\n\nimport (\n\t\"regexp\"\n)\n\nvar (\n\taRegex = regexp.MustCompile(`a`)\n)\n\n" +
		"func Parse(text string) []core.Effect {\n" + body + "\n}\n"
}

func ids(blocks []RuleBlock) []string {
	var out []string
	for _, b := range blocks {
		out = append(out, b.ConditionID)
	}
	return out
}

func TestExtract_Sections(t *testing.T) {
	src := extract(t, sample)

	assert.Equal(t, "effects", src.Package)
	assert.Equal(t, "\"regexp\"\n\"strconv\"\n\"strings\"\n\n\"example.com/game/core\"", src.Imports)
	assert.True(t, strings.HasPrefix(src.Declarations, "healRegex   = regexp.MustCompile("))
	assert.Equal(t, 3, strings.Count(src.Declarations, "\n")+1)
	assert.Empty(t, src.Extras)
	assert.Equal(t, "[]core.Effect{{Type: core.EffectUnknown, Description: text}}", src.Unknown)
}

func TestExtract_Blocks(t *testing.T) {
	src := extract(t, sample)

	require.Equal(t, []string{"healRegex", "drawRegex", "damageRegex"}, ids(src.Blocks))
	assert.Empty(t, src.Skips)

	heal := src.Blocks[0]
	assert.Equal(t, 20, heal.Line)
	assert.Empty(t, heal.Comment, "the leading block has no comment")
	assert.Equal(t, "\t\tamount, err := strconv.Atoi(matches[1])\n\t\tif err == nil {\n\t\t\treturn []core.Effect{{Type: core.EffectHeal, Amount: amount}}\n\t\t}", heal.Body)

	draw := src.Blocks[1]
	assert.Equal(t, 28, draw.Line)
	assert.Equal(t, "// --- Draw ---", draw.Comment)

	damage := src.Blocks[2]
	assert.Equal(t, 33, damage.Line)
	assert.Equal(t, "// --- Damage ---", damage.Comment)
	assert.Contains(t, damage.Body, "if err1 == nil && err2 == nil {")
	for _, b := range src.Blocks {
		assert.Empty(t, b.Notes)
	}
}

func TestExtract_MissingSections(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		section string
	}{
		{"no package", strings.Replace(sample, "package effects", "", 1), SectionPackage},
		{"no imports", strings.Replace(sample, "import (", "const (", 1), SectionImports},
		{"no declarations", strings.Replace(sample, "var (", "const (", 1), SectionDeclarations},
		{"no dispatch function", strings.Replace(sample, "func Parse(text string)", "func Other(text string)", 1), SectionDispatch},
		{"unbalanced dispatch function", strings.TrimSuffix(sample, "}\n"), SectionDispatch},
		{"imports reported before declarations", "package x\n\nfunc Parse(text string) []core.Effect {\n}\n", SectionImports},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := New(config.Default().Profile).Extract(tt.src)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, ErrSectionNotFound))

			var se *SectionError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.section, se.Section)
		})
	}
}

func TestExtract_DuplicateKeepsFirst(t *testing.T) {
	src := extract(t, dispatch(`	if matches := aRegex.FindStringSubmatch(text); matches != nil {
		return []core.Effect{{Description: matches[0]}}
	}
	// --- A again ---
	if aRegex.MatchString(text) {
		return nil
	}
	return nil`))

	require.Equal(t, []string{"aRegex"}, ids(src.Blocks))
	assert.Contains(t, src.Blocks[0].Body, "matches[0]")
	require.Len(t, src.Skips, 1)
	assert.Equal(t, "aRegex", src.Skips[0].ConditionID)
	assert.Equal(t, "duplicate of the rule at line 12", src.Skips[0].Reason)
}

func TestExtract_SkipsWithReasons(t *testing.T) {
	src := extract(t, dispatch(`	x := 1
	if aRegex.MatchString(text) {
		return nil
	} else {
		return nil
	}
	if found := bRegex.FindStringSubmatch(text); found != nil {
		return nil
	}
	if len(text) > 3 {
		return nil
	}
	if plain.MatchString(text) {
		return nil
	}
	return nil
	if cRegex.MatchString(text) {
		return nil
	}`))

	assert.Empty(t, src.Blocks)
	reasons := make([]string, len(src.Skips))
	for i, s := range src.Skips {
		reasons[i] = s.Reason
	}
	assert.Equal(t, []string{
		"not a rule block: x := 1",
		"rule block has an else branch",
		`captured matches bound to "found", want "matches"`,
		"condition is not a matcher call: len(text) > 3",
		`matcher name does not end in "Regex"`,
		"unreachable after the fall-through return: if cRegex.MatchString(text) {",
	}, reasons)
	assert.Equal(t, "nil", src.Unknown)
}

func TestExtract_ExtraCondition(t *testing.T) {
	src := extract(t, dispatch(`	if matches := aRegex.FindStringSubmatch(text); len(matches) > 0 {
		return nil
	}
	if matches := bRegex.FindStringSubmatch(text); matches != nil && matches[1] != "" {
		return nil
	}`))

	require.Len(t, src.Blocks, 2)
	assert.Empty(t, src.Blocks[0].Notes)
	assert.Equal(t, []string{`extra condition "matches != nil && matches[1] != \"\"" not carried over`}, src.Blocks[1].Notes)
	assert.Empty(t, src.Unknown)
}

func TestExtract_NestedBracesAndLiterals(t *testing.T) {
	src := extract(t, dispatch("\tif matches := aRegex.FindStringSubmatch(text); matches != nil {\n" +
		"\t\tif matches[1] == \"}\" {\n" +
		"\t\t\treturn []core.Effect{{Description: `}`}}\n" +
		"\t\t}\n" +
		"\t\t// closing } in a comment\n" +
		"\t\treturn nil\n" +
		"\t}"))

	require.Len(t, src.Blocks, 1)
	assert.True(t, strings.HasSuffix(src.Blocks[0].Body, "\t\treturn nil"))
}

func TestExtract_UnbalancedBlockIsSkipped(t *testing.T) {
	src := extract(t, dispatch(`	if matches := aRegex.FindStringSubmatch(text); matches != nil {
		return f(matches[1]
	}
	if bRegex.MatchString(text) {
		return nil
	}`))

	assert.Equal(t, []string{"bRegex"}, ids(src.Blocks))
	require.Len(t, src.Skips, 1)
	assert.Equal(t, "aRegex", src.Skips[0].ConditionID)
	assert.Contains(t, src.Skips[0].Reason, "unbalanced brackets")

	src = extract(t, dispatch(`	if matches := aRegex.FindStringSubmatch(text); matches != nil {
		return f(matches[1]))
	}
	if bRegex.MatchString(text) {
		return nil
	}`))

	assert.Equal(t, []string{"bRegex"}, ids(src.Blocks))
	require.Len(t, src.Skips, 1)
	assert.Equal(t, "aRegex", src.Skips[0].ConditionID)
}

func TestExtract_KeepsExtras(t *testing.T) {
	src := extract(t, sample+"\n// helper doubles n.\nfunc helper(n int) int {\n\treturn n * 2\n}\n\nconst limit = 3\n")

	assert.Equal(t, []string{
		"// helper doubles n.\nfunc helper(n int) int {\n\treturn n * 2\n}",
		"const limit = 3",
	}, src.Extras)
}

func TestExtract_SingleImport(t *testing.T) {
	src := extract(t, strings.Replace(dispatch("\treturn nil"), "import (\n\t\"regexp\"\n)", "import \"regexp\"\nimport \"strings\"", 1))
	assert.Equal(t, "\"regexp\"\n\"strings\"", src.Imports)
}

func TestExtract_StringConstantBeforeDispatch(t *testing.T) {
	in := strings.Replace(sample, "func Parse(", "const unknownLabel = \"unknown\"\n\nfunc Parse(", 1)
	src := extract(t, in)

	assert.Equal(t, []string{`const unknownLabel = "unknown"`}, src.Extras)
	assert.Equal(t, []string{"healRegex", "drawRegex", "damageRegex"}, ids(src.Blocks))
}

func TestExtract_KeepsDeclarationComment(t *testing.T) {
	in := strings.Replace(sample, "var (", "// REGEX DEFINITIONS\n// One matcher per rule.\nvar (", 1)
	src := extract(t, in)

	assert.Equal(t, "// REGEX DEFINITIONS\n// One matcher per rule.", src.DeclComment)
	assert.Empty(t, src.Extras)
	assert.Empty(t, extract(t, sample).DeclComment)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "x := 1", snippet("  x := 1\ny := 2"))

	long := strings.Repeat("a", 47) + "é rest of the line"
	got := snippet(long)
	assert.Equal(t, strings.Repeat("a", 47)+"...", got)
	assert.True(t, utf8.ValidString(got))

	exact := strings.Repeat("b", 48)
	assert.Equal(t, exact, snippet(exact))
}
