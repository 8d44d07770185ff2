// Package assemble renders the rewritten rule-dispatch file: the kept
// boilerplate sections, a dispatch table pairing every matcher with its
// handler, a table-driven dispatch function and the handlers themselves.
package assemble

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"
	"text/template"

	"github.com/rubiojr/ruletab/config"
	"github.com/rubiojr/ruletab/rewrite"
	"github.com/rubiojr/ruletab/stmt"
)

// Context is everything the output file is built from.
type Context struct {
	// Source names the input file in the generated header.
	Source       string
	Package      string
	Imports      string
	Declarations string
	// DeclComment is printed above the var block.
	DeclComment string
	// Handlers in dispatch order.
	Handlers []*rewrite.Handler
	// Extras are top-level declarations of the input kept verbatim.
	Extras []string
	// Unknown is the fall-through result expression. Empty selects the
	// profile's UnknownResult.
	Unknown string
	Profile config.Profile
}

// FormatError is returned when the rendered output is not valid Go.
// Source holds the unformatted output.
type FormatError struct {
	Err    error
	Source []byte
}

func (e *FormatError) Error() string { return fmt.Sprintf("formatting output: %v", e.Err) }

func (e *FormatError) Unwrap() error { return e.Err }

// requiredImports are used by the generated dispatch code.
var requiredImports = []string{"regexp", "strings"}

const fileTemplate = `// Code generated by ruletab from {{.Source}}. DO NOT EDIT.

package {{.Package}}

import (
{{indent .Imports}}
)

{{if .DeclComment}}{{.DeclComment}}
{{end}}var (
{{indent .Declarations}}
)

// {{.P.TableType}} pairs a matcher with the handler parsing its matches.
type {{.P.TableType}} struct {
	regex   *regexp.Regexp
	handler func({{.P.MatchesVar}} []string, {{.P.InputParam}} string) {{.P.ResultType}}
}

// {{.P.TableVar}} lists every rule in dispatch order. The first handler
// returning a result wins.
var {{.P.TableVar}} = []{{.P.TableType}}{
{{- range .Handlers}}
	{regex: {{.ConditionID}}, handler: {{.Name}}},
{{- end}}
}

// {{.P.DispatchFunc}} runs {{.P.InputParam}} through {{.P.TableVar}} and returns the result of
// the first rule that produces one.
func {{.P.DispatchFunc}}({{.P.InputParam}} string) {{.P.ResultType}} {
	{{.P.InputParam}} = strings.TrimSpace({{.P.InputParam}})

	for _, entry := range {{.P.TableVar}} {
		if {{.P.MatchesVar}} := entry.regex.FindStringSubmatch({{.P.InputParam}}); {{.P.MatchesVar}} != nil {
			if result := entry.handler({{.P.MatchesVar}}, {{.P.InputParam}}); {{.NonEmpty}} {
				return result
			}
		}
	}

	return {{.Unknown}}
}
{{range .Handlers}}
{{if .Comment}}{{.Comment}}
{{end}}func {{.Name}}({{$.P.MatchesVar}} []string, {{$.P.InputParam}} string) {{$.P.ResultType}} {
{{.Body}}
}
{{end}}
{{- range .Extras}}
{{.}}
{{end}}`

var fileTmpl = template.Must(template.New("file").Funcs(template.FuncMap{
	"indent": func(s string) string { return stmt.Indent(s, "\t") },
}).Parse(fileTemplate))

type fileData struct {
	*Context
	P        config.Profile
	NonEmpty string
}

// Render produces the output file. With gofmt set the result is passed
// through go/format, and a *FormatError is returned when that fails.
func Render(c *Context, gofmt bool) ([]byte, error) {
	cc := *c
	cc.Imports = WithImports(c.Imports, requiredImports...)
	cc.Unknown = indentTail(c.Unknown)
	if cc.Unknown == "" {
		cc.Unknown = indentTail(c.Profile.UnknownResult)
	}
	data := fileData{
		Context:  &cc,
		P:        c.Profile,
		NonEmpty: nonEmpty("result", c.Profile.ResultType),
	}

	var buf bytes.Buffer
	if err := fileTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering output: %w", err)
	}
	if !gofmt {
		return buf.Bytes(), nil
	}
	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, &FormatError{Err: err, Source: buf.Bytes()}
	}
	return formatted, nil
}

// WithImports adds the given import paths to an import list (one spec per
// line) unless an unaliased spec for them is already present.
func WithImports(imports string, paths ...string) string {
	have := make(map[string]bool)
	for _, line := range strings.Split(imports, "\n") {
		have[strings.TrimSpace(line)] = true
	}
	var missing []string
	for _, p := range paths {
		spec := `"` + p + `"`
		if !have[spec] {
			missing = append(missing, spec)
		}
	}
	if len(missing) == 0 {
		return imports
	}
	if strings.TrimSpace(imports) == "" {
		return strings.Join(missing, "\n")
	}
	return strings.Join(missing, "\n") + "\n" + imports
}

// nonEmpty is the condition the dispatch function uses to accept a
// handler result.
func nonEmpty(v, resultType string) string {
	t := strings.TrimSpace(resultType)
	if strings.HasPrefix(t, "[]") || strings.HasPrefix(t, "map[") {
		return "len(" + v + ") > 0"
	}
	return v + " != nil"
}

// indentTail indents every line of s but the first by one tab.
func indentTail(s string) string {
	first, rest, ok := strings.Cut(s, "\n")
	if !ok {
		return s
	}
	return first + "\n" + stmt.Indent(rest, "\t")
}
