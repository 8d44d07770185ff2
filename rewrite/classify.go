// Package rewrite turns rule block bodies into handler bodies: it
// classifies each body by shape, converts nested success blocks into
// early-return guard clauses, and adds the bounds check and terminal
// return every handler needs.
package rewrite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rubiojr/ruletab/config"
	"github.com/rubiojr/ruletab/stmt"
)

// Strategy is the rewrite applied to a body.
type Strategy int

const (
	// Bare bodies get only the bounds check and terminal return.
	Bare Strategy = iota
	// SingleGuard bodies bind one fallible call and nest the real logic in
	// a block conditioned on its success.
	SingleGuard
	// MultiGuard bodies bind several fallible calls and nest the real logic
	// in one block conditioned on all of them succeeding.
	MultiGuard
)

func (s Strategy) String() string {
	switch s {
	case SingleGuard:
		return "single-guard"
	case MultiGuard:
		return "multi-guard"
	}
	return "bare"
}

// Binding is a top-level "v, err := call(...)" statement.
type Binding struct {
	// Stmt is the index of the statement in Classified.Stmts.
	Stmt   int
	ErrVar string
	Call   string
}

// Classified is a body split into statements together with the shape
// found in it.
type Classified struct {
	Strategy Strategy
	// Stmts are the body's top-level statements, unindented.
	Stmts    []stmt.Stmt
	Bindings []Binding
	// GuardStmt is the index of the success-conditioned block, -1 if none.
	GuardStmt int
	Guard     stmt.If
	// UsesMatches is true when the body indexes the captured matches.
	UsesMatches bool
	// Notes explain why a body with fallible calls fell back to Bare.
	Notes []string
}

// Rewriter classifies and transforms bodies under a profile.
type Rewriter struct {
	profile     config.Profile
	binding     *regexp.Regexp
	successTerm *regexp.Regexp
	failGuard   *regexp.Regexp
	matchesRef  *regexp.Regexp
}

const ident = `[\pL_][\pL\pN_]*`

// New returns a Rewriter for the given profile.
func New(p config.Profile) *Rewriter {
	calls := make([]string, len(p.FallibleCalls))
	for i, c := range p.FallibleCalls {
		calls[i] = regexp.QuoteMeta(strings.TrimSpace(c))
	}
	callAlt := `$^` // matches nothing when no call is configured
	if len(calls) > 0 {
		callAlt = strings.Join(calls, "|")
	}
	return &Rewriter{
		profile:     p,
		binding:     regexp.MustCompile(`^` + ident + `(?:\s*,\s*` + ident + `)*\s*,\s*(` + ident + `)\s*:=\s*(` + callAlt + `)\(`),
		successTerm: regexp.MustCompile(`^(` + ident + `)\s*==\s*nil$`),
		failGuard:   regexp.MustCompile(`^if\s+(` + ident + `)\s*!=\s*nil\s*\{`),
		matchesRef:  regexp.MustCompile(`\b` + regexp.QuoteMeta(p.MatchesVar) + `\[\s*(\d+)\s*\]`),
	}
}

// Classify splits body into statements and decides its strategy. Bodies
// matching no known shape are Bare; when such a body binds fallible calls
// the reason is recorded in Notes.
func (r *Rewriter) Classify(body string) Classified {
	c := Classified{
		Stmts:     stmt.Split(stmt.Dedent(body)),
		GuardStmt: -1,
	}
	c.UsesMatches = len(r.matchIndexes(body)) > 0

	bound := make(map[string]int) // err var -> binding statement
	for i, s := range c.Stmts {
		if s.Comment {
			continue
		}
		if m := r.binding.FindStringSubmatch(s.Trimmed()); m != nil {
			c.Bindings = append(c.Bindings, Binding{Stmt: i, ErrVar: m[1], Call: m[2]})
			bound[m[1]] = i
		}
	}
	if len(c.Bindings) == 0 {
		return c
	}

	type candidate struct {
		index int
		ifs   stmt.If
		terms []string
	}
	var guards []candidate
	for i, s := range c.Stmts {
		if s.Comment || s.Err != nil {
			continue
		}
		ifs, ok := stmt.ParseIf(s.Text)
		if !ok || ifs.Else {
			continue
		}
		if terms, ok := r.successTerms(ifs.Cond); ok {
			guards = append(guards, candidate{index: i, ifs: ifs, terms: terms})
		}
	}

	switch len(guards) {
	case 0:
		if !r.alreadyGuarded(c) {
			c.Notes = append(c.Notes, "fallible calls without a recognised success guard")
		}
		return c
	case 1:
	default:
		c.Notes = append(c.Notes, fmt.Sprintf("%d success guards, want one", len(guards)))
		return c
	}

	g := guards[0]
	seen := make(map[string]bool)
	for _, v := range g.terms {
		idx, ok := bound[v]
		switch {
		case !ok:
			c.Notes = append(c.Notes, fmt.Sprintf("success guard checks %s, which no fallible call binds", v))
			return c
		case idx > g.index:
			c.Notes = append(c.Notes, fmt.Sprintf("success guard checks %s before it is bound", v))
			return c
		case seen[v]:
			c.Notes = append(c.Notes, fmt.Sprintf("success guard checks %s twice", v))
			return c
		}
		seen[v] = true
	}

	switch {
	case len(c.Bindings) == 1 && len(g.terms) == 1:
		c.Strategy = SingleGuard
	case len(c.Bindings) >= 2 && len(g.terms) >= 2:
		c.Strategy = MultiGuard
	default:
		c.Notes = append(c.Notes, fmt.Sprintf("success guard checks %d of %d fallible calls", len(g.terms), len(c.Bindings)))
		return c
	}
	c.GuardStmt = g.index
	c.Guard = g.ifs
	return c
}

// successTerms splits "a == nil && b == nil" into its variables.
func (r *Rewriter) successTerms(cond string) ([]string, bool) {
	var vars []string
	for _, term := range stmt.SplitTopLevel(cond, "&&") {
		m := r.successTerm.FindStringSubmatch(term)
		if m == nil {
			return nil, false
		}
		vars = append(vars, m[1])
	}
	return vars, len(vars) > 0
}

// alreadyGuarded reports whether every binding is directly followed by an
// "if err != nil" guard on its error variable.
func (r *Rewriter) alreadyGuarded(c Classified) bool {
	for _, b := range c.Bindings {
		next := b.Stmt + 1
		if next >= len(c.Stmts) {
			return false
		}
		m := r.failGuard.FindStringSubmatch(c.Stmts[next].Trimmed())
		if m == nil || m[1] != b.ErrVar {
			return false
		}
	}
	return true
}
