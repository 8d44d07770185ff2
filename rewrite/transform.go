package rewrite

import (
	"fmt"
	"strconv"

	"github.com/rubiojr/ruletab/extract"
	"github.com/rubiojr/ruletab/scanner"
	"github.com/rubiojr/ruletab/stmt"
)

// Handler is a rewritten rule block, ready for assembly.
type Handler struct {
	Name        string
	ConditionID string
	Comment     string
	// Body is the handler body, indented one level.
	Body     string
	Strategy Strategy
	// Guards is the number of guard clauses inserted after fallible calls.
	Guards int
	// MinMatches is the length required by the bounds check, 0 if none.
	MinMatches int
	// Notes explain degraded rewrites. A handler with notes is a fallback.
	Notes []string
}

// Fallback reports whether the block was only partially transformed.
func (h *Handler) Fallback() bool { return len(h.Notes) > 0 }

// Rewrite classifies and transforms a rule block into a handler.
func (r *Rewriter) Rewrite(b extract.RuleBlock) *Handler {
	c := r.Classify(b.Body)
	body, guards, minLen := r.Transform(c)
	notes := append(append([]string(nil), b.Notes...), c.Notes...)
	return &Handler{
		Name:        HandlerName(b.ConditionID, r.profile.MatcherSuffix, r.profile.HandlerPrefix),
		ConditionID: b.ConditionID,
		Comment:     b.Comment,
		Body:        body,
		Strategy:    c.Strategy,
		Guards:      guards,
		MinMatches:  minLen,
		Notes:       notes,
	}
}

// Transform renders a classified body as a handler body. Guard strategies
// get a failure guard after every fallible call and have their success
// block hoisted; every body gets a bounds check when it indexes the
// captured matches and ends with exactly one top-level return. The result
// is indented one tab. It also returns the number of guards inserted and
// the bound of the bounds check (0 when there is none).
func (r *Rewriter) Transform(c Classified) (string, int, int) {
	guarded := c.Strategy != Bare
	isBinding := make(map[int]Binding, len(c.Bindings))
	for _, b := range c.Bindings {
		isBinding[b.Stmt] = b
	}

	var out []stmt.Stmt
	guards := 0
	for i, s := range c.Stmts {
		if guarded && i == c.GuardStmt {
			out = append(out, stmt.Split(stmt.Dedent(c.Guard.Body))...)
			continue
		}
		out = append(out, s)
		if b, ok := isBinding[i]; ok && guarded {
			out = append(out, r.failure("if "+b.ErrVar+" != nil"))
			guards++
		}
	}

	// Statements after a top-level return never run.
	for i, s := range out {
		if s.IsReturn() {
			out = out[:i+1]
			break
		}
	}
	if len(out) == 0 || !out[len(out)-1].IsReturn() {
		out = append(out, stmt.Stmt{Text: "return " + r.profile.FailureValue})
	}

	text := stmt.Join(out)
	minLen := 0
	if idx := r.matchIndexes(text); len(idx) > 0 {
		minLen = maxOf(idx) + 1
		guard := r.failure(fmt.Sprintf("if len(%s) < %d", r.profile.MatchesVar, minLen))
		text = guard.Text + "\n" + text
	}

	text = stmt.StripBlankLines(text)
	return stmt.Indent(text, "\t"), guards, minLen
}

// failure builds "<cond> { return <failure> }".
func (r *Rewriter) failure(cond string) stmt.Stmt {
	return stmt.Stmt{Text: cond + " {\n\treturn " + r.profile.FailureValue + "\n}"}
}

// matchIndexes returns every position of the captured matches indexed in
// code (not in comments or string literals) in src.
func (r *Rewriter) matchIndexes(src string) []int {
	mask := scanner.CodeMask(src)
	var idx []int
	for _, loc := range r.matchesRef.FindAllStringSubmatchIndex(src, -1) {
		if !mask[loc[0]] {
			continue
		}
		n, err := strconv.Atoi(src[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		idx = append(idx, n)
	}
	return idx
}

func maxOf(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
