// Package extract locates the sections of a rule-dispatch source file and
// pulls the rule blocks out of its dispatch function.
//
// A rule block is a top-level if statement of the dispatch function whose
// condition runs a matcher against the input:
//
//	// --- Heal ---
//	if matches := healRegex.FindStringSubmatch(text); matches != nil {
//		...
//	}
//
// Block boundaries come from bracket matching (see package scanner), so
// bodies may nest blocks to any depth.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rubiojr/ruletab/config"
	"github.com/rubiojr/ruletab/scanner"
	"github.com/rubiojr/ruletab/stmt"
)

// Section names reported by SectionError.
const (
	SectionPackage      = "package clause"
	SectionImports      = "import list"
	SectionDeclarations = "declarations"
	SectionDispatch     = "dispatch function"
)

// ErrSectionNotFound is wrapped by every SectionError.
var ErrSectionNotFound = errors.New("section not found")

// SectionError reports a required top-level section that could not be
// located. Nothing can be rewritten without it.
type SectionError struct {
	Section string
	Detail  string
}

func (e *SectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s not found", e.Section)
	}
	return fmt.Sprintf("%s not found: %s", e.Section, e.Detail)
}

func (e *SectionError) Unwrap() error { return ErrSectionNotFound }

// RuleBlock is one rule of the dispatch function.
type RuleBlock struct {
	// ConditionID is the matcher identifier ("healRegex").
	ConditionID string
	// Body is the block's inner text with its original indentation.
	Body string
	// Comment holds the comment lines directly preceding the block.
	Comment string
	// Line is the 1-based line of the block's if statement.
	Line int
	// Notes record conditions of the block header that were not carried
	// over to the handler.
	Notes []string
}

// Skip is a statement of the dispatch function that produced no rule.
type Skip struct {
	ConditionID string
	Line        int
	Reason      string
}

// Source is the decomposed input file.
type Source struct {
	Package string
	// Imports is the import list content, one spec per line, unindented.
	Imports string
	// Declarations is the content of the first var block, unindented.
	Declarations string
	// DeclComment holds the comment lines preceding the var block.
	DeclComment string
	// Extras are other top-level declarations, verbatim with their comments.
	Extras []string
	// Blocks are the rule blocks in source order, one per condition.
	Blocks []RuleBlock
	Skips  []Skip
	// Unknown is the dispatch function's fall-through return expression,
	// empty when it has none.
	Unknown string
}

// Extractor splits source files written under a profile's conventions.
type Extractor struct {
	profile    config.Profile
	signature  *regexp.Regexp
	header     *regexp.Regexp
	trim       *regexp.Regexp
	plainTails map[string]bool
}

const ident = `[\pL_][\pL\pN_]*`

// New returns an Extractor for the given profile.
func New(p config.Profile) *Extractor {
	in := regexp.QuoteMeta(p.InputParam)
	m := regexp.QuoteMeta(p.MatchesVar)
	return &Extractor{
		profile:   p,
		signature: regexp.MustCompile(`^` + p.DispatchSignature().String()),
		header: regexp.MustCompile(`^(?:(` + ident + `)\s*:=\s*)?(` + ident + `)\.(FindStringSubmatch|MatchString)\(\s*` +
			in + `\s*\)\s*(?:;\s*)?(.*)$`),
		trim: regexp.MustCompile(`^` + in + `\s*=\s*strings\.TrimSpace\(\s*` + in + `\s*\)$`),
		plainTails: map[string]bool{
			"":                    true,
			"!= nil":              true,
			m + " != nil":         true,
			"len(" + m + ") > 0":  true,
			"len(" + m + ") != 0": true,
			"len(" + m + ") >= 1": true,
		},
	}
}

// Extract decomposes src. It fails with a *SectionError when a required
// section is missing.
func (e *Extractor) Extract(src string) (*Source, error) {
	out := &Source{}
	var (
		pending       []string
		haveImports   bool
		haveDecls     bool
		dispatchBody  string
		dispatchLine  int
		dispatchFound bool
		dispatchErr   string
	)

	for _, s := range stmt.Split(src) {
		text := s.Trimmed()
		switch {
		case s.Comment:
			pending = append(pending, text)
			continue
		case hasKeyword(text, "package"):
			out.Package = strings.TrimSpace(strings.TrimPrefix(text, "package "))
		case hasKeyword(text, "import"):
			specs, ok := parenContent(text, "import")
			if !ok {
				out.Extras = append(out.Extras, withComments(pending, text))
				break
			}
			if out.Imports != "" && specs != "" {
				out.Imports += "\n"
			}
			out.Imports += specs
			haveImports = true
		case !haveDecls && isGroup(text, "var"):
			decls, _ := parenContent(text, "var")
			out.Declarations = decls
			out.DeclComment = strings.Join(pending, "\n")
			haveDecls = true
		case !dispatchFound && e.signature.MatchString(text):
			b, ok := stmt.ParseBlock(s.Text)
			if !ok && s.Err != nil && !errors.Is(s.Err, stmt.ErrUnterminated) {
				// A stray closer inside one rule; the rule itself is
				// skipped later.
				b, ok = stmt.ParseTrailingBlock(s.Text)
			}
			if !ok {
				dispatchErr = "unbalanced braces"
				if s.Err != nil {
					dispatchErr = s.Err.Error()
				}
				out.Extras = append(out.Extras, withComments(pending, text))
				break
			}
			dispatchBody = b.Body
			dispatchLine = s.Line + strings.Count(b.Head, "\n") + 1
			dispatchFound = true
		default:
			out.Extras = append(out.Extras, withComments(pending, s.Text))
		}
		pending = nil
	}
	if len(pending) > 0 {
		out.Extras = append(out.Extras, strings.Join(pending, "\n"))
	}

	switch {
	case out.Package == "":
		return nil, &SectionError{Section: SectionPackage}
	case !haveImports:
		return nil, &SectionError{Section: SectionImports, Detail: "no import declaration"}
	case !haveDecls:
		return nil, &SectionError{Section: SectionDeclarations, Detail: "no var ( ... ) block"}
	case !dispatchFound:
		detail := fmt.Sprintf("no func %s(%s string) %s", e.profile.DispatchFunc, e.profile.InputParam, e.profile.ResultType)
		if dispatchErr != "" {
			detail = dispatchErr
		}
		return nil, &SectionError{Section: SectionDispatch, Detail: detail}
	}

	e.extractBlocks(out, dispatchBody, dispatchLine)
	return out, nil
}

// extractBlocks walks the dispatch function body statement by statement.
func (e *Extractor) extractBlocks(out *Source, body string, firstLine int) {
	seen := make(map[string]int)
	var comments []string
	returned := false

	for _, s := range stmt.Split(body) {
		line := firstLine + s.Line - 1
		text := s.Trimmed()
		if s.Comment {
			comments = append(comments, text)
			continue
		}
		comment := strings.Join(comments, "\n")
		comments = nil

		if returned {
			out.Skips = append(out.Skips, Skip{Line: line, Reason: "unreachable after the fall-through return: " + snippet(text)})
			continue
		}
		if s.Err != nil {
			// Drop the error's line prefix, which is relative to the body.
			_, detail, _ := strings.Cut(s.Err.Error(), ": ")
			out.Skips = append(out.Skips, Skip{ConditionID: e.guessID(text), Line: line, Reason: "unbalanced brackets: " + detail})
			continue
		}
		if e.trim.MatchString(text) {
			continue
		}
		if s.IsReturn() {
			out.Unknown = dedentTail(strings.TrimSpace(strings.TrimPrefix(text, "return")))
			returned = true
			continue
		}

		ifs, ok := stmt.ParseIf(text)
		if !ok {
			out.Skips = append(out.Skips, Skip{Line: line, Reason: "not a rule block: " + snippet(text)})
			continue
		}
		m := e.header.FindStringSubmatch(ifs.Cond)
		if m == nil {
			out.Skips = append(out.Skips, Skip{Line: line, Reason: "condition is not a matcher call: " + snippet(ifs.Cond)})
			continue
		}
		bound, id, tail := m[1], m[2], strings.TrimSpace(m[4])

		switch {
		case !strings.HasSuffix(id, e.profile.MatcherSuffix) || id == e.profile.MatcherSuffix:
			out.Skips = append(out.Skips, Skip{ConditionID: id, Line: line,
				Reason: fmt.Sprintf("matcher name does not end in %q", e.profile.MatcherSuffix)})
		case bound != "" && bound != e.profile.MatchesVar:
			out.Skips = append(out.Skips, Skip{ConditionID: id, Line: line,
				Reason: fmt.Sprintf("captured matches bound to %q, want %q", bound, e.profile.MatchesVar)})
		case ifs.Else:
			out.Skips = append(out.Skips, Skip{ConditionID: id, Line: line, Reason: "rule block has an else branch"})
		case seen[id] > 0:
			out.Skips = append(out.Skips, Skip{ConditionID: id, Line: line,
				Reason: fmt.Sprintf("duplicate of the rule at line %d", seen[id])})
		default:
			seen[id] = line
			rb := RuleBlock{ConditionID: id, Body: ifs.Body, Comment: comment, Line: line}
			if !e.plainTails[tail] {
				rb.Notes = append(rb.Notes, fmt.Sprintf("extra condition %q not carried over", tail))
			}
			out.Blocks = append(out.Blocks, rb)
		}
	}
}

// guessID pulls a matcher identifier out of a malformed rule header.
func (e *Extractor) guessID(text string) string {
	first, _, _ := strings.Cut(text, "\n")
	first = strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(first, "if")), "{")
	if m := e.header.FindStringSubmatch(strings.TrimSpace(first)); m != nil {
		return m[2]
	}
	return ""
}

// hasKeyword reports whether text starts with the keyword followed by a
// space or an opening parenthesis.
func hasKeyword(text, keyword string) bool {
	rest, ok := strings.CutPrefix(text, keyword)
	return ok && rest != "" && (rest[0] == ' ' || rest[0] == '\t' || rest[0] == '(')
}

// isGroup reports whether text is a parenthesised declaration group of the
// given keyword ("var (").
func isGroup(text, keyword string) bool {
	rest, ok := strings.CutPrefix(text, keyword)
	return ok && strings.HasPrefix(strings.TrimSpace(rest), "(")
}

// parenContent returns the unindented content of "keyword ( ... )", or the
// single spec of "keyword spec".
func parenContent(text, keyword string) (string, bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(text, keyword))
	if rest == "" {
		return "", false
	}
	if rest[0] != '(' {
		return rest, true
	}
	closePos := scanner.MatchingClose(rest, 0)
	if closePos < 0 || strings.TrimSpace(rest[closePos+1:]) != "" {
		return "", false
	}
	inner := strings.Trim(rest[1:closePos], "\n")
	return strings.TrimSpace(stmt.Dedent(inner)), true
}

// dedentTail keeps the first line of s and removes the common indentation
// of the remaining ones.
func dedentTail(s string) string {
	first, rest, ok := strings.Cut(s, "\n")
	if !ok {
		return s
	}
	return first + "\n" + stmt.Dedent(rest)
}

func withComments(comments []string, text string) string {
	if len(comments) == 0 {
		return text
	}
	return strings.Join(comments, "\n") + "\n" + strings.TrimSpace(text)
}

// snippet returns the first line of s, cut to at most 48 bytes on a rune
// boundary.
func snippet(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	if len(s) <= 48 {
		return s
	}
	n := 48
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
