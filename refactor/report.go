package refactor

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rubiojr/ruletab/rewrite"
)

// Status is what happened to one statement of the dispatch function.
type Status int

const (
	// Transformed blocks became handlers with their full rewrite applied.
	Transformed Status = iota
	// Fallback blocks became handlers, but part of the rewrite could not be
	// applied. Reasons say which.
	Fallback
	// Skipped statements produced no handler.
	Skipped
)

func (s Status) String() string {
	switch s {
	case Fallback:
		return "fallback"
	case Skipped:
		return "skipped"
	}
	return "transformed"
}

// Outcome reports one rule block, or one statement of the dispatch
// function that was not a usable rule block.
type Outcome struct {
	ConditionID string
	Line        int
	Status      Status
	// Handler is the generated handler name, empty when skipped.
	Handler    string
	Strategy   rewrite.Strategy
	Guards     int
	MinMatches int
	Reasons    []string
}

// Report summarises a run.
type Report struct {
	Input  string
	Output string
	// Outcomes are in source order.
	Outcomes []Outcome
	// Written is true once the output file is in place.
	Written bool
}

// Count returns the number of outcomes with the given status.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Degraded reports whether any block was skipped or only partially
// transformed.
func (r *Report) Degraded() bool {
	return r.Count(Fallback) > 0 || r.Count(Skipped) > 0
}

// Summary is a one-line count of the outcomes.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d handlers, %d transformed, %d fallback, %d skipped",
		r.Count(Transformed)+r.Count(Fallback), r.Count(Transformed), r.Count(Fallback), r.Count(Skipped))
}

// WriteTable prints the outcomes as an aligned table.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tMATCHER\tHANDLER\tSTATUS\tSTRATEGY\tGUARDS\tBOUND\tNOTES")
	for _, o := range r.Outcomes {
		id, handler, strategy, guards, bound := dash(o.ConditionID), dash(o.Handler), "-", "-", "-"
		if o.Status != Skipped {
			strategy = o.Strategy.String()
			guards = fmt.Sprint(o.Guards)
			if o.MinMatches > 0 {
				bound = fmt.Sprint(o.MinMatches)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Line, id, handler, o.Status, strategy, guards, bound, strings.Join(o.Reasons, "; "))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
