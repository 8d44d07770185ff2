// Package refactor runs the whole rewrite: it reads the rule-dispatch
// file, extracts and rewrites its rule blocks, renders the table-driven
// replacement and writes it next to the input.
package refactor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rubiojr/ruletab/assemble"
	"github.com/rubiojr/ruletab/config"
	"github.com/rubiojr/ruletab/extract"
	"github.com/rubiojr/ruletab/rewrite"
)

// ErrDegraded is returned by strict runs when a block was skipped or only
// partially transformed.
var ErrDegraded = errors.New("rewrite degraded")

// Run rewrites cfg.Input into cfg.Output. The output file is replaced
// atomically and only when every stage succeeds. The report is returned
// whenever the input could be decomposed, also on failure.
func Run(ctx context.Context, cfg *config.Config) (*Report, error) {
	out, report, err := Emit(ctx, cfg)
	if err != nil {
		return report, err
	}
	if cfg.Strict && report.Degraded() {
		return report, fmt.Errorf("%w: %s", ErrDegraded, report.Summary())
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if err := writeAtomic(cfg.Output, out); err != nil {
		return report, err
	}
	report.Written = true
	log.Debug().Str("output", cfg.Output).Msg(report.Summary())
	return report, nil
}

// Emit renders the rewritten file without writing it.
func Emit(ctx context.Context, cfg *config.Config) ([]byte, *Report, error) {
	src, err := os.ReadFile(cfg.Input)
	if err != nil {
		return nil, nil, fmt.Errorf("reading input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return Build(cfg, src)
}

// Inspect decomposes and rewrites cfg.Input and reports what would happen
// to every block, without rendering or writing anything.
func Inspect(ctx context.Context, cfg *config.Config) (*Report, error) {
	src, err := os.ReadFile(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, report, err := prepare(cfg, string(src))
	return report, err
}

// Build rewrites src, read from cfg.Input, into the output file content.
func Build(cfg *config.Config, src []byte) ([]byte, *Report, error) {
	ac, report, err := prepare(cfg, string(src))
	if err != nil {
		return nil, report, err
	}
	out, err := assemble.Render(ac, cfg.Format)
	if err != nil {
		return nil, report, err
	}
	return out, report, nil
}

// prepare extracts and rewrites every rule block of src.
func prepare(cfg *config.Config, src string) (*assemble.Context, *Report, error) {
	p := cfg.Profile
	source, err := extract.New(p).Extract(src)
	if err != nil {
		log.Debug().Err(err).Str("input", cfg.Input).Msg("extraction failed")
		return nil, nil, fmt.Errorf("extracting %s: %w", cfg.Input, err)
	}

	report := &Report{Input: cfg.Input, Output: cfg.Output}
	for _, s := range source.Skips {
		report.Outcomes = append(report.Outcomes, Outcome{
			ConditionID: s.ConditionID,
			Line:        s.Line,
			Status:      Skipped,
			Reasons:     []string{s.Reason},
		})
	}

	rw := rewrite.New(p)
	names := make(map[string]string) // folded handler name -> matcher
	var handlers []*rewrite.Handler
	for _, b := range source.Blocks {
		h := rw.Rewrite(b)
		folded := strings.ToLower(h.Name)
		if other, ok := names[folded]; ok {
			report.Outcomes = append(report.Outcomes, Outcome{
				ConditionID: b.ConditionID,
				Line:        b.Line,
				Status:      Skipped,
				Reasons:     []string{fmt.Sprintf("handler name %s collides with the handler of %s", h.Name, other)},
			})
			continue
		}
		names[folded] = b.ConditionID
		handlers = append(handlers, h)

		o := Outcome{
			ConditionID: b.ConditionID,
			Line:        b.Line,
			Status:      Transformed,
			Handler:     h.Name,
			Strategy:    h.Strategy,
			Guards:      h.Guards,
			MinMatches:  h.MinMatches,
		}
		if h.Fallback() {
			o.Status = Fallback
			o.Reasons = h.Notes
		}
		report.Outcomes = append(report.Outcomes, o)
	}
	sort.SliceStable(report.Outcomes, func(i, j int) bool {
		return report.Outcomes[i].Line < report.Outcomes[j].Line
	})

	for _, o := range report.Outcomes {
		ev := log.Debug()
		if o.Status != Transformed {
			ev = log.Warn()
		}
		ev.Int("line", o.Line).
			Str("matcher", o.ConditionID).
			Str("status", o.Status.String()).
			Strs("reasons", o.Reasons).
			Msg("rule block")
	}

	return &assemble.Context{
		Source:       filepath.Base(cfg.Input),
		Package:      source.Package,
		Imports:      source.Imports,
		Declarations: source.Declarations,
		DeclComment:  source.DeclComment,
		Handlers:     handlers,
		Extras:       source.Extras,
		Unknown:      source.Unknown,
		Profile:      p,
	}, report, nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place. The temporary file is removed on every failure path.
func writeAtomic(path string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err = f.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}
