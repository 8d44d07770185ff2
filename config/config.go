// Package config holds the run configuration for ruletab: where to read
// and write, and the naming conventions of the rule-dispatch file being
// rewritten.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default file locations, relative to the working directory.
const (
	DefaultInput  = "parser.go"
	DefaultOutput = "parser_refactored.go"
)

// Config is the configuration of a single run.
type Config struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	// Format runs the rendered output through gofmt.
	Format bool `yaml:"format"`
	// Strict fails the run when any rule block was skipped or only
	// partially transformed.
	Strict  bool    `yaml:"strict"`
	Profile Profile `yaml:"profile"`
}

// Profile describes the conventions of the generated source file.
type Profile struct {
	// DispatchFunc is the name of the rule-dispatch function.
	DispatchFunc string `yaml:"dispatch_func"`
	// InputParam is the name of the dispatch function's string parameter.
	InputParam string `yaml:"input_param"`
	// ResultType is the dispatch function's result type.
	ResultType string `yaml:"result_type"`
	// MatcherSuffix ends every matcher identifier ("healRegex").
	MatcherSuffix string `yaml:"matcher_suffix"`
	// HandlerPrefix starts every generated handler name ("parseHeal").
	HandlerPrefix string `yaml:"handler_prefix"`
	// MatchesVar is the name of the captured-matches slice.
	MatchesVar string `yaml:"matches_var"`
	// FailureValue is returned by guard clauses.
	FailureValue string `yaml:"failure_value"`
	// UnknownResult is returned by the dispatch function when no rule
	// produces a result and the source has no fall-through return of its
	// own. The input parameter is in scope.
	UnknownResult string `yaml:"unknown_result"`
	// FallibleCalls lists the functions whose (value, err) results are
	// guarded.
	FallibleCalls []string `yaml:"fallible_calls"`
	// TableType and TableVar name the generated dispatch table.
	TableType string `yaml:"table_type"`
	TableVar  string `yaml:"table_var"`
}

// Default returns the configuration matching the effect parser layout.
func Default() *Config {
	return &Config{
		Input:  DefaultInput,
		Output: DefaultOutput,
		Format: true,
		Profile: Profile{
			DispatchFunc:  "Parse",
			InputParam:    "text",
			ResultType:    "[]core.Effect",
			MatcherSuffix: "Regex",
			HandlerPrefix: "parse",
			MatchesVar:    "matches",
			FailureValue:  "nil",
			UnknownResult: "[]core.Effect{{Type: core.EffectUnknown, Description: text}}",
			FallibleCalls: []string{
				"strconv.Atoi",
				"strconv.ParseInt",
				"strconv.ParseUint",
				"strconv.ParseFloat",
				"strconv.ParseBool",
			},
			TableType: "effectParser",
			TableVar:  "effectParsers",
		},
	}
}

// Load returns the default configuration overlaid with the YAML file at
// path. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads environment variables from the given .env files (".env"
// when none are given). Missing files are not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", f, err)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("loading env: %w", err)
	}
	return nil
}

var identRe = regexp.MustCompile(`^[\pL_][\pL\pN_]*$`)

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.New("input path is empty")
	}
	if c.Output == "" {
		return errors.New("output path is empty")
	}
	if sameFile(c.Input, c.Output) {
		return fmt.Errorf("output %s would overwrite the input", c.Output)
	}
	return c.Profile.Validate()
}

// Validate checks that every name in the profile is usable in generated
// code.
func (p *Profile) Validate() error {
	idents := []struct{ field, value string }{
		{"dispatch_func", p.DispatchFunc},
		{"input_param", p.InputParam},
		{"matcher_suffix", p.MatcherSuffix},
		{"handler_prefix", p.HandlerPrefix},
		{"matches_var", p.MatchesVar},
		{"table_type", p.TableType},
		{"table_var", p.TableVar},
	}
	for _, id := range idents {
		if !identRe.MatchString(id.value) {
			return fmt.Errorf("profile.%s: %q is not an identifier", id.field, id.value)
		}
	}
	if p.InputParam == p.MatchesVar {
		return fmt.Errorf("profile: input_param and matches_var are both %q", p.InputParam)
	}
	// Locals of the generated dispatch loop.
	for _, name := range []string{p.InputParam, p.MatchesVar} {
		if name == "entry" || name == "result" {
			return fmt.Errorf("profile: %q is reserved for the dispatch function", name)
		}
	}
	if strings.TrimSpace(p.ResultType) == "" {
		return errors.New("profile.result_type is empty")
	}
	if strings.TrimSpace(p.FailureValue) == "" {
		return errors.New("profile.failure_value is empty")
	}
	if strings.TrimSpace(p.UnknownResult) == "" {
		return errors.New("profile.unknown_result is empty")
	}
	for _, call := range p.FallibleCalls {
		if strings.TrimSpace(call) == "" {
			return errors.New("profile.fallible_calls contains an empty entry")
		}
	}
	return nil
}

// DispatchSignature returns the pattern matching the dispatch function's
// signature up to (not including) its opening brace.
func (p *Profile) DispatchSignature() *regexp.Regexp {
	return regexp.MustCompile(`func\s+` + regexp.QuoteMeta(p.DispatchFunc) +
		`\s*\(\s*` + regexp.QuoteMeta(p.InputParam) + `\s+string\s*\)\s*` +
		spaced(p.ResultType) + `\s*\{`)
}

// spaced quotes s for a regexp, allowing arbitrary whitespace wherever s
// has whitespace.
func spaced(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(fields, `\s+`)
}

func sameFile(a, b string) bool {
	ai, errA := os.Stat(a)
	bi, errB := os.Stat(b)
	if errA == nil && errB == nil {
		return os.SameFile(ai, bi)
	}
	return a == b
}
