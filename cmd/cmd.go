package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/rubiojr/ruletab/config"
	"github.com/rubiojr/ruletab/refactor"
	"github.com/rubiojr/ruletab/watch"
)

// defaultConfigFile is read when present and --config is not given.
const defaultConfigFile = "ruletab.yaml"

// Execute runs the ruletab CLI with the given version string.
func Execute(version string) {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := New(version).Run(ctx, os.Args); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// New returns the root command.
func New(version string) *cli.Command {
	return &cli.Command{
		Name:                   "ruletab",
		Usage:                  "Rewrite a rule-dispatch Go file into a table-driven one",
		Version:                version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				Sources: cli.EnvVars("RULETAB_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Rule-dispatch source file",
				Value:   config.DefaultInput,
				Sources: cli.EnvVars("RULETAB_INPUT"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Rewritten output file",
				Value:   config.DefaultOutput,
				Sources: cli.EnvVars("RULETAB_OUTPUT"),
			},
			&cli.BoolFlag{
				Name:    "no-color",
				Aliases: []string{"C"},
				Usage:   "Disable ANSI color output",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log every rule block",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Fail when a rule block is skipped or only partially rewritten",
				Local: true,
			},
			&cli.BoolFlag{
				Name:  "no-format",
				Usage: "Do not run the output through gofmt",
				Local: true,
			},
		},
		Before: setupLogging,
		// `ruletab` alone is `ruletab run`.
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Rewrite the input file and write the output file",
				Flags:  rewriteFlags(),
				Action: runAction,
			},
			{
				Name:   "emit",
				Usage:  "Print the rewritten source without writing it",
				Flags:  rewriteFlags(),
				Action: emitAction,
			},
			{
				Name:   "inspect",
				Usage:  "Show what would happen to every rule block",
				Action: inspectAction,
			},
			{
				Name:  "watch",
				Usage: "Rewrite the input file again whenever it changes",
				Flags: append(rewriteFlags(), &cli.DurationFlag{
					Name:  "debounce",
					Usage: "Quiet period before rerunning after a change",
					Value: watch.DefaultDebounce,
				}),
				Action: watchAction,
			},
		},
	}
}

func rewriteFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Fail when a rule block is skipped or only partially rewritten",
		},
		&cli.BoolFlag{
			Name:  "no-format",
			Usage: "Do not run the output through gofmt",
		},
	}
}

// useColor decides whether stderr gets ANSI colour: never with --no-color
// or NO_COLOR, otherwise only on a terminal.
func useColor(cmd *cli.Command) bool {
	if cmd.Bool("no-color") || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cmd.Bool("verbose") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    !useColor(cmd),
		TimeFormat: time.TimeOnly,
	})
	return ctx, nil
}

// loadConfig layers the configuration: defaults, then the YAML file, then
// environment variables and flags.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("input") || path == "" {
		cfg.Input = cmd.String("input")
	}
	if cmd.IsSet("output") || path == "" {
		cfg.Output = cmd.String("output")
	}
	if cmd.Bool("strict") {
		cfg.Strict = true
	}
	if cmd.Bool("no-format") {
		cfg.Format = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("config", path).Str("input", cfg.Input).Str("output", cfg.Output).Msg("configuration")
	return cfg, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --input)", cmd.Args().First())
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	report, err := refactor.Run(ctx, cfg)
	if report != nil {
		printSummary(cmd, report)
	}
	return err
}

func emitAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, report, err := refactor.Emit(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.Strict && report.Degraded() {
		return fmt.Errorf("%w: %s", refactor.ErrDegraded, report.Summary())
	}
	_, err = os.Stdout.Write(out)
	return err
}

func inspectAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	report, err := refactor.Inspect(ctx, cfg)
	if err != nil {
		return err
	}
	if err := report.WriteTable(os.Stdout); err != nil {
		return err
	}
	printSummary(cmd, report)
	return nil
}

func watchAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	w, err := watch.New(cfg.Input, cmd.Duration("debounce"), func(ctx context.Context) error {
		report, err := refactor.Run(ctx, cfg)
		if report != nil {
			printSummary(cmd, report)
		}
		return err
	})
	if err != nil {
		return err
	}
	log.Info().Str("input", cfg.Input).Msg("watching")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printSummary(cmd *cli.Command, r *refactor.Report) {
	colorOK, colorWarn, colorReset := "\033[32m", "\033[33m", "\033[0m"
	if !useColor(cmd) {
		colorOK, colorWarn, colorReset = "", "", ""
	}
	color := colorOK
	if r.Degraded() {
		color = colorWarn
	}
	dest := ""
	if r.Written {
		dest = " -> " + r.Output
	}
	fmt.Fprintf(os.Stderr, "%s%s: %s%s%s\n", r.Input, dest, color, r.Summary(), colorReset)
}
