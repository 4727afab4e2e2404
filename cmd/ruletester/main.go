// Package main implements the ruletester command, which checks YAML rule test
// suites the way the rule tester would before running them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/715d/ruletester/internal/harness"
	"github.com/715d/ruletester/pkg/engine"
)

// Config holds the command-line options.
type Config struct {
	Roots   []string // directories searched for suites
	Verbose bool     // enables debug logging
	JSON    bool     // prints normalized suites as JSON
	NoColor bool     // disables colored status labels
	Profile bool     // writes cpu.prof and mem.prof
}

const (
	exitInvalidFound = 1
	exitError        = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cfg := &Config{}
	err := newRootCmd(cfg).Execute()
	if err != nil {
		_ = teardown(cfg)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
	}
	os.Exit(exitCode(err))
}

func newRootCmd(cfg *Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ruletester [dirs...]",
		Short: "Check rule test suites",
		Long: `ruletester finds suite.yaml files below the given directories and checks
them without running any rule:

- the rule must exist
- the suite parser must be one of the allow-listed parsers
- no test case may set its parser to an allow-listed parser

Type-aware suites (parser_options.project set) get tests/fixtures/file.ts
inside the suite directory as the filename of cases without one.`,
		Example: `  ruletester                    # Check suites under ./testdata
  ruletester ./rules ./more    # Check suites under several roots
  ruletester --json . > s.json # Print normalized suites`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		// main prints the error.
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setup(cfg)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return teardown(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), cmd.OutOrStdout(), cfg, args)
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("ruletester version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&cfg.NoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	return rootCmd
}

func runCommand(ctx context.Context, w io.Writer, cfg *Config, args []string) error {
	cfg.Roots = args
	if len(cfg.Roots) == 0 {
		cfg.Roots = []string{"testdata"}
	}

	slog.Info("checking suites", "roots", cfg.Roots)

	results, err := checkSuites(ctx, cfg.Roots)
	if err != nil {
		return errWithCode(fmt.Errorf("check suites: %w", err), exitError)
	}

	if cfg.JSON {
		err = writeJSON(w, results)
	} else {
		err = writeText(w, results)
	}
	if err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}

	for _, r := range results {
		if !r.Success() {
			return errWithCode(nil, exitInvalidFound)
		}
	}
	return nil
}

// result is a checked suite and the root it was found under.
type result struct {
	*harness.CheckResult
	root string
}

// name is the suite directory as given on the command line.
func (r result) name() string {
	return filepath.Join(r.root, r.Suite.Dir)
}

func checkSuites(ctx context.Context, roots []string) ([]result, error) {
	start := time.Now()

	var found []result
	for _, root := range roots {
		dirs, err := harness.DiscoverSuites(root)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			found = append(found, result{root: root, CheckResult: &harness.CheckResult{
				Suite: &harness.Suite{Path: dir},
			}})
		}
	}
	slog.Info("discovered suites", "num", len(found))

	// Each goroutine writes only its own element of found.
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range found {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			dir := found[i].Suite.Path
			s, err := harness.LoadSuite(dir, found[i].root)
			if err != nil {
				return fmt.Errorf("load suite %s: %w", dir, err)
			}
			found[i].CheckResult = harness.Check(s)
			slog.Debug("checked suite",
				"suite", s.DisplayName(),
				"rule", s.Rule,
				"default_filename", found[i].DefaultFilename,
				"ok", found[i].Success())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("check completed", "dur", time.Since(start))
	return found, nil
}

func writeText(w io.Writer, results []result) error {
	okLabel := color.New(color.FgGreen).Sprint("ok  ")
	failLabel := color.New(color.FgRed, color.Bold).Sprint("FAIL")

	failed := 0
	for _, r := range results {
		var err error
		if r.Success() {
			_, err = fmt.Fprintf(w, "%s %s (%d valid, %d invalid)\n",
				okLabel, r.name(), len(r.Normalized.Valid), len(r.Normalized.Invalid))
		} else {
			failed++
			_, err = fmt.Fprintf(w, "%s %s: %v\n", failLabel, r.name(), r.Err)
		}
		if err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "%d suites, %d failed\n", len(results), failed)
	return err
}

func writeJSON(w io.Writer, results []result) error {
	suites := make([]jSuite, 0, len(results))
	for _, r := range results {
		s := jSuite{
			Dir:             r.name(),
			Rule:            r.Suite.Rule,
			Parser:          r.Suite.Config.Parser,
			DefaultFilename: r.DefaultFilename,
		}
		if r.Success() {
			s.Normalized = &r.Normalized
		} else {
			s.Error = r.Err.Error()
		}
		suites = append(suites, s)
	}

	data, err := json.MarshalIndent(jOutput{
		Suites:    suites,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

type jOutput struct {
	Suites    []jSuite `json:"suites"`
	Version   string   `json:"version"`
	Timestamp string   `json:"timestamp"`
}

type jSuite struct {
	Dir             string           `json:"dir"`
	Rule            string           `json:"rule"`
	Parser          string           `json:"parser"`
	DefaultFilename string           `json:"default_filename,omitempty"`
	Normalized      *engine.RunTests `json:"normalized,omitempty"`
	Error           string           `json:"error,omitempty"`
}

var cpuProfile *os.File

func setup(cfg *Config) error {
	if cfg.NoColor {
		color.NoColor = true
	}

	// Logs are discarded unless verbose.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	}

	if !cfg.Profile {
		return nil
	}

	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		cpuProfile = nil
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(cfg *Config) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	defer func() {
		_ = cpuProfile.Close()
		cpuProfile = nil
	}()

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

// exitCode maps an error returned by the root command to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var cErr *codedError
	if errors.As(err, &cErr) {
		return cErr.code
	}
	return exitError
}

func errWithCode(err error, code int) error {
	return &codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e *codedError) Unwrap() error {
	return e.err
}
