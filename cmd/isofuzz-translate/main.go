// isofuzz-translate converts a raw instrumented-server trace into the
// list-append history format consumed by the Elle consistency checker.
//
//	isofuzz-translate [flags] <trace-file> <output-file>
//
// Data-level noise in the trace (malformed lines, incomplete events,
// dangling transactions) is absorbed silently; only I/O failures are
// surfaced, as exit code 1.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/kamiliarsyad/isofuzz/internal/history"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	showVersionFlag := flag.Bool("version", false, "show version and exit")
	verboseFlag := flag.Bool("verbose", false, "verbose mode - show debug logs")
	filterPrefixesFlag := flag.StringSlice("filter-prefix", history.DefaultFilterPrefixes,
		"table name prefixes whose transactions are dropped from the history")
	schemaBoundaryFlag := flag.Bool("schema-boundary", false,
		"match bare filter prefixes only at a schema boundary")
	mutateFlag := flag.Int("mutate", 0, "mutation budget (accepted for driver compatibility; no-op)")
	flag.Parse()

	if *showVersionFlag {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		os.Exit(0)
	}

	log := newLogger(*verboseFlag)

	if flag.NArg() != 2 {
		log.Error("expected exactly two arguments: <trace-file> <output-file>")
		return fmt.Errorf("expected 2 arguments, got %d", flag.NArg())
	}
	tracePath, outputPath := flag.Arg(0), flag.Arg(1)

	if *mutateFlag > 0 {
		log.Warn("mutation budget is recognized but mutation is not implemented here", "budget", *mutateFlag)
	}

	in, err := os.Open(tracePath)
	if err != nil {
		log.Error("failed to open trace file", "path", tracePath, "error", err)
		return err
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		log.Error("failed to create output file", "path", outputPath, "error", err)
		return err
	}

	enc := &history.Encoder{
		FilterPrefixes: *filterPrefixesFlag,
		SchemaBoundary: *schemaBoundaryFlag,
	}
	if err := history.Translate(in, out, enc, history.WithLogger(log)); err != nil {
		out.Close()
		log.Error("failed to translate trace", "path", tracePath, "error", err)
		return err
	}
	if err := out.Close(); err != nil {
		log.Error("failed to finalize output file", "path", outputPath, "error", err)
		return err
	}

	log.Debug("translation complete", "trace", tracePath, "output", outputPath)
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
