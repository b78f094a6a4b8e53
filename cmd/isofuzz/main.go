// isofuzz is the fuzz driver: it repeatedly boots the instrumented DBMS
// server, applies a randomized workload, translates the captured trace, and
// runs the Elle consistency checker over the result.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kamiliarsyad/isofuzz/internal/metrics"
	"github.com/kamiliarsyad/isofuzz/internal/runner"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "isofuzz",
		Short:        "Isolation-anomaly fuzzer for transactional databases.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	rootCmd.AddCommand(
		newFuzzCmd(&verbose),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newFuzzCmd(verbose *bool) *cobra.Command {
	var (
		configPath  string
		iterations  int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Run the fuzzing loop described by a config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(*verbose)

			cfg, err := runner.LoadConfig(configPath)
			if err != nil {
				log.Error("failed to load config", "path", configPath, "error", err)
				return err
			}
			if iterations > 0 {
				cfg.Iterations = iterations
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
				go func() {
					listener, err := net.Listen("tcp", metricsAddr)
					if err != nil {
						log.Error("failed to start prometheus metrics listener", "error", err)
						os.Exit(1)
					}
					log.Info("prometheus metrics server listening", "address", listener.Addr().String())
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					if err := http.Serve(listener, mux); err != nil {
						log.Error("failed to serve prometheus metrics", "error", err)
						os.Exit(1)
					}
				}()
			}

			r, err := runner.NewRunner(log, &runner.RunnerConfig{
				Clock: clockwork.NewRealClock(),
				Fuzz:  cfg,
			})
			if err != nil {
				log.Error("failed to create runner", "error", err)
				return err
			}
			if err := r.Run(ctx); err != nil {
				log.Error("fuzzing run failed", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "isofuzz.yaml", "path to the fuzz run config file")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 0, "override the configured iteration count")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (disabled when empty)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		},
	}
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
