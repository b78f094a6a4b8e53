// Package runner drives the fuzzing loop: it supervises the instrumented
// DBMS server, applies randomized workloads, hands the captured trace to the
// translator, invokes the Elle consistency checker, and classifies every
// iteration as clean, violation, realtime-only violation, or error.
//
// The translator, checker, and workload generator are external binaries
// configured as shell command prefixes; the runner treats their nonzero
// exits as iteration-level errors and keeps fuzzing.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/kamiliarsyad/isofuzz/internal/metrics"
)

type Runner struct {
	log *slog.Logger
	cfg *RunnerConfig
	rng *rand.Rand

	state *runState
}

func NewRunner(log *slog.Logger, cfg *RunnerConfig) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		log:   log,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Fuzz.Seed)),
		state: newRunState(cfg.Clock.Now()),
	}, nil
}

// Run executes the configured number of fuzz iterations. It returns early
// on context cancellation, when a run directory cannot be created, or when
// the server can no longer be shut down; other per-iteration failures are
// recorded as ERROR and fuzzing continues.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.cfg.Fuzz
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r.log.Info("runner: starting",
		"iterations", cfg.Iterations,
		"logDir", cfg.LogDir,
		"seed", cfg.Seed,
		"mutate", cfg.Mutate,
	)

	for i := 0; i < cfg.Iterations; i++ {
		if ctx.Err() != nil {
			r.log.Info("runner: context done, stopping", "reason", ctx.Err())
			return nil
		}

		seed := r.rng.Uint32()
		started := r.cfg.Clock.Now()
		class, mutations, err := r.iteration(ctx, i, seed)
		if err != nil {
			return err
		}
		metrics.IterationsTotal.WithLabelValues(string(class)).Inc()
		metrics.IterationDuration.Observe(r.cfg.Clock.Since(started).Seconds())

		if class == ClassViolation {
			r.log.Info("runner: VIOLATION found", "iteration", i, "seed", seed, "mutations", mutations)
		}
		r.updateSummary(i, class, seed, mutations)
	}

	r.printStats(os.Stdout)
	return nil
}

// iteration runs one full fuzz cycle. The returned error is fatal for the
// whole run; recoverable failures surface as ClassError instead.
func (r *Runner) iteration(ctx context.Context, i int, seed uint32) (Classification, int, error) {
	runDir := filepath.Join(r.cfg.Fuzz.LogDir, fmt.Sprintf("run_%04d", i))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return ClassError, 0, fmt.Errorf("failed to create run directory: %w", err)
	}

	rawLog, err := r.runServerWorkload(ctx, runDir, i, seed)
	if err != nil {
		if ctx.Err() != nil {
			return ClassError, 0, ctx.Err()
		}
		var fatal *fatalError
		if errors.As(err, &fatal) {
			return ClassError, 0, fatal.err
		}
		r.log.Warn("runner: iteration failed before trace capture", "iteration", i, "error", err)
		return ClassError, 0, nil
	}

	class, mutations := r.processTrace(ctx, rawLog, runDir, i)
	return class, mutations, nil
}

// fatalError marks failures that must abort the whole run.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

// runServerWorkload starts the server, waits for readiness, applies the
// workload, and shuts the server back down. It returns the path to the raw
// trace the instrumented server wrote.
func (r *Runner) runServerWorkload(ctx context.Context, runDir string, i int, seed uint32) (string, error) {
	cfg := r.cfg.Fuzz
	rawLog := filepath.Join(runDir, fmt.Sprintf("out_raw_%d.log", i))

	server, err := startServer(ctx, cfg.ServerCmd, map[string]string{
		"RANDOM_SEED": fmt.Sprintf("%d", seed),
		"OUT_FILE":    rawLog,
	})
	if err != nil {
		return "", err
	}

	var workloadErr error
	func() {
		defer func() {
			if err := r.shutdownServer(ctx); err != nil {
				workloadErr = &fatalError{err: err}
				return
			}
			if err := server.waitOrKill(r.cfg.Clock, serverKillTimeout); err != nil {
				r.log.Warn("runner: server did not terminate gracefully", "iteration", i, "error", err)
			}
		}()

		waitStart := r.cfg.Clock.Now()
		if !r.waitForServerReady(ctx) {
			workloadErr = fmt.Errorf("server did not become ready within %s", time.Duration(cfg.ServerReadyTimeout))
			return
		}
		metrics.ServerReadyWait.Observe(r.cfg.Clock.Since(waitStart).Seconds())

		workloadCmd := fmt.Sprintf("%s -L %s", cfg.WorkloadCmd,
			filepath.Join(runDir, fmt.Sprintf("workload_output_%d", i)))
		_, stderr, err := r.cfg.Commands.Run(ctx, workloadCmd, map[string]string{
			"RANDOM_SEED": fmt.Sprintf("%d", seed),
		})
		if err != nil {
			workloadErr = fmt.Errorf("workload failed: %w (stderr: %s)", err, stderr)
		}
	}()

	if workloadErr != nil {
		return "", workloadErr
	}
	return rawLog, nil
}

// processTrace translates the raw trace, checks the history, and if the
// iteration came back clean optionally amplifies it by re-translating under
// growing mutation budgets. The second return value is the number of
// mutation rounds attempted.
func (r *Runner) processTrace(ctx context.Context, rawLog, runDir string, i int) (Classification, int) {
	cfg := r.cfg.Fuzz
	ednPath := filepath.Join(runDir, fmt.Sprintf("out_translated_%d.edn", i))
	elleDir := filepath.Join(runDir, fmt.Sprintf("elle_output_%d", i))

	if err := r.translate(ctx, rawLog, ednPath, 0); err != nil {
		r.log.Warn("runner: translator failed", "iteration", i, "error", err)
		return ClassError, 0
	}

	class, err := r.elleCheck(ctx, ednPath, elleDir)
	if err != nil {
		r.log.Warn("runner: checker failed", "iteration", i, "error", err)
		return ClassError, 0
	}
	if class != ClassOK || !cfg.Mutate {
		return class, 0
	}

	mutations := 0
	for budget := 1; budget <= cfg.MaxMutateBudget; budget *= 2 {
		mutations++
		mutEdnPath := filepath.Join(runDir, fmt.Sprintf("out_mutated_%d_%d.edn", i, mutations))
		mutElleDir := filepath.Join(runDir, fmt.Sprintf("elle_mutated_%d_%d", i, mutations))

		if err := r.translate(ctx, rawLog, mutEdnPath, budget); err != nil {
			r.log.Warn("runner: mutator failed", "iteration", i, "budget", budget, "error", err)
			return ClassError, mutations
		}
		class, err = r.elleCheck(ctx, mutEdnPath, mutElleDir)
		if err != nil {
			r.log.Warn("runner: checker failed on mutated history", "iteration", i, "budget", budget, "error", err)
			return ClassError, mutations
		}
		if class == ClassViolation {
			metrics.MutationsToViolation.Observe(float64(mutations))
			return class, mutations
		}
	}
	return class, mutations
}

func (r *Runner) translate(ctx context.Context, tracePath, ednPath string, mutateBudget int) error {
	cmd := fmt.Sprintf("%s %s %s", r.cfg.Fuzz.TranslateCmd, tracePath, ednPath)
	if mutateBudget > 0 {
		cmd = fmt.Sprintf("%s --mutate %d", cmd, mutateBudget)
	}
	_, stderr, err := r.cfg.Commands.Run(ctx, cmd, nil)
	if err != nil {
		return fmt.Errorf("%w (stderr: %s)", err, stderr)
	}
	return nil
}

// elleCheck invokes the consistency checker on a history file and classifies
// its verdict. The checker's combined output is preserved in the anomaly
// directory for later inspection.
func (r *Runner) elleCheck(ctx context.Context, ednPath, outDir string) (Classification, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ClassError, err
	}
	cmd := fmt.Sprintf("%s %s --directory %s", r.cfg.Fuzz.ElleCmd, ednPath, outDir)
	stdout, stderr, err := r.cfg.Commands.Run(ctx, cmd, nil)
	output := stdout + stderr
	if writeErr := os.WriteFile(filepath.Join(outDir, elleResultFile), []byte(output), 0o644); writeErr != nil {
		return ClassError, writeErr
	}
	if err != nil {
		return ClassError, fmt.Errorf("checker failed: %w", err)
	}
	return classifyElleOutput(output, outDir)
}
