package runner

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

const (
	serverKillTimeout      = 10 * time.Second
	shutdownCmdTimeout     = 10 * time.Second
	shutdownMaxRetries     = 5 // 6 attempts total
	shutdownInitialBackoff = 1 * time.Second
)

// serverProcess is a long-running DBMS server started for one iteration.
type serverProcess struct {
	cmd  *exec.Cmd
	done chan error
}

// startServer launches the server command detached from the runner's
// stdio. The server is expected to outlive the workload and be stopped via
// the configured shutdown command.
func startServer(ctx context.Context, command string, env map[string]string) (*serverProcess, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = mergedEnv(env)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	return &serverProcess{cmd: cmd, done: done}, nil
}

// waitOrKill waits for the process to exit after a shutdown command was
// issued; if it does not terminate within the timeout it is killed.
func (p *serverProcess) waitOrKill(clock clockwork.Clock, timeout time.Duration) error {
	select {
	case err := <-p.done:
		return err
	case <-clock.After(timeout):
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill server process: %w", err)
		}
		return <-p.done
	}
}

// shutdownServer issues the shutdown command with exponential backoff. A
// server that cannot be shut down poisons every following iteration, so
// exhausting the retries is a fatal runner error.
func (r *Runner) shutdownServer(ctx context.Context) error {
	opts := append([]backoff.ExponentialBackOffOpts{
		backoff.WithInitialInterval(shutdownInitialBackoff),
		backoff.WithMultiplier(2.0),
		backoff.WithMaxInterval(32 * time.Second),
		backoff.WithRandomizationFactor(0),
	}, r.cfg.ShutdownBackoffOpts...)
	b := backoff.NewExponentialBackOff(opts...)
	bo := backoff.WithContext(backoff.WithMaxRetries(b, shutdownMaxRetries), ctx)

	op := func() error {
		runCtx, cancel := context.WithTimeout(ctx, shutdownCmdTimeout)
		defer cancel()
		_, stderr, err := r.cfg.Commands.Run(runCtx, r.cfg.Fuzz.ShutdownCmd, nil)
		if err != nil {
			r.log.Debug("shutdown command failed, retrying", "error", err, "stderr", stderr)
			return err
		}
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("could not shut down server after repeated retries: %w", err)
	}
	return nil
}

// waitForServerReady polls the readiness command until it exits zero or the
// configured timeout elapses.
func (r *Runner) waitForServerReady(ctx context.Context) bool {
	const pollInterval = 500 * time.Millisecond

	clock := r.cfg.Clock
	started := clock.Now()
	deadline := started.Add(time.Duration(r.cfg.Fuzz.ServerReadyTimeout))
	for {
		if _, _, err := r.cfg.Commands.Run(ctx, r.cfg.Fuzz.CheckReadyCmd, nil); err == nil {
			return true
		}
		if !clock.Now().Add(pollInterval).Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-clock.After(pollInterval):
		}
	}
}
