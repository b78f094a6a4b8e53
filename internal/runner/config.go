package runner

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"
)

const (
	defaultIterations         = 100
	defaultLogDir             = "./fuzz_logs"
	defaultServerReadyTimeout = 30 * time.Second
	defaultSeed               = 42
	defaultMaxMutateBudget    = 16
)

// Duration decodes "30s"-style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the fuzz run configuration file. The command fields are raw
// shell strings and may carry arguments; the runner appends its own dynamic
// arguments (log paths, budgets) where noted.
type Config struct {
	// ServerCmd starts the instrumented DBMS server. It runs with
	// RANDOM_SEED and OUT_FILE in its environment and stays up for the whole
	// iteration.
	ServerCmd string `yaml:"server-cmd"`
	// ElleCmd is the consistency checker prefix; the runner appends the
	// history path and an output --directory.
	ElleCmd string `yaml:"elle-cmd"`
	// TranslateCmd is the trace translator prefix; the runner appends the
	// trace path, the output path, and optionally --mutate <budget>.
	TranslateCmd string `yaml:"translate-cmd"`
	// WorkloadCmd drives randomized load against the server; the runner
	// appends -L <dir> for per-iteration workload logs.
	WorkloadCmd string `yaml:"workload-cmd"`
	// ShutdownCmd stops the server between iterations.
	ShutdownCmd string `yaml:"shutdown-cmd"`
	// CheckReadyCmd exits zero once the server accepts connections.
	CheckReadyCmd string `yaml:"check-ready-cmd"`

	Iterations         int      `yaml:"iterations"`
	LogDir             string   `yaml:"log-dir"`
	ServerReadyTimeout Duration `yaml:"server-ready-timeout"`
	Seed               int64    `yaml:"seed"`

	// Mutation amplification of clean iterations.
	Mutate          bool `yaml:"mutate"`
	MaxMutateBudget int  `yaml:"max-mutate-budget"`
}

func (c *Config) Validate() error {
	if c.ServerCmd == "" {
		return errors.New("server-cmd is required")
	}
	if c.ElleCmd == "" {
		return errors.New("elle-cmd is required")
	}
	if c.TranslateCmd == "" {
		return errors.New("translate-cmd is required")
	}
	if c.WorkloadCmd == "" {
		return errors.New("workload-cmd is required")
	}
	if c.ShutdownCmd == "" {
		return errors.New("shutdown-cmd is required")
	}
	if c.CheckReadyCmd == "" {
		return errors.New("check-ready-cmd is required")
	}

	if c.Iterations == 0 {
		c.Iterations = defaultIterations
	}
	if c.Iterations < 0 {
		return errors.New("iterations must be > 0")
	}
	if c.LogDir == "" {
		c.LogDir = defaultLogDir
	}
	if c.ServerReadyTimeout == 0 {
		c.ServerReadyTimeout = Duration(defaultServerReadyTimeout)
	}
	if c.ServerReadyTimeout < 0 {
		return errors.New("server-ready-timeout must be > 0")
	}
	if c.Seed == 0 {
		c.Seed = defaultSeed
	}
	if c.MaxMutateBudget == 0 {
		c.MaxMutateBudget = defaultMaxMutateBudget
	}
	if c.MaxMutateBudget < 0 {
		return errors.New("max-mutate-budget must be > 0")
	}
	return nil
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// RunnerConfig bundles the file configuration with injected dependencies.
type RunnerConfig struct {
	Clock    clockwork.Clock
	Commands CommandRunner
	Fuzz     *Config

	// ShutdownBackoffOpts override the shutdown retry schedule.
	ShutdownBackoffOpts []backoff.ExponentialBackOffOpts
}

func (c *RunnerConfig) Validate() error {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Commands == nil {
		c.Commands = &ShellCommandRunner{}
	}
	if c.Fuzz == nil {
		return errors.New("fuzz config is required")
	}
	return c.Fuzz.Validate()
}
