// Package config collects the environment settings of the dse command.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bbque-tools/dse/internal/platform/env"
	"github.com/bbque-tools/dse/internal/platform/logging"
	"github.com/bbque-tools/dse/internal/platform/objectstore"
	"github.com/bbque-tools/dse/internal/platform/postgres"
)

const (
	RuntimeDryRun  = "dryrun"
	RuntimeCommand = "command"
)

type Config struct {
	ParamsFile      string
	OutputDir       string
	LogLevel        string
	Runtime         string
	DaemonBin       string
	DaemonConfig    string
	DaemonReadyFile string
	ReadyTimeout    time.Duration
	WorkloadBin     string
	AwaitTimeout    time.Duration
	StopTimeout     time.Duration
	FailurePercent  int
	RecipeCows      bool
	MetricsTextfile string

	Postgres    postgres.Config
	ObjectStore objectstore.Config
}

func Load() (Config, error) {
	awaitTimeout, err := env.Duration("DSE_AWAIT_TIMEOUT", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	stopTimeout, err := env.Duration("DSE_STOP_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	readyTimeout, err := env.Duration("DSE_DAEMON_READY_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	failurePercent, err := env.Int("DSE_DRYRUN_FAILURE_PERCENT", 0)
	if err != nil {
		return Config{}, err
	}
	cows, err := env.Bool("DSE_RECIPE_COWS", false)
	if err != nil {
		return Config{}, err
	}
	pg, err := postgres.ConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("postgres: %w", err)
	}
	store, err := objectstore.ConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("object store: %w", err)
	}

	cfg := Config{
		ParamsFile:      env.String("DSE_PARAMS", ""),
		OutputDir:       env.String("DSE_OUTPUT_DIR", "outputs"),
		LogLevel:        env.String("DSE_LOG_LEVEL", "error"),
		Runtime:         strings.ToLower(env.String("DSE_RUNTIME", RuntimeCommand)),
		DaemonBin:       env.String("DSE_DAEMON_BIN", "barbeque"),
		DaemonConfig:    env.String("DSE_DAEMON_CONFIG", ""),
		DaemonReadyFile: env.String("DSE_DAEMON_READY_FILE", ""),
		ReadyTimeout:    readyTimeout,
		WorkloadBin:     env.String("DSE_WORKLOAD_BIN", "bbque-testapp"),
		AwaitTimeout:    awaitTimeout,
		StopTimeout:     stopTimeout,
		FailurePercent:  failurePercent,
		RecipeCows:      cows,
		MetricsTextfile: env.String("DSE_METRICS_TEXTFILE", ""),
		Postgres:        pg,
		ObjectStore:     store,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("DSE_OUTPUT_DIR is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("DSE_LOG_LEVEL: %w", err)
	}
	switch c.Runtime {
	case RuntimeDryRun:
	case RuntimeCommand:
		if strings.TrimSpace(c.DaemonBin) == "" {
			return errors.New("DSE_DAEMON_BIN is required for the command runtime")
		}
		if strings.TrimSpace(c.WorkloadBin) == "" {
			return errors.New("DSE_WORKLOAD_BIN is required for the command runtime")
		}
	default:
		return fmt.Errorf("DSE_RUNTIME must be %q or %q, got %q", RuntimeDryRun, RuntimeCommand, c.Runtime)
	}
	if c.AwaitTimeout <= 0 {
		return errors.New("DSE_AWAIT_TIMEOUT must be positive")
	}
	if c.ReadyTimeout <= 0 {
		return errors.New("DSE_DAEMON_READY_TIMEOUT must be positive")
	}
	if c.StopTimeout <= 0 {
		return errors.New("DSE_STOP_TIMEOUT must be positive")
	}
	if c.FailurePercent < 0 || c.FailurePercent > 100 {
		return errors.New("DSE_DRYRUN_FAILURE_PERCENT must be in [0, 100]")
	}
	if err := c.Postgres.Validate(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := c.ObjectStore.Validate(); err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	return nil
}
