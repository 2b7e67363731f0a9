package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bbque-tools/dse/internal/config"
	"github.com/bbque-tools/dse/internal/dse/driver"
	"github.com/bbque-tools/dse/internal/dse/validate"
	"github.com/bbque-tools/dse/internal/platform/logging"
	"github.com/bbque-tools/dse/internal/platform/metrics"
	"github.com/bbque-tools/dse/internal/platform/objectstore"
	"github.com/bbque-tools/dse/internal/platform/postgres"
	"github.com/bbque-tools/dse/internal/recipe"
	"github.com/bbque-tools/dse/internal/runlog"
	"github.com/bbque-tools/dse/internal/runtimeexec"
)

const (
	debugLogName = "dse.log"
	runLogName   = "runs.ndjson"
)

func explore(cmd *cobra.Command, opts *rootOptions, mode exploreMode) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, params, err := loadInputs(opts)
	if err != nil {
		return err
	}
	// Nothing under the output directory is touched for a bad parameter set.
	if err := validate.Validate(params); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer closeLog()

	runID := uuid.NewString()
	exploration := metrics.NewExploration(runID)

	controller, err := newController(cfg, logger)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	sink, closeSinks, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	d, err := driver.New(params, controller, recipe.NewFileEmitter(filepath.Join(cfg.OutputDir, "recipes")), sink,
		driver.WithRunID(runID),
		driver.WithLogger(logger),
		driver.WithProgress(cmd.OutOrStdout()),
		driver.WithMetrics(exploration),
		driver.WithDebug(mode.debug),
		driver.WithSinglePoint(mode.singlePoint),
		driver.WithExtraSupport(cfg.RecipeCows),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Starting the exploration")
	summary, runErr := d.Run(ctx)
	if cfg.MetricsTextfile != "" {
		if err := exploration.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Error("write metrics", "path", cfg.MetricsTextfile, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	fmt.Fprintln(out)
	printCounts(out, summary.Progress, "performed")
	return nil
}

// newLogger builds the console logger and, when withFile is set, the JSON
// debug log under the output directory.
func newLogger(cfg config.Config, console io.Writer, withFile bool) (*slog.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	if !withFile {
		return logging.New(console, level, nil), func() {}, nil
	}
	f, err := os.Create(filepath.Join(cfg.OutputDir, debugLogName))
	if err != nil {
		return nil, nil, fmt.Errorf("create debug log: %w", err)
	}
	return logging.New(console, level, f), func() { _ = f.Close() }, nil
}

func newController(cfg config.Config, logger *slog.Logger) (runtimeexec.Controller, error) {
	switch cfg.Runtime {
	case config.RuntimeDryRun:
		return runtimeexec.NewDryRunController(float64(cfg.FailurePercent) / 100), nil
	case config.RuntimeCommand:
		return runtimeexec.NewCommandController(runtimeexec.CommandConfig{
			DaemonBin:    cfg.DaemonBin,
			LayoutPath:   cfg.DaemonConfig,
			ReadyFile:    cfg.DaemonReadyFile,
			ReadyTimeout: cfg.ReadyTimeout,
			WorkloadBin:  cfg.WorkloadBin,
			OutputDir:    cfg.OutputDir,
			AwaitTimeout: cfg.AwaitTimeout,
			StopTimeout:  cfg.StopTimeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown runtime %q", cfg.Runtime)
	}
}

// openSinks always writes the NDJSON run log and adds the Postgres and
// object store sinks when enabled. The uploader goes last so it archives
// the run log after its summary line is written.
func openSinks(ctx context.Context, cfg config.Config, logger *slog.Logger) (runlog.Sink, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	runLogPath := filepath.Join(cfg.OutputDir, runLogName)
	ndjson, err := runlog.NewNDJSONSink(runLogPath)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() { _ = ndjson.Release() })
	sinks := runlog.Multi{ndjson}

	if cfg.Postgres.Enabled {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open run database: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		store := runlog.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		sinks = append(sinks, store)
		logger.Info("run records mirrored to postgres")
	}

	if cfg.ObjectStore.Enabled {
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		archive, err := objectstore.Open(startupCtx, cfg.ObjectStore)
		cancel()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("object store unavailable: %w", err)
		}
		uploader, err := runlog.NewObjectUploader(archive, runLogPath, filepath.Join(cfg.OutputDir, debugLogName))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sinks = append(sinks, uploader)
		logger.Info("run logs archived to object store", "bucket", cfg.ObjectStore.Bucket)
	}
	return sinks, cleanup, nil
}
