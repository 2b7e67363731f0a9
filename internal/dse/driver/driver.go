// Package driver runs a design-space exploration: it validates the
// parameters, walks every design point, discards infeasible ones and drives
// the runtime through one start/configure/launch/await/stop cycle per
// remaining point.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bbque-tools/dse/internal/domain"
	"github.com/bbque-tools/dse/internal/dse/prune"
	"github.com/bbque-tools/dse/internal/dse/space"
	"github.com/bbque-tools/dse/internal/dse/validate"
	"github.com/bbque-tools/dse/internal/platform/metrics"
	"github.com/bbque-tools/dse/internal/recipe"
	"github.com/bbque-tools/dse/internal/runlog"
	"github.com/bbque-tools/dse/internal/runtimeexec"
)

const (
	ModeFull           = "full"
	ModeSinglePoint    = "single-point"
	ModeComplexityHard = "complexity-hard"
)

// Driver owns the exploration state. It is not safe for concurrent use;
// the runtime is a singleton and points run strictly one after another.
type Driver struct {
	params       domain.Parameters
	controller   runtimeexec.Controller
	emitter      recipe.Emitter
	sink         runlog.Sink
	logger       *slog.Logger
	progressOut  io.Writer
	metrics      *metrics.Exploration
	now          func() time.Time
	runID        string
	singlePoint  bool
	complexity   bool
	debug        bool
	extraSupport bool

	state    domain.DriverState
	progress domain.Progress
	records  []domain.RunRecord
}

type Option func(*Driver)

// WithSinglePoint restricts execution to the reference point.
func WithSinglePoint(enabled bool) Option {
	return func(d *Driver) { d.singlePoint = enabled }
}

// WithComplexityOnly enumerates and prunes without touching the runtime.
// Accepted points are counted as executed.
func WithComplexityOnly(enabled bool) Option {
	return func(d *Driver) { d.complexity = enabled }
}

// WithDebug forwards the debug flag to every workload launch.
func WithDebug(enabled bool) Option {
	return func(d *Driver) { d.debug = enabled }
}

// WithExtraSupport adds the optional plugin block to generated recipes.
func WithExtraSupport(enabled bool) Option {
	return func(d *Driver) { d.extraSupport = enabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithProgress draws a progress bar on w after every visited point.
func WithProgress(w io.Writer) Option {
	return func(d *Driver) { d.progressOut = w }
}

func WithMetrics(m *metrics.Exploration) Option {
	return func(d *Driver) { d.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithRunID fixes the exploration id instead of generating one.
func WithRunID(id string) Option {
	return func(d *Driver) { d.runID = id }
}

func New(params domain.Parameters, controller runtimeexec.Controller, emitter recipe.Emitter, sink runlog.Sink, opts ...Option) (*Driver, error) {
	d := &Driver{
		params:     params.Clone(),
		controller: controller,
		emitter:    emitter,
		sink:       sink,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
		state:      domain.DriverStateInit,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sink == nil {
		d.sink = runlog.Discard{}
	}
	if !d.complexity {
		if d.controller == nil {
			return nil, errors.New("runtime controller is required")
		}
		if d.emitter == nil {
			return nil, errors.New("recipe emitter is required")
		}
	}
	if d.runID == "" {
		d.runID = uuid.NewString()
	}
	return d, nil
}

func (d *Driver) RunID() string { return d.runID }

func (d *Driver) State() domain.DriverState { return d.state }

func (d *Driver) Progress() domain.Progress { return d.progress }

// Records returns the run records appended so far.
func (d *Driver) Records() []domain.RunRecord {
	return append([]domain.RunRecord(nil), d.records...)
}

func (d *Driver) mode() string {
	switch {
	case d.complexity:
		return ModeComplexityHard
	case d.singlePoint:
		return ModeSinglePoint
	default:
		return ModeFull
	}
}

// Run explores the whole space once. Only a validation failure, a space
// too large to count, or context cancellation between points return an
// error; per-point failures are recorded and the loop continues.
func (d *Driver) Run(ctx context.Context) (domain.Summary, error) {
	if d.state != domain.DriverStateInit {
		return domain.Summary{}, fmt.Errorf("driver already in state %s", d.state)
	}
	summary := domain.Summary{RunID: d.runID, Mode: d.mode(), StartedAt: d.now().UTC()}

	if err := validate.Validate(d.params); err != nil {
		d.logger.Error("parameter validation failed", "error", err)
		d.transition(domain.DriverStateDone)
		return summary, err
	}
	total, err := space.Size(d.params)
	if err != nil {
		d.transition(domain.DriverStateDone)
		return summary, err
	}
	d.progress = domain.Progress{Total: total}
	d.records = nil
	if d.metrics != nil {
		d.metrics.SetSpace(total)
	}
	d.logger.Info("exploration started",
		"run_id", d.runID,
		"mode", summary.Mode,
		"points", total,
		"runtime", d.controllerKind(),
	)

	var runErr error
	it := space.Enumerate(d.params)
	d.transition(domain.DriverStateEnumerating)
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		point, ok := it.Next()
		if !ok {
			break
		}
		d.logger.Debug("design point", "point", point.String())

		d.transition(domain.DriverStatePruning)
		decision := prune.Accept(point, d.params, d.singlePoint)
		if !decision.Accept {
			d.skip(point, decision)
			d.transition(domain.DriverStateEnumerating)
			continue
		}

		if d.complexity {
			d.progress.Executed++
			d.transition(domain.DriverStateEnumerating)
			continue
		}

		d.transition(domain.DriverStateExecuting)
		record := d.execute(ctx, point, int(d.progress.Executed)+1)
		d.progress.Executed++
		if record.Status == domain.RunStatusFailed {
			d.progress.Failed++
		}
		d.records = append(d.records, record)
		if err := d.sink.Append(ctx, record); err != nil {
			d.logger.Error("append run record", "seq", record.Sequence, "error", err)
		}
		d.transition(domain.DriverStateEnumerating)
		drawProgress(d.progressOut, d.progress)
	}
	d.transition(domain.DriverStateDone)
	if d.progressOut != nil && !d.complexity {
		fmt.Fprintln(d.progressOut)
	}

	summary.Progress = d.progress
	summary.FinishedAt = d.now().UTC()
	if err := d.sink.Close(context.WithoutCancel(ctx), summary); err != nil {
		d.logger.Error("close run log", "error", err)
	}
	d.logger.Info("exploration finished",
		"run_id", d.runID,
		"executed", d.progress.Executed,
		"skipped", d.progress.Skipped,
		"failed", d.progress.Failed,
		"total", d.progress.Total,
	)
	return summary, runErr
}

func (d *Driver) skip(point domain.DesignPoint, decision prune.Decision) {
	d.progress.Skipped++
	reason, _ := decision.Reason()
	d.logger.Warn("invalid point", "point", point.String(), "rule", reason.Rule, "reason", reason.Message)
	if d.metrics != nil {
		d.metrics.Skipped(string(reason.Rule))
	}
	if !d.complexity {
		drawProgress(d.progressOut, d.progress)
	}
}

// execute runs one accepted point. The runtime is stopped on every path,
// including a failed Start.
func (d *Driver) execute(ctx context.Context, point domain.DesignPoint, seq int) (record domain.RunRecord) {
	label := point.String()
	record = domain.RunRecord{
		ID:        uuid.NewString(),
		RunID:     d.runID,
		Sequence:  seq,
		Point:     point,
		Label:     label,
		Status:    domain.RunStatusSucceeded,
		StartedAt: d.now().UTC(),
	}
	d.logger.Debug("test started", "seq", seq, "point", label)

	defer func() {
		if err := d.controller.Stop(context.WithoutCancel(ctx)); err != nil {
			terr := &TeardownError{Label: label, Err: err}
			record.TeardownError = terr.Error()
			d.logger.Error("runtime teardown failed; later points may be contaminated", "seq", seq, "error", terr)
			if d.metrics != nil {
				d.metrics.TeardownFailed()
			}
		}
		record.FinishedAt = d.now().UTC()
		if d.metrics != nil {
			d.metrics.Executed(record.Status == domain.RunStatusFailed, record.FinishedAt.Sub(record.StartedAt).Seconds())
		}
		d.logger.Debug("test ended", "seq", seq, "status", record.Status)
	}()

	handle, err := d.launch(ctx, point, label, seq)
	if handle.LogRef != "" {
		record.LogRef = handle.LogRef
	}
	if err == nil {
		if awaitErr := d.controller.Await(ctx, handle); awaitErr != nil {
			err = &ExecutionError{Phase: PhaseAwait, Label: label, Err: awaitErr}
		}
	}
	if err != nil {
		record.Status = domain.RunStatusFailed
		record.Error = err.Error()
		d.logger.Warn("test failed", "seq", seq, "point", label, "error", err)
	}
	return record
}

func (d *Driver) launch(ctx context.Context, point domain.DesignPoint, label string, seq int) (runtimeexec.Handle, error) {
	layout := runtimeexec.LayoutFor(point, d.params)
	if err := d.controller.Start(ctx, layout, d.params); err != nil {
		return runtimeexec.Handle{}, &ExecutionError{Phase: PhaseStart, Label: label, Err: err}
	}
	if err := d.controller.Configure(ctx, layout, d.params); err != nil {
		return runtimeexec.Handle{}, &ExecutionError{Phase: PhaseConfigure, Label: label, Err: err}
	}

	bundle := runtimeexec.Bundle{Apps: make([]runtimeexec.AppLaunch, 0, d.params.AppCount)}
	for app := range d.params.AppCount {
		name := fmt.Sprintf("application_%d", app)
		path, err := d.emitter.CreateRecipe(name, app, point.Modes[app], point.MinResource[app], d.params.DomainCapacity, d.extraSupport)
		if err != nil {
			return runtimeexec.Handle{}, &ExecutionError{Phase: PhaseRecipe, Label: label, Err: err}
		}
		bundle.Apps = append(bundle.Apps, runtimeexec.AppLaunch{
			Name:        name,
			Priority:    app,
			Instances:   point.Instances[app],
			Modes:       point.Modes[app],
			MinResource: point.MinResource[app],
			MaxResource: point.MaxResource[app],
			RecipePath:  path,
		})
	}

	handle, err := d.controller.Launch(ctx, bundle, label, seq, d.debug)
	if err != nil {
		return runtimeexec.Handle{}, &ExecutionError{Phase: PhaseLaunch, Label: label, Err: err}
	}
	return handle, nil
}

func (d *Driver) controllerKind() string {
	if d.controller == nil {
		return "none"
	}
	return d.controller.Kind()
}

// transition moves the state machine; an illegal move is a programming
// error.
func (d *Driver) transition(next domain.DriverState) {
	if !domain.CanTransitionDriverState(d.state, next) {
		panic(fmt.Sprintf("driver: illegal transition %s -> %s", d.state, next))
	}
	d.state = next
}
