package runtimeexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bbque-tools/dse/internal/domain"
)

// CommandConfig locates the runtime daemon and the workload launcher.
//
// Daemon contract: the layout file named by DSE_LAYOUT exists before the
// daemon starts and is read at startup. A later layout change is announced
// with SIGHUP, sent only once ReadyFile exists when ReadyFile is set. The
// daemon exits on SIGTERM.
type CommandConfig struct {
	DaemonBin    string
	DaemonArgs   []string
	LayoutPath   string
	ReadyFile    string
	ReadyTimeout time.Duration
	WorkloadBin  string
	OutputDir    string
	AwaitTimeout time.Duration
	StopTimeout  time.Duration
}

// CommandController runs the managed runtime as a child daemon and launches
// one workload process per application instance.
type CommandController struct {
	cfg    CommandConfig
	logger *slog.Logger

	daemon     *exec.Cmd
	daemonLog  *os.File
	daemonExit chan struct{}
	applied    Layout
	workload   *workload
}

type workload struct {
	handle Handle
	procs  []*exec.Cmd
	logs   []*os.File
	done   chan error
}

func NewCommandController(cfg CommandConfig, logger *slog.Logger) (*CommandController, error) {
	cfg.DaemonBin = strings.TrimSpace(cfg.DaemonBin)
	cfg.WorkloadBin = strings.TrimSpace(cfg.WorkloadBin)
	if cfg.DaemonBin == "" {
		return nil, errors.New("daemon binary is required")
	}
	if cfg.WorkloadBin == "" {
		return nil, errors.New("workload binary is required")
	}
	if _, err := exec.LookPath(cfg.DaemonBin); err != nil {
		return nil, fmt.Errorf("daemon binary not found: %w", err)
	}
	if _, err := exec.LookPath(cfg.WorkloadBin); err != nil {
		return nil, fmt.Errorf("workload binary not found: %w", err)
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "outputs"
	}
	if cfg.LayoutPath == "" {
		cfg.LayoutPath = filepath.Join(cfg.OutputDir, "layout.yaml")
	}
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = 10 * time.Minute
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CommandController{cfg: cfg, logger: logger}, nil
}

func (c *CommandController) Kind() string { return "command" }

// Start writes the layout and launches the daemon, which reads it at
// startup. The binding domain count and capacity are also passed through
// the environment.
func (c *CommandController) Start(ctx context.Context, layout Layout, params domain.Parameters) error {
	if c.daemon != nil {
		return ErrAlreadyRunning
	}
	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if c.cfg.ReadyFile != "" {
		if err := os.Remove(c.cfg.ReadyFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale ready file: %w", err)
		}
	}
	if err := c.writeLayout(layout); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(c.cfg.OutputDir, "daemon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}

	// The daemon outlives this call, so it is not bound to ctx.
	cmd := exec.Command(c.cfg.DaemonBin, c.cfg.DaemonArgs...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(),
		"DSE_BD_COUNT="+strconv.Itoa(len(layout.Domains)),
		"DSE_BD_SIZE="+strconv.Itoa(params.DomainCapacity),
		"DSE_LAYOUT="+c.cfg.LayoutPath,
	)
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("start daemon: %w", err)
	}
	exit := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exit)
	}()
	c.daemon = cmd
	c.daemonLog = logFile
	c.daemonExit = exit
	c.applied = cloneLayout(layout)
	c.logger.Debug("runtime daemon started", "pid", cmd.Process.Pid, "bin", c.cfg.DaemonBin)
	return nil
}

// Configure applies layout. The layout given to Start is already loaded,
// so the daemon is only signalled when the layout changed, and only after
// it reported ready.
func (c *CommandController) Configure(ctx context.Context, layout Layout, params domain.Parameters) error {
	if c.daemon == nil {
		return ErrNotRunning
	}
	if layoutsEqual(layout, c.applied) {
		return nil
	}
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	if err := c.writeLayout(layout); err != nil {
		return err
	}
	if err := c.daemon.Process.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("reload daemon: %w", err)
	}
	c.applied = cloneLayout(layout)
	return nil
}

func (c *CommandController) writeLayout(layout Layout) error {
	raw, err := yaml.Marshal(layout)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	return writeFileAtomic(c.cfg.LayoutPath, raw)
}

// waitReady polls for ReadyFile. Without one the daemon is assumed to
// handle SIGHUP from the moment it starts.
func (c *CommandController) waitReady(ctx context.Context) error {
	if c.cfg.ReadyFile == "" {
		return nil
	}
	deadline := time.NewTimer(c.cfg.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, err := os.Stat(c.cfg.ReadyFile); err == nil {
			return nil
		}
		select {
		case <-c.daemonExit:
			return errors.New("daemon exited before becoming ready")
		case <-deadline.C:
			return fmt.Errorf("%w after %s", ErrDaemonNotReady, c.cfg.ReadyTimeout)
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (c *CommandController) Launch(ctx context.Context, bundle Bundle, label string, seq int, debug bool) (Handle, error) {
	if c.daemon == nil {
		return Handle{}, ErrNotRunning
	}
	if c.workload != nil {
		return Handle{}, fmt.Errorf("workload %q still running", c.workload.handle.Label)
	}
	logDir := filepath.Join(c.cfg.OutputDir, fmt.Sprintf("test_%04d", seq))
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("create workload log dir: %w", err)
	}

	w := &workload{handle: Handle{Label: label, Sequence: seq, LogRef: logDir}}
	for _, app := range bundle.Apps {
		for instance := range app.Instances {
			cmd, logFile, err := c.startInstance(ctx, app, instance, label, logDir, debug)
			if err != nil {
				reapAll(w.procs)
				closeAll(w.logs)
				return Handle{}, err
			}
			w.procs = append(w.procs, cmd)
			w.logs = append(w.logs, logFile)
		}
	}

	w.done = make(chan error, 1)
	go func(procs []*exec.Cmd) {
		var errs []error
		for _, p := range procs {
			if err := p.Wait(); err != nil {
				errs = append(errs, fmt.Errorf("pid %d: %w", p.Process.Pid, err))
			}
		}
		w.done <- errors.Join(errs...)
	}(w.procs)

	c.workload = w
	c.logger.Debug("workload launched", "label", label, "seq", seq, "processes", len(w.procs))
	return w.handle, nil
}

func (c *CommandController) startInstance(ctx context.Context, app AppLaunch, instance int, label, logDir string, debug bool) (*exec.Cmd, *os.File, error) {
	logPath := filepath.Join(logDir, fmt.Sprintf("%s_%d.log", app.Name, instance))
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open workload log: %w", err)
	}
	args := []string{
		"--name", fmt.Sprintf("%s_%d", app.Name, instance),
		"--recipe", app.RecipePath,
		"--label", label,
	}
	if debug {
		args = append(args, "--debug")
	}
	cmd := exec.CommandContext(ctx, c.cfg.WorkloadBin, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, nil, fmt.Errorf("start %s instance %d: %w", app.Name, instance, err)
	}
	return cmd, logFile, nil
}

// Await blocks until every process of the workload exits, the await
// timeout expires or ctx is cancelled.
func (c *CommandController) Await(ctx context.Context, handle Handle) error {
	w := c.workload
	if w == nil || w.handle != handle {
		return ErrUnknownHandle
	}
	timer := time.NewTimer(c.cfg.AwaitTimeout)
	defer timer.Stop()

	select {
	case err := <-w.done:
		c.finishWorkload()
		if err != nil {
			return fmt.Errorf("workload failed: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrAwaitTimeout, c.cfg.AwaitTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop kills any leftover workload and terminates the daemon. It is safe
// to call when nothing is running.
func (c *CommandController) Stop(ctx context.Context) error {
	var errs []error
	if w := c.workload; w != nil {
		killAll(w.procs)
		select {
		case <-w.done:
		case <-time.After(c.cfg.StopTimeout):
			errs = append(errs, errors.New("workload processes did not exit"))
		}
		c.finishWorkload()
	}

	if c.daemon == nil {
		return errors.Join(errs...)
	}
	daemon, exited := c.daemon, c.daemonExit
	c.daemon, c.daemonExit = nil, nil
	defer func() {
		if c.daemonLog != nil {
			_ = c.daemonLog.Close()
			c.daemonLog = nil
		}
	}()

	if err := daemon.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		errs = append(errs, fmt.Errorf("signal daemon: %w", err))
	}

	select {
	case <-exited:
	case <-time.After(c.cfg.StopTimeout):
		if err := daemon.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill daemon: %w", err))
		}
		<-exited
		errs = append(errs, fmt.Errorf("daemon ignored SIGTERM for %s", c.cfg.StopTimeout))
	case <-ctx.Done():
		_ = daemon.Process.Kill()
		<-exited
		errs = append(errs, ctx.Err())
	}
	c.logger.Debug("runtime daemon stopped")
	return errors.Join(errs...)
}

func (c *CommandController) finishWorkload() {
	if c.workload == nil {
		return
	}
	closeAll(c.workload.logs)
	c.workload = nil
}

func killAll(procs []*exec.Cmd) {
	for _, p := range procs {
		if p.Process != nil {
			_ = p.Process.Kill()
		}
	}
}

// reapAll kills procs and waits for them so none is left as a zombie.
func reapAll(procs []*exec.Cmd) {
	killAll(procs)
	for _, p := range procs {
		if p.Process != nil {
			_ = p.Wait()
		}
	}
}

func cloneLayout(l Layout) Layout {
	return Layout{Domains: slices.Clone(l.Domains), Capacity: l.Capacity}
}

func layoutsEqual(a, b Layout) bool {
	return a.Capacity == b.Capacity && slices.Equal(a.Domains, b.Domains)
}

func closeAll(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create layout dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write layout: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write layout: %w", err)
	}
	return nil
}
