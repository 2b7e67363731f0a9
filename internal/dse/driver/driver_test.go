package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bbque-tools/dse/internal/domain"
	"github.com/bbque-tools/dse/internal/dse/validate"
	"github.com/bbque-tools/dse/internal/platform/metrics"
	"github.com/bbque-tools/dse/internal/runtimeexec"
)

// smallParams describes three points: (0, ...) is discarded for lack of
// capacity, the other two are executed.
func smallParams() domain.Parameters {
	return domain.Parameters{
		DomainCount:     1,
		DomainCapacity:  200,
		AppCount:        1,
		DomainSteps:     []int{0, 100, 200},
		InstanceCounts:  []int{1},
		ModeCounts:      []int{2},
		MinModeResource: []int{50},
		MaxModeResource: []int{200},
	}
}

type fakeController struct {
	running bool
	calls   []string
	stops   int

	startErr     error
	configureErr error
	launchErr    error
	awaitErr     error
	stopErr      error
	onLaunch     func()
}

func (f *fakeController) Kind() string { return "fake" }

func (f *fakeController) Start(context.Context, runtimeexec.Layout, domain.Parameters) error {
	f.calls = append(f.calls, "start")
	if f.running {
		return runtimeexec.ErrAlreadyRunning
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeController) Configure(context.Context, runtimeexec.Layout, domain.Parameters) error {
	f.calls = append(f.calls, "configure")
	return f.configureErr
}

func (f *fakeController) Launch(_ context.Context, bundle runtimeexec.Bundle, label string, seq int, debug bool) (runtimeexec.Handle, error) {
	f.calls = append(f.calls, "launch")
	if f.onLaunch != nil {
		f.onLaunch()
	}
	if f.launchErr != nil {
		return runtimeexec.Handle{}, f.launchErr
	}
	return runtimeexec.Handle{Label: label, Sequence: seq, LogRef: fmt.Sprintf("fake://%d", seq)}, nil
}

func (f *fakeController) Await(context.Context, runtimeexec.Handle) error {
	f.calls = append(f.calls, "await")
	return f.awaitErr
}

func (f *fakeController) Stop(context.Context) error {
	f.calls = append(f.calls, "stop")
	f.stops++
	f.running = false
	return f.stopErr
}

type fakeEmitter struct {
	names []string
	err   error
}

func (f *fakeEmitter) CreateRecipe(name string, priority, modes, minResource, domainCapacity int, extraSupport bool) (string, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/" + name + ".recipe", nil
}

type memorySink struct {
	records []domain.RunRecord
	summary *domain.Summary
	err     error
}

func (s *memorySink) Append(_ context.Context, record domain.RunRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func (s *memorySink) Close(_ context.Context, summary domain.Summary) error {
	s.summary = &summary
	return s.err
}

func fixedClock() func() time.Time {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func newTestDriver(t *testing.T, params domain.Parameters, ctrl runtimeexec.Controller, sink *memorySink, opts ...Option) *Driver {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock()), WithRunID("run-1")}, opts...)
	d, err := New(params, ctrl, &fakeEmitter{}, sink, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestRunExecutesAcceptedPoints(t *testing.T) {
	ctrl := &fakeController{}
	sink := &memorySink{}
	d := newTestDriver(t, smallParams(), ctrl, sink)

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := domain.Progress{Total: 3, Executed: 2, Skipped: 1}
	if summary.Progress != want {
		t.Fatalf("progress=%+v, want %+v", summary.Progress, want)
	}
	if summary.RunID != "run-1" || summary.Mode != ModeFull {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if d.State() != domain.DriverStateDone {
		t.Fatalf("state=%s, want done", d.State())
	}

	cycle := []string{"start", "configure", "launch", "await", "stop"}
	wantCalls := append(append([]string{}, cycle...), cycle...)
	if diff := cmp.Diff(wantCalls, ctrl.calls); diff != "" {
		t.Fatalf("controller calls mismatch (-want +got):\n%s", diff)
	}

	if len(sink.records) != 2 || sink.summary == nil {
		t.Fatalf("sink records=%d summary=%v", len(sink.records), sink.summary)
	}
	labels := []string{sink.records[0].Label, sink.records[1].Label}
	if diff := cmp.Diff([]string{"(100, 1, 2, 50, 200)", "(200, 1, 2, 50, 200)"}, labels); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
	for i, rec := range sink.records {
		if rec.Sequence != i+1 || rec.RunID != "run-1" || rec.Status != domain.RunStatusSucceeded {
			t.Fatalf("unexpected record %d: %+v", i, rec)
		}
		if rec.LogRef != fmt.Sprintf("fake://%d", i+1) {
			t.Fatalf("log ref=%q", rec.LogRef)
		}
		if !rec.FinishedAt.After(rec.StartedAt) {
			t.Fatalf("finished %v not after started %v", rec.FinishedAt, rec.StartedAt)
		}
	}
	if len(d.Records()) != 2 {
		t.Fatalf("Records()=%d, want 2", len(d.Records()))
	}
}

func TestRunTearsDownOnEveryFailure(t *testing.T) {
	tests := []struct {
		name      string
		ctrl      *fakeController
		emitErr   error
		wantPhase Phase
		wantCalls []string
	}{
		{
			name:      "start",
			ctrl:      &fakeController{startErr: errors.New("no daemon")},
			wantPhase: PhaseStart,
			wantCalls: []string{"start", "stop"},
		},
		{
			name:      "configure",
			ctrl:      &fakeController{configureErr: errors.New("bad layout")},
			wantPhase: PhaseConfigure,
			wantCalls: []string{"start", "configure", "stop"},
		},
		{
			name:      "recipe",
			ctrl:      &fakeController{},
			emitErr:   errors.New("read-only fs"),
			wantPhase: PhaseRecipe,
			wantCalls: []string{"start", "configure", "stop"},
		},
		{
			name:      "launch",
			ctrl:      &fakeController{launchErr: errors.New("exec format error")},
			wantPhase: PhaseLaunch,
			wantCalls: []string{"start", "configure", "launch", "stop"},
		},
		{
			name:      "await",
			ctrl:      &fakeController{awaitErr: errors.New("workload crashed")},
			wantPhase: PhaseAwait,
			wantCalls: []string{"start", "configure", "launch", "await", "stop"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sink := &memorySink{}
			d, err := New(smallParams(), tc.ctrl, &fakeEmitter{err: tc.emitErr}, sink, WithClock(fixedClock()))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			summary, err := d.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if tc.ctrl.stops != 2 {
				t.Fatalf("stops=%d, want one per executed point", tc.ctrl.stops)
			}
			if summary.Progress.Executed != 2 || summary.Progress.Failed != 2 {
				t.Fatalf("progress=%+v", summary.Progress)
			}
			if diff := cmp.Diff(tc.wantCalls, tc.ctrl.calls[:len(tc.wantCalls)]); diff != "" {
				t.Fatalf("calls mismatch (-want +got):\n%s", diff)
			}
			for _, rec := range sink.records {
				if rec.Status != domain.RunStatusFailed {
					t.Fatalf("status=%s, want failed", rec.Status)
				}
				if !strings.HasPrefix(rec.Error, string(tc.wantPhase)+" ") {
					t.Fatalf("error=%q, want phase %s", rec.Error, tc.wantPhase)
				}
			}
		})
	}
}

func TestRunRecordsTeardownFailureAndContinues(t *testing.T) {
	ctrl := &fakeController{stopErr: errors.New("daemon ignored SIGTERM")}
	sink := &memorySink{}
	d := newTestDriver(t, smallParams(), ctrl, sink)

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Progress.Executed != 2 || summary.Progress.Failed != 0 {
		t.Fatalf("progress=%+v", summary.Progress)
	}
	for _, rec := range sink.records {
		if rec.Status != domain.RunStatusSucceeded {
			t.Fatalf("teardown failure must not fail the run: %+v", rec)
		}
		if !strings.Contains(rec.TeardownError, "daemon ignored SIGTERM") {
			t.Fatalf("teardown error=%q", rec.TeardownError)
		}
	}
}

func TestRunAbortsOnInvalidParameters(t *testing.T) {
	params := smallParams()
	params.InstanceCounts = []int{3, 1}
	params.DomainCapacity = 250
	ctrl := &fakeController{}
	sink := &memorySink{}
	d := newTestDriver(t, params, ctrl, sink)

	_, err := d.Run(context.Background())
	var verr *validate.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v, want *validate.ValidationError", err)
	}
	if len(ctrl.calls) != 0 || len(sink.records) != 0 {
		t.Fatalf("no point may run after validation failure: calls=%v", ctrl.calls)
	}
	if d.State() != domain.DriverStateDone {
		t.Fatalf("state=%s, want done", d.State())
	}
}

func TestRunComplexityOnly(t *testing.T) {
	sink := &memorySink{}
	d, err := New(smallParams(), nil, nil, sink, WithComplexityOnly(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := domain.Progress{Total: 3, Executed: 2, Skipped: 1}
	if summary.Progress != want || summary.Mode != ModeComplexityHard {
		t.Fatalf("summary=%+v", summary)
	}
	if len(sink.records) != 0 {
		t.Fatalf("complexity mode must not record runs, got %d", len(sink.records))
	}
}

func TestNewRequiresRuntimeForExecution(t *testing.T) {
	if _, err := New(smallParams(), nil, &fakeEmitter{}, nil); err == nil {
		t.Fatalf("expected error without controller")
	}
	if _, err := New(smallParams(), &fakeController{}, nil, nil); err == nil {
		t.Fatalf("expected error without emitter")
	}
}

func TestRunSinglePoint(t *testing.T) {
	ctrl := &fakeController{}
	sink := &memorySink{}
	d := newTestDriver(t, domain.DefaultParameters(), ctrl, sink, WithSinglePoint(true), WithDebug(true))

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := domain.Progress{Total: 144, Executed: 1, Skipped: 143}
	if summary.Progress != want || summary.Mode != ModeSinglePoint {
		t.Fatalf("summary=%+v", summary)
	}
	if ctrl.stops != 1 {
		t.Fatalf("stops=%d, want 1", ctrl.stops)
	}
	if sink.records[0].Label != "(200, 200, 1, 5, 30, 200)" {
		t.Fatalf("label=%q", sink.records[0].Label)
	}
}

func TestRunHonoursCancellationBetweenPoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl := &fakeController{onLaunch: cancel}
	sink := &memorySink{}
	d := newTestDriver(t, smallParams(), ctrl, sink)

	summary, err := d.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if summary.Progress.Executed != 1 || ctrl.stops != 1 {
		t.Fatalf("the running point must finish: progress=%+v stops=%d", summary.Progress, ctrl.stops)
	}
	if sink.summary == nil {
		t.Fatalf("summary must be written after cancellation")
	}
}

func TestRunSurvivesSinkFailure(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	d := newTestDriver(t, smallParams(), &fakeController{}, sink)
	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Progress.Executed != 2 {
		t.Fatalf("progress=%+v", summary.Progress)
	}
}

func TestRunIsSingleUse(t *testing.T) {
	d := newTestDriver(t, smallParams(), &fakeController{}, &memorySink{})
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := d.Run(context.Background()); err == nil {
		t.Fatalf("second Run expected error")
	}
}

func TestRunDrawsProgress(t *testing.T) {
	var out bytes.Buffer
	d := newTestDriver(t, smallParams(), &fakeController{}, &memorySink{}, WithProgress(&out))
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	for _, want := range []string{"33% [1/3]", "66% [2/3]", "100% [3/3]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("progress output %q missing %q", got, want)
		}
	}
	if !strings.HasSuffix(got, "\n") {
		t.Fatalf("progress output must end with a newline")
	}
}

func TestRunUpdatesMetrics(t *testing.T) {
	m := metrics.NewExploration("run-1")
	d := newTestDriver(t, smallParams(), &fakeController{awaitErr: errors.New("boom")}, &memorySink{}, WithMetrics(m))
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	want := map[string]float64{
		"dse_design_space_points":     3,
		"dse_points_executed_total":   2,
		"dse_points_failed_total":     2,
		"dse_points_skipped_total":    1,
		"dse_teardown_failures_total": 0,
	}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestDrawProgress(t *testing.T) {
	var out bytes.Buffer
	drawProgress(&out, domain.Progress{Total: 4, Executed: 1, Skipped: 1})
	want := "\r[" + strings.Repeat("=", 25) + strings.Repeat(" ", 25) + "] 50% [2/4]"
	if out.String() != want {
		t.Fatalf("drawProgress()=%q, want %q", out.String(), want)
	}
}
