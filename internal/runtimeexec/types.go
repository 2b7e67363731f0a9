package runtimeexec

import (
	"context"
	"errors"

	"github.com/bbque-tools/dse/internal/domain"
)

// Controller drives the managed runtime under test. There is exactly one
// runtime instance: Stop must return before the next Start.
type Controller interface {
	Kind() string
	Start(ctx context.Context, layout Layout, params domain.Parameters) error
	Configure(ctx context.Context, layout Layout, params domain.Parameters) error
	Launch(ctx context.Context, bundle Bundle, label string, seq int, debug bool) (Handle, error)
	Await(ctx context.Context, handle Handle) error
	Stop(ctx context.Context) error
}

// Layout is the capacity exposed by each binding domain for one point.
type Layout struct {
	Domains  []int `yaml:"binding_domains"`
	Capacity int   `yaml:"domain_capacity"`
}

// AppLaunch describes one application of a workload.
type AppLaunch struct {
	Name        string
	Priority    int
	Instances   int
	Modes       int
	MinResource int
	MaxResource int
	RecipePath  string
}

// Bundle is the workload launched for one design point.
type Bundle struct {
	Apps []AppLaunch
}

// Handle identifies a launched workload.
type Handle struct {
	Label    string
	Sequence int
	LogRef   string
}

var (
	ErrAlreadyRunning = errors.New("runtime already running")
	ErrNotRunning     = errors.New("runtime not running")
	ErrUnknownHandle  = errors.New("unknown workload handle")
	ErrAwaitTimeout   = errors.New("workload did not finish before timeout")
	ErrDaemonNotReady = errors.New("daemon did not become ready")
)

// LayoutFor derives the runtime layout of a design point.
func LayoutFor(point domain.DesignPoint, params domain.Parameters) Layout {
	return Layout{
		Domains:  append([]int(nil), point.Resources...),
		Capacity: params.DomainCapacity,
	}
}
