package runtimeexec

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bbque-tools/dse/internal/domain"
)

type outcomeDecider func(label string, seq int) float64

// DryRunController simulates the runtime without starting any process.
// Each workload fails with probability FailureRate, decided by hashing its
// label and sequence number so repeated explorations behave identically.
type DryRunController struct {
	FailureRate float64

	decide  outcomeDecider
	running bool
	current *Handle
}

func NewDryRunController(failureRate float64) *DryRunController {
	return &DryRunController{
		FailureRate: failureRate,
		decide:      deterministicScore,
	}
}

func (c *DryRunController) Kind() string { return "dryrun" }

func (c *DryRunController) Start(ctx context.Context, layout Layout, params domain.Parameters) error {
	if c.running {
		return ErrAlreadyRunning
	}
	if len(layout.Domains) != params.DomainCount {
		return fmt.Errorf("layout has %d binding domains, want %d", len(layout.Domains), params.DomainCount)
	}
	c.running = true
	return nil
}

func (c *DryRunController) Configure(ctx context.Context, layout Layout, params domain.Parameters) error {
	if !c.running {
		return ErrNotRunning
	}
	for i, capacity := range layout.Domains {
		if capacity < 0 || capacity > params.DomainCapacity {
			return fmt.Errorf("binding domain %d: capacity %d out of [0, %d]", i, capacity, params.DomainCapacity)
		}
	}
	return nil
}

func (c *DryRunController) Launch(ctx context.Context, bundle Bundle, label string, seq int, debug bool) (Handle, error) {
	if !c.running {
		return Handle{}, ErrNotRunning
	}
	if len(bundle.Apps) == 0 {
		return Handle{}, fmt.Errorf("empty workload bundle")
	}
	h := Handle{Label: label, Sequence: seq, LogRef: fmt.Sprintf("dryrun://%d", seq)}
	c.current = &h
	return h, nil
}

func (c *DryRunController) Await(ctx context.Context, handle Handle) error {
	if c.current == nil || *c.current != handle {
		return ErrUnknownHandle
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	decide := c.decide
	if decide == nil {
		decide = deterministicScore
	}
	if score := decide(handle.Label, handle.Sequence); score < c.FailureRate {
		return fmt.Errorf("simulated workload failure (score %.3f)", score)
	}
	return nil
}

func (c *DryRunController) Stop(ctx context.Context) error {
	c.running = false
	c.current = nil
	return nil
}

func deterministicScore(label string, seq int) float64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", label, seq)))
	value := binary.BigEndian.Uint64(sum[:8])
	return float64(value) / float64(math.MaxUint64)
}
