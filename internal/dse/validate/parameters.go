// Package validate checks a parameter set before any design point is
// enumerated. Every rule runs on every call, so one pass reports all
// problems at once.
package validate

import (
	"fmt"
	"slices"

	"github.com/bbque-tools/dse/internal/domain"
)

// PEQuota is the capacity of one processing element.
const PEQuota = 100

// Check runs every rule and returns the collected diagnostics.
func Check(p domain.Parameters) (bool, []string) {
	err := validate(p)
	return len(err.Issues) == 0, err.Issues
}

// Validate returns a *ValidationError listing every violated rule, or nil.
func Validate(p domain.Parameters) error {
	return validate(p).OrNil()
}

func validate(p domain.Parameters) *ValidationError {
	issues := &ValidationError{}

	if p.DomainCount <= 0 {
		issues.Add("bds_number must be > 0")
	}
	if p.DomainCapacity < PEQuota {
		issues.Add(fmt.Sprintf("bds_size must hold at least one processing element (>= %d)", PEQuota))
	}
	if p.AppCount <= 0 {
		issues.Add("apps_number must be > 0")
	}

	lists := []struct {
		field  string
		values []int
	}{
		{"bds_step", p.DomainSteps},
		{"apps_instances", p.InstanceCounts},
		{"awms_number", p.ModeCounts},
		{"min_awm_res", p.MinModeResource},
		{"max_awm_res", p.MaxModeResource},
	}
	for _, l := range lists {
		if len(l.values) == 0 {
			issues.Add(fmt.Sprintf("%s must not be empty", l.field))
			continue
		}
		if !slices.IsSorted(l.values) {
			issues.Add(fmt.Sprintf("%s must be sorted ascending", l.field))
		}
	}

	if len(p.DomainSteps) > 0 {
		if slices.Min(p.DomainSteps) < 0 || slices.Max(p.DomainSteps) > p.DomainCapacity {
			issues.Add(fmt.Sprintf("bds_step out of range: values must lie in [0, %d]", p.DomainCapacity))
		}
	}
	if len(p.InstanceCounts) > 0 && slices.Min(p.InstanceCounts) < 0 {
		issues.Add("apps_instances must be >= 0")
	}
	if len(p.ModeCounts) > 0 && slices.Min(p.ModeCounts) < 1 {
		issues.Add("awms_number must be >= 1: too few awms in the recipes")
	}
	if len(p.MinModeResource) > 0 {
		tooLow := slices.Min(p.MinModeResource) <= 0
		tooHigh := len(p.MaxModeResource) > 0 && slices.Max(p.MinModeResource) >= slices.Max(p.MaxModeResource)
		if tooLow || tooHigh {
			issues.Add("min_awm_res out of range: values must satisfy 0 < min < max(max_awm_res)")
		}
	}
	if len(p.MaxModeResource) > 0 && slices.Max(p.MaxModeResource) > p.DomainCapacity {
		issues.Add(fmt.Sprintf("max_awm_res out of range: values must be <= bds_size (%d)", p.DomainCapacity))
	}
	if p.DomainCapacity%PEQuota != 0 {
		issues.Add(fmt.Sprintf("bds_size must be a multiple of %d", PEQuota))
	}
	if len(p.SinglePoint) > 0 && len(p.SinglePoint) != p.PointWidth() {
		issues.Add(fmt.Sprintf("single_point must have %d coordinates, got %d", p.PointWidth(), len(p.SinglePoint)))
	}

	return issues
}
