// Package prune decides which design points are worth executing.
package prune

import (
	"fmt"
	"slices"

	"github.com/bbque-tools/dse/internal/domain"
)

// Rule names a feasibility rule. The values double as metric labels.
type Rule string

const (
	RuleMalformed          Rule = "malformed_point"
	RuleZeroResources      Rule = "zero_resources"
	RuleZeroInstances      Rule = "zero_instances"
	RuleModeExceedsDomain  Rule = "min_awm_exceeds_domain"
	RuleLowAverageCapacity Rule = "low_average_capacity"
	RuleCapacityEstimate   Rule = "capacity_estimate"
	RuleSinglePoint        Rule = "single_point_mismatch"
)

// Reason explains why a rule discarded a point.
type Reason struct {
	Rule    Rule
	Message string
}

func (r Reason) String() string { return string(r.Rule) + ": " + r.Message }

// Decision is the outcome of Accept. Reasons lists every rule that fired.
type Decision struct {
	Accept  bool
	Reasons []Reason
}

// Reason returns the first rule that fired, if any.
func (d Decision) Reason() (Reason, bool) {
	if len(d.Reasons) == 0 {
		return Reason{}, false
	}
	return d.Reasons[0], true
}

// Accept evaluates every feasibility rule against point. When singlePoint
// is set, only the reference point of params can be accepted. Accept has
// no side effects.
func Accept(point domain.DesignPoint, params domain.Parameters, singlePoint bool) Decision {
	if !wellFormed(point, params) {
		return Decision{Reasons: []Reason{{
			Rule:    RuleMalformed,
			Message: fmt.Sprintf("point %s does not match %d domains and %d applications", point, params.DomainCount, params.AppCount),
		}}}
	}

	var reasons []Reason
	reject := func(rule Rule, format string, args ...any) {
		reasons = append(reasons, Reason{Rule: rule, Message: fmt.Sprintf(format, args...)})
	}

	totalResources := point.TotalResources()
	totalInstances := point.TotalInstances()
	maxMinResource := slices.Max(point.MinResource)
	maxDomain := slices.Max(point.Resources)

	if totalResources == 0 {
		reject(RuleZeroResources, "no capacity offered by any binding domain")
	}

	// A workload without instances is discarded here; the floor keeps the
	// average below well defined.
	denominator := totalInstances
	if totalInstances == 0 {
		reject(RuleZeroInstances, "no application instances requested")
		denominator = 1
	}

	if maxMinResource > maxDomain {
		reject(RuleModeExceedsDomain, "min awm resource %d exceeds largest binding domain %d", maxMinResource, maxDomain)
	}

	if avg := totalResources / denominator; avg < maxMinResource {
		reject(RuleLowAverageCapacity, "average capacity per instance %d below min awm resource %d", avg, maxMinResource)
	}

	if maxMinResource > 0 {
		admissible := 0
		for _, r := range point.Resources {
			admissible += r / maxMinResource
		}
		if totalInstances > admissible {
			reject(RuleCapacityEstimate, "%d instances exceed conservative capacity of %d", totalInstances, admissible)
		}
	}

	if singlePoint {
		if ref := params.ReferencePoint(); !slices.Equal(ref, point.Flatten()) {
			reject(RuleSinglePoint, "point differs from reference %v", ref)
		}
	}

	return Decision{Accept: len(reasons) == 0, Reasons: reasons}
}

func wellFormed(point domain.DesignPoint, params domain.Parameters) bool {
	if params.DomainCount <= 0 || params.AppCount <= 0 {
		return false
	}
	if len(point.Resources) != params.DomainCount {
		return false
	}
	for _, part := range [][]int{point.Instances, point.Modes, point.MinResource, point.MaxResource} {
		if len(part) != params.AppCount {
			return false
		}
	}
	return true
}
