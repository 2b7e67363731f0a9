package domain

import (
	"slices"
	"strconv"
	"strings"
)

// DesignPoint is one concrete value per replicated dimension. Resources has
// one entry per binding domain; the other slices have one entry per
// application. Points are never mutated after the enumerator yields them.
type DesignPoint struct {
	Resources   []int `json:"resources"`
	Instances   []int `json:"instances"`
	Modes       []int `json:"awms"`
	MinResource []int `json:"min_awm_res"`
	MaxResource []int `json:"max_awm_res"`
}

// Flatten returns the coordinates in dimension order: resources, instances,
// modes, minimum and maximum mode resources.
func (p DesignPoint) Flatten() []int {
	out := make([]int, 0, len(p.Resources)+len(p.Instances)+len(p.Modes)+len(p.MinResource)+len(p.MaxResource))
	out = append(out, p.Resources...)
	out = append(out, p.Instances...)
	out = append(out, p.Modes...)
	out = append(out, p.MinResource...)
	out = append(out, p.MaxResource...)
	return out
}

// String renders the point as a tuple, e.g. "(200, 200, 1, 5, 30, 200)".
// It doubles as the workload label handed to the runtime.
func (p DesignPoint) String() string {
	coords := p.Flatten()
	parts := make([]string, len(coords))
	for i, v := range coords {
		parts[i] = strconv.Itoa(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (p DesignPoint) Equal(other DesignPoint) bool {
	return slices.Equal(p.Resources, other.Resources) &&
		slices.Equal(p.Instances, other.Instances) &&
		slices.Equal(p.Modes, other.Modes) &&
		slices.Equal(p.MinResource, other.MinResource) &&
		slices.Equal(p.MaxResource, other.MaxResource)
}

// PointFromFlat splits a flattened tuple according to the layout of params.
// ok is false when the tuple width does not match.
func PointFromFlat(params Parameters, coords []int) (DesignPoint, bool) {
	if len(coords) != params.PointWidth() || params.DomainCount < 0 || params.AppCount < 0 {
		return DesignPoint{}, false
	}
	d, a := params.DomainCount, params.AppCount
	next := func(n int) []int {
		part := slices.Clone(coords[:n])
		coords = coords[n:]
		return part
	}
	return DesignPoint{
		Resources:   next(d),
		Instances:   next(a),
		Modes:       next(a),
		MinResource: next(a),
		MaxResource: next(a),
	}, true
}

// TotalResources is the capacity offered by all binding domains.
func (p DesignPoint) TotalResources() int { return sum(p.Resources) }

// TotalInstances is the number of application instances in the workload.
func (p DesignPoint) TotalInstances() int { return sum(p.Instances) }

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
