// Package space enumerates the design space described by a parameter set.
//
// Dimensions are laid out in a fixed order: one resource dimension per
// binding domain, then one instance, AWM-count, minimum and maximum
// resource dimension per application. Iteration behaves like nested loops
// over that order, the last dimension changing fastest.
package space

import (
	"errors"
	"iter"
	"math/bits"
	"slices"

	"github.com/bbque-tools/dse/internal/domain"
)

var ErrSpaceTooLarge = errors.New("design space size overflows uint64")

// Size returns the number of points Enumerate yields for p.
func Size(p domain.Parameters) (uint64, error) {
	total := uint64(1)
	for _, dim := range dimensions(p) {
		hi, lo := bits.Mul64(total, uint64(len(dim)))
		if hi != 0 {
			return 0, ErrSpaceTooLarge
		}
		total = lo
	}
	return total, nil
}

// Iterator walks the design space lazily. It keeps one index per dimension
// and never materialises more than the current point.
type Iterator struct {
	domains int
	apps    int
	dims    [][]int
	idx     []int
	started bool
	done    bool
}

// Enumerate returns an iterator positioned before the first point. The
// parameter lists are copied, so later changes to p do not affect it.
func Enumerate(p domain.Parameters) *Iterator {
	p = p.Clone()
	dims := dimensions(p)
	return &Iterator{
		domains: max(p.DomainCount, 0),
		apps:    max(p.AppCount, 0),
		dims:    dims,
		idx:     make([]int, len(dims)),
	}
}

// Next returns the next design point, or false once the space is exhausted.
func (it *Iterator) Next() (domain.DesignPoint, bool) {
	if it.done {
		return domain.DesignPoint{}, false
	}
	if !it.started {
		it.started = true
		for _, dim := range it.dims {
			if len(dim) == 0 {
				it.done = true
				return domain.DesignPoint{}, false
			}
		}
		return it.point(), true
	}
	for d := len(it.idx) - 1; d >= 0; d-- {
		it.idx[d]++
		if it.idx[d] < len(it.dims[d]) {
			return it.point(), true
		}
		it.idx[d] = 0
	}
	it.done = true
	return domain.DesignPoint{}, false
}

// Reset rewinds the iterator to the first point.
func (it *Iterator) Reset() {
	clear(it.idx)
	it.started = false
	it.done = false
}

func (it *Iterator) point() domain.DesignPoint {
	offset := 0
	take := func(n int) []int {
		out := make([]int, n)
		for i := range n {
			out[i] = it.dims[offset+i][it.idx[offset+i]]
		}
		offset += n
		return out
	}
	return domain.DesignPoint{
		Resources:   take(it.domains),
		Instances:   take(it.apps),
		Modes:       take(it.apps),
		MinResource: take(it.apps),
		MaxResource: take(it.apps),
	}
}

// All yields every design point of p in enumeration order.
func All(p domain.Parameters) iter.Seq[domain.DesignPoint] {
	return func(yield func(domain.DesignPoint) bool) {
		it := Enumerate(p)
		for {
			point, ok := it.Next()
			if !ok || !yield(point) {
				return
			}
		}
	}
}

func dimensions(p domain.Parameters) [][]int {
	domains := max(p.DomainCount, 0)
	apps := max(p.AppCount, 0)
	dims := make([][]int, 0, domains+4*apps)
	for range domains {
		dims = append(dims, p.DomainSteps)
	}
	for _, values := range [][]int{p.InstanceCounts, p.ModeCounts, p.MinModeResource, p.MaxModeResource} {
		for range apps {
			dims = append(dims, values)
		}
	}
	return slices.Clip(dims)
}
