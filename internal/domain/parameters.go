package domain

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Parameters describes the design space. DomainCount, DomainCapacity and
// AppCount are constant dimensions; every list is a variable dimension that
// is replicated once per binding domain or once per application.
//
// Capacities are expressed in quota units: 100 units are one full
// processing element.
type Parameters struct {
	DomainCount     int   `json:"bds_number" yaml:"bds_number"`
	DomainCapacity  int   `json:"bds_size" yaml:"bds_size"`
	AppCount        int   `json:"apps_number" yaml:"apps_number"`
	DomainSteps     []int `json:"bds_step" yaml:"bds_step"`
	InstanceCounts  []int `json:"apps_instances" yaml:"apps_instances"`
	ModeCounts      []int `json:"awms_number" yaml:"awms_number"`
	MinModeResource []int `json:"min_awm_res" yaml:"min_awm_res"`
	MaxModeResource []int `json:"max_awm_res" yaml:"max_awm_res"`

	// SinglePoint is the flattened reference point used by single-point
	// mode. Empty means DefaultSinglePoint.
	SinglePoint []int `json:"single_point,omitempty" yaml:"single_point,omitempty"`
}

// DefaultSinglePoint is the hand-picked point explored by single-point mode
// when the parameter file does not name one.
var DefaultSinglePoint = []int{200, 200, 1, 5, 30, 200}

// DefaultParameters returns the reference exploration: two binding domains
// of two processing elements and one application.
func DefaultParameters() Parameters {
	return Parameters{
		DomainCount:     2,
		DomainCapacity:  200,
		AppCount:        1,
		DomainSteps:     []int{50, 100, 200},
		InstanceCounts:  []int{1, 3, 5, 7},
		ModeCounts:      []int{5},
		MinModeResource: []int{30, 70},
		MaxModeResource: []int{150, 200},
	}
}

// PointWidth is the number of coordinates in a flattened design point.
func (p Parameters) PointWidth() int {
	return p.DomainCount + 4*p.AppCount
}

// ReferencePoint returns the single-point target for these parameters.
func (p Parameters) ReferencePoint() []int {
	if len(p.SinglePoint) > 0 {
		return slices.Clone(p.SinglePoint)
	}
	return slices.Clone(DefaultSinglePoint)
}

// Clone returns a deep copy so callers can keep a validated snapshot.
func (p Parameters) Clone() Parameters {
	out := p
	out.DomainSteps = slices.Clone(p.DomainSteps)
	out.InstanceCounts = slices.Clone(p.InstanceCounts)
	out.ModeCounts = slices.Clone(p.ModeCounts)
	out.MinModeResource = slices.Clone(p.MinModeResource)
	out.MaxModeResource = slices.Clone(p.MaxModeResource)
	out.SinglePoint = slices.Clone(p.SinglePoint)
	return out
}

// ParseParameters decodes a YAML parameter document on top of
// DefaultParameters. Unknown keys are rejected.
func ParseParameters(input []byte) (Parameters, error) {
	params := DefaultParameters()
	if len(bytes.TrimSpace(input)) == 0 {
		return params, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(input))
	dec.KnownFields(true)
	if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		return Parameters{}, fmt.Errorf("decode parameters: %w", err)
	}
	return params, nil
}

// LoadParameters reads a parameter file. An empty path yields the defaults.
func LoadParameters(path string) (Parameters, error) {
	if path == "" {
		return DefaultParameters(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("read parameters: %w", err)
	}
	return ParseParameters(raw)
}
