// Package recipe writes the per-application recipe files read by the
// runtime: one AWM per operating mode, with CPU quotas spread evenly
// between the binding domain capacity and the minimum mode resource.
package recipe

import (
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const recipeVersion = "0.8"

var ErrCapacityBelowMin = errors.New("binding domain capacity is below the minimum awm resource")

// Emitter creates one recipe per application and returns its path.
type Emitter interface {
	CreateRecipe(name string, priority, modes, minResource, domainCapacity int, extraSupport bool) (string, error)
}

// FileEmitter writes recipes under Dir.
type FileEmitter struct {
	Dir string
}

func NewFileEmitter(dir string) *FileEmitter {
	if strings.TrimSpace(dir) == "" {
		dir = "outputs"
	}
	return &FileEmitter{Dir: dir}
}

func (e *FileEmitter) CreateRecipe(name string, priority, modes, minResource, domainCapacity int, extraSupport bool) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("recipe name is required")
	}
	doc, err := Build(priority, modes, minResource, domainCapacity, extraSupport)
	if err != nil {
		return "", err
	}
	raw, err := xml.MarshalIndent(doc, "", "\t")
	if err != nil {
		return "", fmt.Errorf("encode recipe: %w", err)
	}
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create recipe dir: %w", err)
	}
	path := filepath.Join(e.Dir, name+".recipe")
	out := append([]byte(xml.Header), raw...)
	out = append(out, '\n')
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("write recipe: %w", err)
	}
	return path, nil
}

// Build computes the recipe document. AWM i asks for
// capacity - i*step units, rounded down to a multiple of 10, where step
// spreads the modes between capacity and minResource.
func Build(priority, modes, minResource, domainCapacity int, extraSupport bool) (Document, error) {
	if modes < 1 {
		return Document{}, fmt.Errorf("at least one awm is required, got %d", modes)
	}
	if domainCapacity <= 0 {
		return Document{}, fmt.Errorf("binding domain capacity must be positive, got %d", domainCapacity)
	}
	if domainCapacity < minResource {
		return Document{}, fmt.Errorf("%w: %d < %d", ErrCapacityBelowMin, domainCapacity, minResource)
	}

	capacity := float64(domainCapacity)
	step := 0.0
	if modes > 1 {
		step = (capacity - float64(minResource)) / float64(modes-1)
	}

	awms := make([]AWM, 0, modes)
	for i := range modes {
		request := capacity - float64(i)*step
		quota := request - math.Mod(request, 10)
		awm := AWM{
			ID:    i,
			Name:  "wm" + strconv.Itoa(i),
			Value: int(math.Floor(100 * quota / capacity)),
			Resources: Resources{Sys: Sys{ID: 0, CPU: CPU{
				ID:  0,
				PE:  Quantity{Qty: strconv.FormatFloat(quota, 'f', -1, 64)},
				Mem: Quantity{Units: "M", Qty: "250"},
			}}},
		}
		if extraSupport {
			awm.Plugins = &Plugins{Plugin: Plugin{Name: "cows", Boundness: 1, Stalls: 1, Retired: 1, Flops: 1}}
		}
		awms = append(awms, awm)
	}

	return Document{
		Version: recipeVersion,
		Application: Application{
			Priority: priority,
			Platform: Platform{ID: "org.linux.cgroup", AWMs: awms},
		},
	}, nil
}

type Document struct {
	XMLName     xml.Name    `xml:"BarbequeRTRM"`
	Version     string      `xml:"recipe_version,attr"`
	Application Application `xml:"application"`
}

type Application struct {
	Priority int      `xml:"priority,attr"`
	Platform Platform `xml:"platform"`
}

type Platform struct {
	ID   string `xml:"id,attr"`
	AWMs []AWM  `xml:"awms>awm"`
}

type AWM struct {
	ID        int       `xml:"id,attr"`
	Name      string    `xml:"name,attr"`
	Value     int       `xml:"value,attr"`
	Resources Resources `xml:"resources"`
	Plugins   *Plugins  `xml:"plugins,omitempty"`
}

type Resources struct {
	Sys Sys `xml:"sys"`
}

type Sys struct {
	ID  int `xml:"id,attr"`
	CPU CPU `xml:"cpu"`
}

type CPU struct {
	ID  int      `xml:"id,attr"`
	PE  Quantity `xml:"pe"`
	Mem Quantity `xml:"mem"`
}

type Quantity struct {
	Units string `xml:"units,attr,omitempty"`
	Qty   string `xml:"qty,attr"`
}

// Plugins carries the cows scheduling hints; all counters default to 1.
type Plugins struct {
	Plugin Plugin `xml:"plugin"`
}

type Plugin struct {
	Name      string `xml:"name,attr"`
	Boundness int    `xml:"boundness"`
	Stalls    int    `xml:"stalls"`
	Retired   int    `xml:"retired"`
	Flops     int    `xml:"flops"`
}
