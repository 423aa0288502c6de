// Package host is the boundary between compiled programs and the artifact that
// runs them. Graph is an in-memory host shaped like an animation controller:
// parameters plus layers of state machines and blend trees.
package host

import (
	"fmt"
	"slices"

	"github.com/provide-io/paramux/pkg/mux/schedule"
)

// Host is what install and uninstall need from an artifact. Implementations
// choose their own storage format.
type Host interface {
	Parameters() []schedule.Parameter
	AddParameter(p schedule.Parameter) error
	RemoveParameter(name string) bool

	LayerNames() []string
	Layer(name string) (*Layer, bool)
	AddLayer(l Layer) error
	RemoveLayer(name string) bool

	// AddMarker attaches an inert node tagged tag to layer.
	AddMarker(layer, tag string) error
	// Markers returns the layer of every node tagged tag, one entry per node.
	Markers(tag string) []string
}

// MarkerNode is a muted, exit-flagged any-state transition that does nothing.
type MarkerNode struct {
	Tag    string `json:"tag" cbor:"tag"`
	Muted  bool   `json:"muted" cbor:"muted"`
	IsExit bool   `json:"is_exit" cbor:"is_exit"`
}

// SubMachine is one branch of a layer, entered when Guard holds.
type SubMachine struct {
	Name    string              `json:"name" cbor:"name"`
	Guard   schedule.Condition  `json:"guard" cbor:"guard"`
	Machine schedule.MachineDef `json:"machine" cbor:"machine"`
}

// BlendTree carries the smoothing filters of change detection.
type BlendTree struct {
	Smoothing string            `json:"smoothing" cbor:"smoothing"`
	Filters   []schedule.Filter `json:"filters" cbor:"filters"`
}

type Layer struct {
	Name     string       `json:"name" cbor:"name"`
	Machines []SubMachine `json:"machines,omitempty" cbor:"machines,omitempty"`
	Tree     *BlendTree   `json:"tree,omitempty" cbor:"tree,omitempty"`
	AnyState []MarkerNode `json:"any_state,omitempty" cbor:"any_state,omitempty"`
}

// Machine returns the sub-machine running role.
func (l *Layer) Machine(role schedule.Role) (*schedule.MachineDef, bool) {
	for i := range l.Machines {
		if l.Machines[i].Machine.Role == role {
			return &l.Machines[i].Machine, true
		}
	}
	return nil, false
}

// Graph is the in-memory Host. It is not safe for concurrent mutation.
type Graph struct {
	Name   string               `json:"name" cbor:"name"`
	Params []schedule.Parameter `json:"parameters" cbor:"parameters"`
	Stack  []Layer              `json:"layers" cbor:"layers"`
}

func NewGraph(name string) *Graph {
	return &Graph{Name: name}
}

func (g *Graph) Parameters() []schedule.Parameter {
	return slices.Clone(g.Params)
}

func (g *Graph) parameterIndex(name string) int {
	return slices.IndexFunc(g.Params, func(p schedule.Parameter) bool { return p.Name == name })
}

func (g *Graph) HasParameter(name string) bool {
	return g.parameterIndex(name) >= 0
}

func (g *Graph) AddParameter(p schedule.Parameter) error {
	if g.HasParameter(p.Name) {
		return fmt.Errorf("parameter %q already exists", p.Name)
	}
	g.Params = append(g.Params, p)
	return nil
}

func (g *Graph) RemoveParameter(name string) bool {
	i := g.parameterIndex(name)
	if i < 0 {
		return false
	}
	g.Params = slices.Delete(g.Params, i, i+1)
	return true
}

func (g *Graph) LayerNames() []string {
	names := make([]string, len(g.Stack))
	for i, l := range g.Stack {
		names[i] = l.Name
	}
	return names
}

func (g *Graph) layerIndex(name string) int {
	return slices.IndexFunc(g.Stack, func(l Layer) bool { return l.Name == name })
}

func (g *Graph) Layer(name string) (*Layer, bool) {
	i := g.layerIndex(name)
	if i < 0 {
		return nil, false
	}
	return &g.Stack[i], true
}

func (g *Graph) AddLayer(l Layer) error {
	if g.layerIndex(l.Name) >= 0 {
		return fmt.Errorf("layer %q already exists", l.Name)
	}
	g.Stack = append(g.Stack, l)
	return nil
}

func (g *Graph) RemoveLayer(name string) bool {
	i := g.layerIndex(name)
	if i < 0 {
		return false
	}
	g.Stack = slices.Delete(g.Stack, i, i+1)
	return true
}

func (g *Graph) AddMarker(layer, tag string) error {
	l, ok := g.Layer(layer)
	if !ok {
		return fmt.Errorf("layer %q not found", layer)
	}
	l.AnyState = append(l.AnyState, MarkerNode{Tag: tag, Muted: true, IsExit: true})
	return nil
}

func (g *Graph) Markers(tag string) []string {
	var out []string
	for _, l := range g.Stack {
		for _, n := range l.AnyState {
			if n.Tag == tag {
				out = append(out, l.Name)
			}
		}
	}
	return out
}
