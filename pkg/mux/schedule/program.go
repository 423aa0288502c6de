package schedule

import (
	"fmt"
	"time"

	"github.com/provide-io/paramux/pkg/mux/value"
)

// Role is the side of the protocol a machine runs on.
type Role uint8

const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}

// Op is a guard comparison.
type Op uint8

const (
	OpIf      Op = iota // parameter is non-zero
	OpIfNot             // parameter is zero
	OpGreater           // parameter > Threshold
	OpLess              // parameter < Threshold
)

func (o Op) String() string {
	switch o {
	case OpIf:
		return "if"
	case OpIfNot:
		return "ifnot"
	case OpGreater:
		return ">"
	case OpLess:
		return "<"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Condition is one clause of a transition guard.
type Condition struct {
	Param     string  `json:"param" cbor:"param"`
	Op        Op      `json:"op" cbor:"op"`
	Threshold float64 `json:"threshold,omitempty" cbor:"threshold,omitempty"`
}

// Holds evaluates the condition against v.
func (c Condition) Holds(v float64) bool {
	switch c.Op {
	case OpIf:
		return v != 0
	case OpIfNot:
		return v == 0
	case OpGreater:
		return v > c.Threshold
	case OpLess:
		return v < c.Threshold
	default:
		return false
	}
}

// DriverOp is what a driver does on state entry.
type DriverOp uint8

const (
	DriverSet  DriverOp = iota // Dest = Value
	DriverCopy                 // Dest = transfer(Source)
)

// Driver is an instruction run when its state is entered.
type Driver struct {
	Op       DriverOp `json:"op" cbor:"op"`
	Dest     string   `json:"dest" cbor:"dest"`
	Value    float64  `json:"value,omitempty" cbor:"value,omitempty"`
	Source   string   `json:"source,omitempty" cbor:"source,omitempty"`
	Transfer uint8    `json:"transfer,omitempty" cbor:"transfer,omitempty"`
	Reverse  bool     `json:"reverse,omitempty" cbor:"reverse,omitempty"`
}

// State is a node of a generated machine. Slot is NoSlot for control states.
type State struct {
	Name    string   `json:"name" cbor:"name"`
	Slot    int      `json:"slot" cbor:"slot"`
	Drivers []Driver `json:"drivers,omitempty" cbor:"drivers,omitempty"`
}

// Transition moves From -> To once all Conditions hold and, when Timed, the
// source state has been active for at least After.
type Transition struct {
	From       string        `json:"from" cbor:"from"`
	To         string        `json:"to" cbor:"to"`
	Timed      bool          `json:"timed,omitempty" cbor:"timed,omitempty"`
	After      time.Duration `json:"after,omitempty" cbor:"after,omitempty"`
	Conditions []Condition   `json:"conditions,omitempty" cbor:"conditions,omitempty"`
}

// MachineDef is one role's state machine as flat state and transition lists.
// Transitions out of a state are tried in list order.
type MachineDef struct {
	Role        Role         `json:"role" cbor:"role"`
	Entry       string       `json:"entry" cbor:"entry"`
	States      []State      `json:"states" cbor:"states"`
	Transitions []Transition `json:"transitions" cbor:"transitions"`
}

// State looks up a state by name.
func (m *MachineDef) State(name string) (*State, bool) {
	for i := range m.States {
		if m.States[i].Name == name {
			return &m.States[i], true
		}
	}
	return nil, false
}

// From returns the transitions leaving name, in priority order.
func (m *MachineDef) From(name string) []Transition {
	var out []Transition
	for _, t := range m.Transitions {
		if t.From == name {
			out = append(out, t)
		}
	}
	return out
}

// SlotStates returns the states bound to slot.
func (m *MachineDef) SlotStates(slot int) []State {
	var out []State
	for _, s := range m.States {
		if s.Slot == slot {
			out = append(out, s)
		}
	}
	return out
}

// Parameter is a generated parameter. Synced parameters live on the shared
// channel; the rest are private to each peer.
type Parameter struct {
	Name    string     `json:"name" cbor:"name"`
	Kind    value.Kind `json:"kind" cbor:"kind"`
	Synced  bool       `json:"synced" cbor:"synced"`
	Default float64    `json:"default,omitempty" cbor:"default,omitempty"`
}

// Filter is the per-value smoothing and differential pair used by change
// detection. Copy is empty when Source is already a float; otherwise it holds
// Source*Scale.
type Filter struct {
	Slot         int     `json:"slot" cbor:"slot"`
	Source       string  `json:"source" cbor:"source"`
	Copy         string  `json:"copy,omitempty" cbor:"copy,omitempty"`
	Scale        float64 `json:"scale,omitempty" cbor:"scale,omitempty"`
	Smoothed     string  `json:"smoothed" cbor:"smoothed"`
	Differential string  `json:"differential" cbor:"differential"`
	Min          float64 `json:"min" cbor:"min"`
	Max          float64 `json:"max" cbor:"max"`
}

// Input is the parameter the filter tracks.
func (f Filter) Input() string {
	if f.Copy != "" {
		return f.Copy
	}
	return f.Source
}

// Slot is one addressable turn of the channel.
type Slot struct {
	Index     int               `json:"index" cbor:"index"`
	IndexBits string            `json:"index_bits" cbor:"index_bits"`
	Bools     []value.ValueSpec `json:"bools" cbor:"bools"`
	Wide      []value.ValueSpec `json:"wide" cbor:"wide"`
}

// Values returns the slot's bools then wide values.
func (s Slot) Values() []value.ValueSpec {
	out := make([]value.ValueSpec, 0, len(s.Bools)+len(s.Wide))
	out = append(out, s.Bools...)
	return append(out, s.Wide...)
}

// Program is the compiled protocol for both roles.
type Program struct {
	Marker      Marker        `json:"marker" cbor:"marker"`
	SlotCount   int           `json:"slot_count" cbor:"slot_count"`
	IndexerBits int           `json:"indexer_bits" cbor:"indexer_bits"`
	BoolSlots   int           `json:"bool_slots" cbor:"bool_slots"`
	WideSlots   int           `json:"wide_slots" cbor:"wide_slots"`
	StepDelay   time.Duration `json:"step_delay" cbor:"step_delay"`
	Slots       []Slot        `json:"slots" cbor:"slots"`
	Parameters  []Parameter   `json:"parameters" cbor:"parameters"`
	Sender      MachineDef    `json:"sender" cbor:"sender"`
	Receiver    MachineDef    `json:"receiver" cbor:"receiver"`

	// Change detection; Smoothing is empty when disabled.
	Filters   []Filter `json:"filters,omitempty" cbor:"filters,omitempty"`
	Smoothing string   `json:"smoothing,omitempty" cbor:"smoothing,omitempty"`

	SavedCost    int `json:"saved_cost" cbor:"saved_cost"`
	OverheadCost int `json:"overhead_cost" cbor:"overhead_cost"`
	NewCost      int `json:"new_cost" cbor:"new_cost"`
	NewCount     int `json:"new_count" cbor:"new_count"`
}

// Machine returns the machine for role.
func (p *Program) Machine(role Role) *MachineDef {
	if role == RoleSender {
		return &p.Sender
	}
	return &p.Receiver
}

// Optimized returns every multiplexed value in slot order.
func (p *Program) Optimized() []value.ValueSpec {
	var out []value.ValueSpec
	for _, s := range p.Slots {
		out = append(out, s.Values()...)
	}
	return out
}

// ChangeDetection reports whether filters were planned.
func (p *Program) ChangeDetection() bool {
	return p.Smoothing != ""
}

// CycleDuration is one full pass over every slot without resettles.
func (p *Program) CycleDuration() time.Duration {
	return time.Duration(p.SlotCount) * p.StepDelay
}

// Parameter looks up a generated parameter.
func (p *Program) Parameter(name string) (Parameter, bool) {
	for _, prm := range p.Parameters {
		if prm.Name == name {
			return prm, true
		}
	}
	return Parameter{}, false
}

// SetStateName and friends name the generated states for slot i.
func SetStateName(i int) string      { return fmt.Sprintf("%s%d", StateSetPrefix, i) }
func ResettleStateName(i int) string { return fmt.Sprintf("%s%d", StateResettle, i) }
func RecvStateName(i int) string     { return fmt.Sprintf("%s%d", StateRecvPrefix, i) }
