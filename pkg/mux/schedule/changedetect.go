package schedule

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/value"
)

// Scope decides which sender set states watch a slot's differentials.
type Scope uint8

const (
	// ScopeSlot watches a slot's values only while that slot is being sent.
	ScopeSlot Scope = iota
	// ScopeAny watches every value from every set state, so a change anywhere
	// jumps the sender to the changed slot.
	ScopeAny
)

func (s Scope) String() string {
	if s == ScopeAny {
		return "any"
	}
	return "slot"
}

func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "slot":
		return ScopeSlot, nil
	case "any":
		return ScopeAny, nil
	default:
		return 0, fmt.Errorf("unknown change detection scope %q (want slot or any)", s)
	}
}

// ChangeDetectionOptions tune the resettle gate.
type ChangeDetectionOptions struct {
	Sensitivity float64
	Smoothing   float64
	Scope       Scope
	Logger      hclog.Logger
}

func DefaultChangeDetection() ChangeDetectionOptions {
	return ChangeDetectionOptions{
		Sensitivity: DefaultSensitivity,
		Smoothing:   DefaultSmoothing,
		Scope:       ScopeSlot,
	}
}

// PlanChangeDetection adds smoothing filters and resettle states to prog.
// prog is left untouched when an error is returned.
func PlanChangeDetection(prog *Program, opts ChangeDetectionOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("changedetect")

	if opts.Sensitivity <= 0 {
		return fmt.Errorf("%w: got %v", muxerrors.ErrInvalidSensitivity, opts.Sensitivity)
	}
	if prog.ChangeDetection() {
		return fmt.Errorf("change detection already planned on this program")
	}
	if opts.Smoothing <= 0 || opts.Smoothing > 1 {
		opts.Smoothing = DefaultSmoothing
	}

	prefix := prog.Marker.Prefix
	smoothing := prefix + SmoothingName
	params := []Parameter{{Name: smoothing, Kind: value.KindFloat, Default: opts.Smoothing}}

	var filters []Filter
	bySlot := make(map[int][]Filter, prog.SlotCount)
	for _, s := range prog.Slots {
		for _, v := range s.Values() {
			f := Filter{
				Slot:         s.Index,
				Source:       v.Name,
				Smoothed:     prefix + v.Name + SmoothedSuffix,
				Differential: prefix + v.Name + DeltaSuffix,
				Min:          0,
				Max:          1,
			}
			switch v.Kind {
			case value.KindFloat:
				f.Min = -1
			case value.KindInt:
				f.Copy, f.Scale = prefix+v.Name+CopySuffix, 1.0/255
				params = append(params, Parameter{Name: f.Copy, Kind: value.KindFloat})
			default:
				f.Copy, f.Scale = prefix+v.Name+CopySuffix, 1
				params = append(params, Parameter{Name: f.Copy, Kind: value.KindFloat})
			}
			params = append(params,
				Parameter{Name: f.Smoothed, Kind: value.KindFloat},
				Parameter{Name: f.Differential, Kind: value.KindFloat})
			filters = append(filters, f)
			bySlot[s.Index] = append(bySlot[s.Index], f)
		}
	}

	sender := prog.Sender
	states := make([]State, 0, len(sender.States)+prog.SlotCount)
	for _, st := range sender.States {
		if st.Slot == NoSlot {
			states = append(states, st)
			continue
		}
		slotDrivers := st.Drivers
		st.Drivers = append([]Driver{{Op: DriverSet, Dest: smoothing, Value: 0}}, slotDrivers...)
		states = append(states, st)
		states = append(states, State{
			Name:    ResettleStateName(st.Slot),
			Slot:    st.Slot,
			Drivers: append([]Driver{{Op: DriverSet, Dest: smoothing, Value: 1}}, slotDrivers...),
		})
	}

	window := prog.StepDelay / resettleFraction
	transitions := make([]Transition, 0, len(sender.Transitions)+len(filters)*2+prog.SlotCount)
	for _, t := range sender.Transitions {
		from, ok := sender.State(t.From)
		if ok && from.Slot != NoSlot {
			for _, target := range resettleTargets(from.Slot, prog.SlotCount, opts.Scope) {
				for _, f := range bySlot[target] {
					transitions = append(transitions,
						Transition{From: t.From, To: ResettleStateName(target), Conditions: []Condition{
							{Param: f.Differential, Op: OpGreater, Threshold: opts.Sensitivity},
						}},
						Transition{From: t.From, To: ResettleStateName(target), Conditions: []Condition{
							{Param: f.Differential, Op: OpLess, Threshold: -opts.Sensitivity},
						}},
					)
				}
			}
		}
		transitions = append(transitions, t)
	}
	for _, s := range prog.Slots {
		transitions = append(transitions, Transition{
			From:  ResettleStateName(s.Index),
			To:    SetStateName(s.Index),
			Timed: true,
			After: window,
		})
	}

	sender.States = states
	sender.Transitions = transitions
	prog.Sender = sender
	prog.Parameters = append(prog.Parameters, params...)
	prog.Filters = filters
	prog.Smoothing = smoothing

	logger.Info("🌊 Planned change detection",
		"filters", len(filters),
		"sensitivity", opts.Sensitivity,
		"scope", opts.Scope.String(),
		"window", window)
	return nil
}

// resettleTargets lists the slots whose differentials set state `slot` watches,
// its own slot first.
func resettleTargets(slot, slotCount int, scope Scope) []int {
	if scope == ScopeSlot {
		return []int{slot}
	}
	out := make([]int, 0, slotCount)
	for k := 0; k < slotCount; k++ {
		out = append(out, (slot+k)%slotCount)
	}
	return out
}
