package host

import (
	"fmt"
	"strings"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/transfer"
	"github.com/provide-io/paramux/pkg/mux/value"
)

// Lower writes prog into h: generated parameters, a syncing layer that splits
// into the sender (local) and receiver (remote) machines, and a change
// detection layer when filters exist. Each layer gets its marker. Conflicts are
// checked before anything is written.
func Lower(h Host, prog *schedule.Program) error {
	m := prog.Marker
	existing := make(map[string]bool)
	for _, p := range h.Parameters() {
		existing[p.Name] = true
	}
	for _, p := range prog.Parameters {
		if existing[p.Name] {
			return fmt.Errorf("lowering: parameter %q already exists", p.Name)
		}
	}
	layers := []Layer{syncingLayer(prog)}
	if prog.ChangeDetection() {
		layers = append(layers, Layer{
			Name: m.ChangeTreeLayer(),
			Tree: &BlendTree{Smoothing: prog.Smoothing, Filters: prog.Filters},
		})
	}
	for _, l := range layers {
		if _, ok := h.Layer(l.Name); ok {
			return fmt.Errorf("lowering: layer %q already exists", l.Name)
		}
	}

	for _, p := range prog.Parameters {
		if err := h.AddParameter(p); err != nil {
			return fmt.Errorf("lowering: %w", err)
		}
	}
	for _, l := range layers {
		if err := h.AddLayer(l); err != nil {
			return fmt.Errorf("lowering: %w", err)
		}
	}
	if err := h.AddMarker(m.SyncingLayer(), m.SyncingTag); err != nil {
		return fmt.Errorf("lowering: %w", err)
	}
	if prog.ChangeDetection() {
		if err := h.AddMarker(m.ChangeTreeLayer(), m.LoweringTag); err != nil {
			return fmt.Errorf("lowering: %w", err)
		}
	}
	return nil
}

func syncingLayer(prog *schedule.Program) Layer {
	return Layer{
		Name: prog.Marker.SyncingLayer(),
		Machines: []SubMachine{
			{
				Name:    "Local",
				Guard:   schedule.Condition{Param: schedule.IsLocalName, Op: schedule.OpIf},
				Machine: prog.Sender,
			},
			{
				Name:    "Remote",
				Guard:   schedule.Condition{Param: schedule.IsLocalName, Op: schedule.OpIfNot},
				Machine: prog.Receiver,
			},
		},
	}
}

// Raise reads an installed program back out of h. Slot contents are rebuilt
// from the sender's copy drivers.
func Raise(h Host, m schedule.Marker) (*schedule.Program, error) {
	syncing := h.Markers(m.SyncingTag)
	switch {
	case len(syncing) == 0:
		return nil, muxerrors.ErrNotInstalled
	case len(syncing) > 1:
		return nil, fmt.Errorf("%w: %d syncing markers", muxerrors.ErrStructuralAmbiguity, len(syncing))
	}
	layer, ok := h.Layer(syncing[0])
	if !ok {
		return nil, fmt.Errorf("%w: syncing layer %q", muxerrors.ErrInvalidFormat, syncing[0])
	}
	sender, ok := layer.Machine(schedule.RoleSender)
	if !ok {
		return nil, fmt.Errorf("%w: no sender machine", muxerrors.ErrInvalidFormat)
	}
	receiver, ok := layer.Machine(schedule.RoleReceiver)
	if !ok {
		return nil, fmt.Errorf("%w: no receiver machine", muxerrors.ErrInvalidFormat)
	}

	prog := &schedule.Program{Marker: m, Sender: *sender, Receiver: *receiver}
	for _, p := range h.Parameters() {
		if !m.Generated(p.Name) {
			continue
		}
		prog.Parameters = append(prog.Parameters, p)
		switch {
		case strings.HasPrefix(p.Name, m.Prefix+schedule.IndexerName):
			prog.IndexerBits++
		case strings.HasPrefix(p.Name, m.Prefix+schedule.BoolSyncerName):
			prog.BoolSlots++
		case strings.HasPrefix(p.Name, m.Prefix+schedule.WideSyncerName):
			prog.WideSlots++
		}
	}

	prog.Slots = RecoverSlots(sender, m)
	prog.SlotCount = len(prog.Slots)
	for _, t := range sender.From(schedule.SetStateName(0)) {
		if t.Timed {
			prog.StepDelay = t.After
		}
	}

	if lowering := h.Markers(m.LoweringTag); len(lowering) == 1 {
		if l, ok := h.Layer(lowering[0]); ok && l.Tree != nil {
			prog.Smoothing = l.Tree.Smoothing
			prog.Filters = l.Tree.Filters
		}
	}
	return prog, nil
}

// RecoverSlots rebuilds each slot's values from the copy drivers of the
// sender's set states. Kinds follow the syncer class and the transfer used.
func RecoverSlots(sender *schedule.MachineDef, m schedule.Marker) []schedule.Slot {
	var slots []schedule.Slot
	for i := 0; ; i++ {
		st, ok := sender.State(schedule.SetStateName(i))
		if !ok {
			break
		}
		slot := schedule.Slot{Index: i}
		for _, d := range st.Drivers {
			if d.Op != schedule.DriverCopy || !m.Generated(d.Dest) {
				continue
			}
			switch {
			case strings.HasPrefix(d.Dest, m.Prefix+schedule.BoolSyncerName):
				slot.Bools = append(slot.Bools, value.ValueSpec{Name: d.Source, Kind: value.KindBool})
			case strings.HasPrefix(d.Dest, m.Prefix+schedule.WideSyncerName):
				kind := value.KindInt
				if d.Transfer != transfer.Copy {
					kind = value.KindFloat
				}
				slot.Wide = append(slot.Wide, value.ValueSpec{Name: d.Source, Kind: kind})
			}
		}
		slots = append(slots, slot)
	}
	if n := len(slots); n > 0 {
		width := schedule.IndexerBits(n)
		for i := range slots {
			slots[i].IndexBits = schedule.IndexPattern(i, width)
		}
	}
	return slots
}
