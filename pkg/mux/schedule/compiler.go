package schedule

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/transfer"
	"github.com/provide-io/paramux/pkg/mux/value"
)

// Options control compilation.
type Options struct {
	StepDelay time.Duration
	Marker    Marker

	// SignedFloats carries Float values in [-1,1] instead of [0,1].
	SignedFloats bool

	Logger hclog.Logger
}

// DefaultOptions returns a 200ms step delay and the default marker.
func DefaultOptions() Options {
	return Options{StepDelay: DefaultStepDelay, Marker: DefaultMarker()}
}

// Compile turns a plan into a program for both roles. It either returns a
// complete program or an error; nothing partial is emitted.
func Compile(plan Plan, budget value.ChannelBudget, opts Options) (*Program, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("compiler")

	if plan.SlotCount < 2 {
		return nil, fmt.Errorf("%w: got %d", muxerrors.ErrDegenerateSlotCount, plan.SlotCount)
	}
	if opts.StepDelay <= 0 {
		return nil, fmt.Errorf("%w: got %s", muxerrors.ErrInvalidStepDelay, opts.StepDelay)
	}
	if !opts.Marker.Valid() {
		return nil, fmt.Errorf("invalid install marker %+v", opts.Marker)
	}
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	if plan.OptimizedCount() == 0 {
		return nil, muxerrors.ErrNothingToOptimize
	}

	newCost, newCount := plan.NewCost(), plan.NewCount()
	logger.Debug("🧮 Budget check",
		"current_cost", plan.CurrentCost,
		"saved", plan.SavedCost(),
		"overhead", plan.OverheadCost(),
		"new_cost", newCost,
		"max_cost", budget.MaxTotalCost,
		"new_count", newCount,
		"max_count", budget.MaxValueCount)
	if !budget.Allows(newCost, newCount) {
		return nil, &muxerrors.BudgetExceededError{
			NewCost:     newCost,
			MaxCost:     budget.MaxTotalCost,
			ExcessCost:  max(0, newCost-budget.MaxTotalCost),
			NewCount:    newCount,
			MaxCount:    budget.MaxValueCount,
			ExcessCount: max(0, newCount-budget.MaxValueCount),
		}
	}

	c := &compiler{
		plan:   plan,
		opts:   opts,
		prefix: opts.Marker.Prefix,
		width:  plan.IndexerBits(),
	}
	prog := &Program{
		Marker:       opts.Marker,
		SlotCount:    plan.SlotCount,
		IndexerBits:  c.width,
		BoolSlots:    plan.BoolSlots(),
		WideSlots:    plan.WideSlots(),
		StepDelay:    opts.StepDelay,
		SavedCost:    plan.SavedCost(),
		OverheadCost: plan.OverheadCost(),
		NewCost:      newCost,
		NewCount:     newCount,
	}
	prog.Slots = c.assignSlots()
	prog.Parameters = c.channelParameters()
	prog.Sender = c.sender(prog.Slots)
	prog.Receiver = c.receiver(prog.Slots)

	logger.Info("✅ Compiled multiplexer",
		"slots", prog.SlotCount,
		"indexer_bits", prog.IndexerBits,
		"bool_slots", prog.BoolSlots,
		"wide_slots", prog.WideSlots,
		"optimized", plan.OptimizedCount(),
		"new_cost", newCost)
	return prog, nil
}

type compiler struct {
	plan   Plan
	opts   Options
	prefix string
	width  int
}

func (c *compiler) boolSyncer(k int) string {
	return fmt.Sprintf("%s%s%d", c.prefix, BoolSyncerName, k+1)
}

func (c *compiler) wideSyncer(k int) string {
	return fmt.Sprintf("%s%s%d", c.prefix, WideSyncerName, k+1)
}

// assignSlots hands candidate i of a class to slot i / perSlot.
func (c *compiler) assignSlots() []Slot {
	b, w := c.plan.BoolSlots(), c.plan.WideSlots()
	slots := make([]Slot, c.plan.SlotCount)
	for i := range slots {
		slots[i] = Slot{
			Index:     i,
			IndexBits: IndexPattern(i, c.width),
			Bools:     c.plan.OptimizedBools[i*b : (i+1)*b],
			Wide:      c.plan.OptimizedWide[i*w : (i+1)*w],
		}
	}
	return slots
}

func (c *compiler) channelParameters() []Parameter {
	var params []Parameter
	for j := 1; j <= c.width; j++ {
		params = append(params, Parameter{Name: IndexerParam(c.prefix, j), Kind: value.KindBool, Synced: true})
	}
	for k := 0; k < c.plan.BoolSlots(); k++ {
		params = append(params, Parameter{Name: c.boolSyncer(k), Kind: value.KindBool, Synced: true})
	}
	for k := 0; k < c.plan.WideSlots(); k++ {
		params = append(params, Parameter{Name: c.wideSyncer(k), Kind: value.KindInt, Synced: true})
	}
	return params
}

func (c *compiler) floatTransfer() uint8 {
	if c.opts.SignedFloats {
		return transfer.WideToByte
	}
	return transfer.UnitToByte
}

func (c *compiler) transferFor(v value.ValueSpec) uint8 {
	if v.Kind == value.KindFloat {
		return c.floatTransfer()
	}
	return transfer.Copy
}

// copies returns the slot's copy drivers. Receivers copy syncer -> value with
// the transfer reversed.
func (c *compiler) copies(s Slot, role Role) []Driver {
	var drivers []Driver
	emit := func(v value.ValueSpec, syncer string) {
		d := Driver{Op: DriverCopy, Transfer: c.transferFor(v)}
		if role == RoleSender {
			d.Source, d.Dest = v.Name, syncer
		} else {
			d.Source, d.Dest, d.Reverse = syncer, v.Name, true
		}
		drivers = append(drivers, d)
	}
	for k, v := range s.Bools {
		emit(v, c.boolSyncer(k))
	}
	for k, v := range s.Wide {
		emit(v, c.wideSyncer(k))
	}
	return drivers
}

// SlotDrivers is what a sender does when it enters slot s.
func (c *compiler) slotDrivers(s Slot) []Driver {
	return append(IndexerDrivers(c.prefix, s.Index, c.width), c.copies(s, RoleSender)...)
}

func (c *compiler) sender(slots []Slot) MachineDef {
	m := MachineDef{Role: RoleSender, Entry: StateEntry}
	m.States = append(m.States, State{Name: StateEntry, Slot: NoSlot})
	m.Transitions = append(m.Transitions, Transition{From: StateEntry, To: SetStateName(0), Timed: true})

	n := len(slots)
	for _, s := range slots {
		m.States = append(m.States, State{Name: SetStateName(s.Index), Slot: s.Index, Drivers: c.slotDrivers(s)})
		m.Transitions = append(m.Transitions, Transition{
			From:  SetStateName(s.Index),
			To:    SetStateName((s.Index + 1) % n),
			Timed: true,
			After: c.opts.StepDelay,
		})
	}
	return m
}

func (c *compiler) receiver(slots []Slot) MachineDef {
	m := MachineDef{Role: RoleReceiver, Entry: StateWait}
	m.States = append(m.States, State{Name: StateWait, Slot: NoSlot})
	for _, s := range slots {
		m.States = append(m.States, State{Name: RecvStateName(s.Index), Slot: s.Index, Drivers: c.copies(s, RoleReceiver)})
		m.Transitions = append(m.Transitions, Transition{
			From:       StateWait,
			To:         RecvStateName(s.Index),
			Conditions: MatchConditions(c.prefix, s.Index, c.width),
		})
	}
	for _, s := range slots {
		for _, conds := range MismatchConditions(c.prefix, s.Index, c.width) {
			m.Transitions = append(m.Transitions, Transition{
				From:       RecvStateName(s.Index),
				To:         StateWait,
				Conditions: conds,
			})
		}
	}
	return m
}
