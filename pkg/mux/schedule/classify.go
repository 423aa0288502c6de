package schedule

import (
	"fmt"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/value"
)

// Plan is the classifier's output: which values get multiplexed and which
// stay on the channel, plus what the channel carries today.
type Plan struct {
	SlotCount      int
	OptimizedBools []value.ValueSpec
	OptimizedWide  []value.ValueSpec
	RemainderBools []value.ValueSpec
	RemainderWide  []value.ValueSpec

	// CurrentCost and CurrentCount describe every candidate before install.
	CurrentCost  int
	CurrentCount int
}

func (p Plan) IndexerBits() int { return IndexerBits(p.SlotCount) }

func (p Plan) BoolSlots() int {
	if p.SlotCount < 2 {
		return 0
	}
	return len(p.OptimizedBools) / p.SlotCount
}

func (p Plan) WideSlots() int {
	if p.SlotCount < 2 {
		return 0
	}
	return len(p.OptimizedWide) / p.SlotCount
}

// OverheadCost is what the generated channel parameters cost.
func (p Plan) OverheadCost() int {
	return p.IndexerBits() + p.BoolSlots() + 8*p.WideSlots()
}

// SavedCost is the cost of the values taken off the channel.
func (p Plan) SavedCost() int {
	return value.TotalCost(p.OptimizedBools) + value.TotalCost(p.OptimizedWide)
}

// NewCost is the channel cost after install.
func (p Plan) NewCost() int {
	return p.CurrentCost - p.SavedCost() + p.OverheadCost()
}

// NewCount is the parameter count after install.
func (p Plan) NewCount() int {
	return p.CurrentCount + p.IndexerBits() + p.BoolSlots() + p.WideSlots()
}

// OptimizedCount is the number of multiplexed values.
func (p Plan) OptimizedCount() int {
	return len(p.OptimizedBools) + len(p.OptimizedWide)
}

// Classify partitions the selected, synced candidates by cost class in input
// order and keeps the largest multiple of slotCount from each class.
func Classify(candidates []value.Candidate, slotCount int) (Plan, error) {
	if slotCount < 2 {
		return Plan{}, fmt.Errorf("%w: got %d", muxerrors.ErrDegenerateSlotCount, slotCount)
	}

	plan := Plan{SlotCount: slotCount, CurrentCount: len(candidates)}
	var bools, wide []value.ValueSpec
	for _, c := range candidates {
		plan.CurrentCost += value.Cost(c.Spec)
		if !c.Selected || !c.Spec.Synced {
			continue
		}
		if c.Spec.Class() == value.ClassBool {
			bools = append(bools, c.Spec)
		} else {
			wide = append(wide, c.Spec)
		}
	}

	plan.OptimizedBools, plan.RemainderBools = splitMultiple(bools, slotCount)
	plan.OptimizedWide, plan.RemainderWide = splitMultiple(wide, slotCount)
	return plan, nil
}

func splitMultiple(specs []value.ValueSpec, slotCount int) (keep, rest []value.ValueSpec) {
	n := len(specs) - len(specs)%slotCount
	return specs[:n:n], specs[n:]
}

// MaxUsefulSlotCount is the largest slot count that still optimizes at least
// one value: the size of the larger selected class.
func MaxUsefulSlotCount(candidates []value.Candidate) int {
	bools, wide := 0, 0
	for _, c := range candidates {
		if !c.Selected || !c.Spec.Synced {
			continue
		}
		if c.Spec.Class() == value.ClassBool {
			bools++
		} else {
			wide++
		}
	}
	return max(bools, wide)
}

// SlotCeiling is the maximum slot count allowed.
func SlotCeiling(unlocked bool) int {
	if unlocked {
		return UnlockedMaxSlotCount
	}
	return MaxSlotCount
}

// CheckSlotCount validates slotCount against the degenerate floor and the
// ceiling.
func CheckSlotCount(slotCount int, unlocked bool) error {
	if slotCount < 2 {
		return fmt.Errorf("%w: got %d", muxerrors.ErrDegenerateSlotCount, slotCount)
	}
	if ceiling := SlotCeiling(unlocked); slotCount > ceiling {
		return fmt.Errorf("%w: %d > %d", muxerrors.ErrSlotCountLimit, slotCount, ceiling)
	}
	return nil
}
