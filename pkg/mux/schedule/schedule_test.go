package schedule

import (
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/transfer"
	"github.com/provide-io/paramux/pkg/mux/value"
)

func testLogger(t *testing.T) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "test",
		Level:  hclog.Debug,
		Output: testWriter{t},
	})
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func candidates(bools, ints, floats int) []value.Candidate {
	var out []value.Candidate
	for i := 0; i < bools; i++ {
		out = append(out, value.Candidate{Spec: value.ValueSpec{Name: fmt.Sprintf("b%d", i), Kind: value.KindBool, Synced: true}, Selected: true})
	}
	for i := 0; i < ints; i++ {
		out = append(out, value.Candidate{Spec: value.ValueSpec{Name: fmt.Sprintf("i%d", i), Kind: value.KindInt, Synced: true}, Selected: true})
	}
	for i := 0; i < floats; i++ {
		out = append(out, value.Candidate{Spec: value.ValueSpec{Name: fmt.Sprintf("f%d", i), Kind: value.KindFloat, Synced: true}, Selected: true})
	}
	return out
}

func TestIndexerBits(t *testing.T) {
	tests := []struct {
		slots int
		want  int
	}{
		{2, 1}, {3, 2}, {4, 2}, {5, 3}, {8, 3}, {9, 4}, {16, 4}, {17, 5}, {32, 5},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("slots=%d", tt.slots), func(t *testing.T) {
			assert.Equal(t, tt.want, IndexerBits(tt.slots))
		})
	}
}

func TestIndexPatternAndBits(t *testing.T) {
	assert.Equal(t, "10", IndexPattern(2, 2))
	assert.Equal(t, "001", IndexPattern(1, 3))
	assert.True(t, IndexBit(2, 2))
	assert.False(t, IndexBit(2, 1))
	assert.Equal(t, 5, SlotOf([]bool{true, false, true}))

	for slot := 0; slot < 8; slot++ {
		var bitValues []bool
		for j := 1; j <= 3; j++ {
			bitValues = append(bitValues, IndexBit(slot, j))
		}
		assert.Equal(t, slot, SlotOf(bitValues))
	}
}

func TestClassifyTruncatesToMultiple(t *testing.T) {
	for n := 0; n < 12; n++ {
		for s := 2; s <= 5; s++ {
			plan, err := Classify(candidates(n, 0, 0), s)
			require.NoError(t, err)
			assert.Equal(t, n-n%s, len(plan.OptimizedBools))
			assert.Zero(t, len(plan.OptimizedBools)%s)
			assert.Equal(t, n%s, len(plan.RemainderBools))
		}
	}
}

func TestClassifyPreservesOrderAndSkipsUnselected(t *testing.T) {
	cands := candidates(3, 0, 0)
	cands[1].Selected = false
	cands = append(cands, value.Candidate{Spec: value.ValueSpec{Name: "off", Kind: value.KindBool}, Selected: true})

	plan, err := Classify(cands, 2)
	require.NoError(t, err)
	require.Len(t, plan.OptimizedBools, 2)
	assert.Equal(t, "b0", plan.OptimizedBools[0].Name)
	assert.Equal(t, "b2", plan.OptimizedBools[1].Name)
	assert.Equal(t, 3, plan.CurrentCost)
	assert.Equal(t, 4, plan.CurrentCount)
}

func TestClassifyDegenerate(t *testing.T) {
	_, err := Classify(candidates(4, 0, 0), 1)
	assert.ErrorIs(t, err, muxerrors.ErrDegenerateSlotCount)
}

func TestCheckSlotCount(t *testing.T) {
	assert.NoError(t, CheckSlotCount(4, false))
	assert.ErrorIs(t, CheckSlotCount(5, false), muxerrors.ErrSlotCountLimit)
	assert.NoError(t, CheckSlotCount(32, true))
	assert.ErrorIs(t, CheckSlotCount(33, true), muxerrors.ErrSlotCountLimit)
	assert.ErrorIs(t, CheckSlotCount(1, true), muxerrors.ErrDegenerateSlotCount)
	assert.Equal(t, 6, MaxUsefulSlotCount(candidates(6, 2, 1)))
}

func TestScenarioTenBoolsSixFloats(t *testing.T) {
	plan, err := Classify(candidates(10, 0, 6), 4)
	require.NoError(t, err)

	assert.Len(t, plan.OptimizedBools, 8)
	assert.Len(t, plan.RemainderBools, 2)
	assert.Len(t, plan.OptimizedWide, 4)
	assert.Len(t, plan.RemainderWide, 2)
	assert.Equal(t, 2, plan.IndexerBits())
	assert.Equal(t, 2, plan.BoolSlots())
	assert.Equal(t, 1, plan.WideSlots())
	assert.Equal(t, 12, plan.OverheadCost())

	prog, err := Compile(plan, value.DefaultBudget(), Options{
		StepDelay: DefaultStepDelay,
		Marker:    DefaultMarker(),
		Logger:    testLogger(t),
	})
	require.NoError(t, err)

	// 10 + 48 before; 8 + 32 saved; 12 overhead.
	assert.Equal(t, 58, plan.CurrentCost)
	assert.Equal(t, 40, prog.SavedCost)
	assert.Equal(t, 30, prog.NewCost)
	assert.LessOrEqual(t, prog.NewCost, value.DefaultMaxTotalCost)
	assert.Equal(t, 16+2+2+1, prog.NewCount)

	require.Len(t, prog.Slots, 4)
	assert.Equal(t, "b0", prog.Slots[0].Bools[0].Name)
	assert.Equal(t, "b1", prog.Slots[0].Bools[1].Name)
	assert.Equal(t, "b6", prog.Slots[3].Bools[0].Name)
	assert.Equal(t, "f3", prog.Slots[3].Wide[0].Name)
	assert.Equal(t, "11", prog.Slots[3].IndexBits)

	seen := map[string]int{}
	for _, v := range prog.Optimized() {
		seen[v.Name]++
	}
	assert.Len(t, seen, 12)
	for name, n := range seen {
		assert.Equal(t, 1, n, name)
	}
}

func TestScenarioSingleBoolTwoSlots(t *testing.T) {
	plan, err := Classify(candidates(1, 0, 0), 2)
	require.NoError(t, err)
	assert.Empty(t, plan.OptimizedBools)
	assert.Zero(t, plan.SavedCost())

	_, err = Compile(plan, value.DefaultBudget(), DefaultOptions())
	assert.ErrorIs(t, err, muxerrors.ErrNothingToOptimize)
}

func TestCompileBudgetExceeded(t *testing.T) {
	plan, err := Classify(candidates(4, 2, 0), 2)
	require.NoError(t, err)

	_, err = Compile(plan, value.ChannelBudget{MaxTotalCost: 10, MaxValueCount: 8192}, DefaultOptions())
	require.ErrorIs(t, err, muxerrors.ErrBudgetExceeded)

	var be *muxerrors.BudgetExceededError
	require.ErrorAs(t, err, &be)
	// 20 - 20 + (1 + 2 + 8) = 11
	assert.Equal(t, 11, be.NewCost)
	assert.Equal(t, 1, be.ExcessCost)
	assert.Zero(t, be.ExcessCount)

	_, err = Compile(plan, value.ChannelBudget{MaxTotalCost: 256, MaxValueCount: 8}, DefaultOptions())
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 10, be.NewCount)
	assert.Equal(t, 2, be.ExcessCount)
}

func TestCompileRejectsBadOptions(t *testing.T) {
	plan, err := Classify(candidates(4, 0, 0), 2)
	require.NoError(t, err)

	_, err = Compile(plan, value.DefaultBudget(), Options{StepDelay: 0, Marker: DefaultMarker()})
	assert.ErrorIs(t, err, muxerrors.ErrInvalidStepDelay)

	_, err = Compile(plan, value.DefaultBudget(), Options{StepDelay: time.Second})
	assert.Error(t, err)

	plan.SlotCount = 1
	_, err = Compile(plan, value.DefaultBudget(), DefaultOptions())
	assert.ErrorIs(t, err, muxerrors.ErrDegenerateSlotCount)
}

func TestCompileIsDeterministic(t *testing.T) {
	plan, err := Classify(candidates(6, 3, 3), 3)
	require.NoError(t, err)

	a, err := Compile(plan, value.DefaultBudget(), DefaultOptions())
	require.NoError(t, err)
	b, err := Compile(plan, value.DefaultBudget(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSenderMachine(t *testing.T) {
	plan, err := Classify(append(candidates(4, 0, 0), candidates(0, 0, 2)...), 2)
	require.NoError(t, err)
	prog, err := Compile(plan, value.DefaultBudget(), DefaultOptions())
	require.NoError(t, err)

	m := prog.Sender
	assert.Equal(t, StateEntry, m.Entry)

	entry := m.From(StateEntry)
	require.Len(t, entry, 1)
	assert.Equal(t, SetStateName(0), entry[0].To)
	assert.True(t, entry[0].Timed)
	assert.Zero(t, entry[0].After)

	for i := 0; i < 2; i++ {
		out := m.From(SetStateName(i))
		require.Len(t, out, 1)
		assert.Equal(t, SetStateName((i+1)%2), out[0].To)
		assert.Equal(t, DefaultStepDelay, out[0].After)
	}

	set1, ok := m.State(SetStateName(1))
	require.True(t, ok)
	require.Len(t, set1.Drivers, 1+2+1)
	assert.Equal(t, Driver{Op: DriverSet, Dest: "PMux_Indexer 1", Value: 1}, set1.Drivers[0])
	assert.Equal(t, Driver{Op: DriverCopy, Source: "b2", Dest: "PMux_BoolSyncer 1"}, set1.Drivers[1])
	assert.Equal(t, Driver{Op: DriverCopy, Source: "f1", Dest: "PMux_WideSyncer 1", Transfer: transfer.UnitToByte}, set1.Drivers[3])
}

func TestReceiverMachine(t *testing.T) {
	plan, err := Classify(candidates(8, 0, 0), 4)
	require.NoError(t, err)
	prog, err := Compile(plan, value.DefaultBudget(), DefaultOptions())
	require.NoError(t, err)

	m := prog.Receiver
	assert.Equal(t, StateWait, m.Entry)

	wait := m.From(StateWait)
	require.Len(t, wait, 4)
	assert.Equal(t, RecvStateName(2), wait[2].To)
	assert.Equal(t, []Condition{
		{Param: "PMux_Indexer 1", Op: OpIfNot},
		{Param: "PMux_Indexer 2", Op: OpIf},
	}, wait[2].Conditions)

	back := m.From(RecvStateName(2))
	require.Len(t, back, 2)
	for _, tr := range back {
		assert.Equal(t, StateWait, tr.To)
		assert.Len(t, tr.Conditions, 1)
	}
	assert.Equal(t, OpIf, back[0].Conditions[0].Op)
	assert.Equal(t, OpIfNot, back[1].Conditions[0].Op)

	recv, ok := m.State(RecvStateName(2))
	require.True(t, ok)
	for _, d := range recv.Drivers {
		assert.True(t, d.Reverse)
		assert.Equal(t, DriverCopy, d.Op)
		assert.NotEqual(t, "PMux_Indexer 1", d.Dest)
	}
}

func TestChangeDetectionSlotScope(t *testing.T) {
	plan, err := Classify(append(candidates(2, 2, 0), candidates(0, 0, 2)...), 2)
	require.NoError(t, err)
	prog, err := Compile(plan, value.DefaultBudget(), DefaultOptions())
	require.NoError(t, err)

	opts := DefaultChangeDetection()
	opts.Logger = testLogger(t)
	require.NoError(t, PlanChangeDetection(prog, opts))

	assert.True(t, prog.ChangeDetection())
	assert.Equal(t, "PMux_ParamSmoothing", prog.Smoothing)
	require.Len(t, prog.Filters, 6)

	smoothing, ok := prog.Parameter(prog.Smoothing)
	require.True(t, ok)
	assert.InDelta(t, DefaultSmoothing, smoothing.Default, 1e-9)
	assert.False(t, smoothing.Synced)

	for _, f := range prog.Filters {
		switch f.Source[0] {
		case 'f':
			assert.Empty(t, f.Copy)
			assert.Equal(t, -1.0, f.Min)
		case 'i':
			assert.Equal(t, "PMux_"+f.Source+"_Copy", f.Copy)
			assert.InDelta(t, 1.0/255, f.Scale, 1e-12)
		default:
			assert.Equal(t, 1.0, f.Scale)
			assert.Equal(t, 0.0, f.Min)
		}
	}

	out := prog.Sender.From(SetStateName(0))
	// three values in slot 0, two guards each, then the timed step
	require.Len(t, out, 7)
	for _, tr := range out[:6] {
		assert.Equal(t, ResettleStateName(0), tr.To)
	}
	assert.Equal(t, OpGreater, out[0].Conditions[0].Op)
	assert.Equal(t, DefaultSensitivity, out[0].Conditions[0].Threshold)
	assert.Equal(t, OpLess, out[1].Conditions[0].Op)
	assert.Equal(t, -DefaultSensitivity, out[1].Conditions[0].Threshold)
	assert.Equal(t, SetStateName(1), out[6].To)

	resettle := prog.Sender.From(ResettleStateName(1))
	require.Len(t, resettle, 1)
	assert.Equal(t, SetStateName(1), resettle[0].To)
	assert.Equal(t, DefaultStepDelay/4, resettle[0].After)

	set0, _ := prog.Sender.State(SetStateName(0))
	res0, _ := prog.Sender.State(ResettleStateName(0))
	assert.Equal(t, Driver{Op: DriverSet, Dest: prog.Smoothing, Value: 0}, set0.Drivers[0])
	assert.Equal(t, Driver{Op: DriverSet, Dest: prog.Smoothing, Value: 1}, res0.Drivers[0])
	assert.Equal(t, set0.Drivers[1:], res0.Drivers[1:])

	assert.Error(t, PlanChangeDetection(prog, opts))
}

func TestChangeDetectionAnyScope(t *testing.T) {
	plan, err := Classify(candidates(4, 0, 0), 2)
	require.NoError(t, err)
	prog, err := Compile(plan, value.DefaultBudget(), DefaultOptions())
	require.NoError(t, err)

	opts := DefaultChangeDetection()
	opts.Scope = ScopeAny
	require.NoError(t, PlanChangeDetection(prog, opts))

	out := prog.Sender.From(SetStateName(1))
	require.Len(t, out, 4*2+1)
	assert.Equal(t, ResettleStateName(1), out[0].To)
	assert.Equal(t, ResettleStateName(0), out[4].To)
}

func TestChangeDetectionRejectsBadSensitivity(t *testing.T) {
	plan, err := Classify(candidates(4, 0, 0), 2)
	require.NoError(t, err)
	prog, err := Compile(plan, value.DefaultBudget(), DefaultOptions())
	require.NoError(t, err)

	before := *prog
	err = PlanChangeDetection(prog, ChangeDetectionOptions{Sensitivity: 0})
	assert.ErrorIs(t, err, muxerrors.ErrInvalidSensitivity)
	assert.Equal(t, before, *prog)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("ANY")
	require.NoError(t, err)
	assert.Equal(t, ScopeAny, s)
	s, err = ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeSlot, s)
	_, err = ParseScope("global")
	assert.Error(t, err)
}

func TestMarker(t *testing.T) {
	m := DefaultMarker()
	assert.True(t, m.Valid())
	assert.True(t, m.Generated("PMux_Indexer 1"))
	assert.False(t, m.Generated("Hat"))
	assert.Equal(t, "PMux_Syncing", m.SyncingLayer())
	assert.False(t, Marker{Prefix: "x", SyncingTag: "a", LoweringTag: "a"}.Valid())
}
