package schedule

import (
	"fmt"
	"math/bits"
)

// IndexerBits is the number of channel bits needed to address slotCount slots:
// the bit length of slotCount-1.
func IndexerBits(slotCount int) int {
	if slotCount < 2 {
		return 0
	}
	return bits.Len(uint(slotCount - 1))
}

// IndexPattern returns the fixed-width binary string of slot, most significant
// bit first.
func IndexPattern(slot, width int) string {
	return fmt.Sprintf("%0*b", width, slot)
}

// IndexBit reports bit j (1-based, least significant first) of slot. Indexer
// parameter j carries this bit.
func IndexBit(slot, j int) bool {
	return (slot>>(j-1))&1 == 1
}

// IndexerParam names the j-th indexer channel parameter.
func IndexerParam(prefix string, j int) string {
	return fmt.Sprintf("%s%s%d", prefix, IndexerName, j)
}

// SlotOf decodes the slot addressed by the indexer bit values (least
// significant first).
func SlotOf(bitValues []bool) int {
	slot := 0
	for j, set := range bitValues {
		if set {
			slot |= 1 << j
		}
	}
	return slot
}

// MatchConditions is the receiver guard for slot: every indexer bit equals the
// slot's pattern.
func MatchConditions(prefix string, slot, width int) []Condition {
	conds := make([]Condition, 0, width)
	for j := 1; j <= width; j++ {
		op := OpIfNot
		if IndexBit(slot, j) {
			op = OpIf
		}
		conds = append(conds, Condition{Param: IndexerParam(prefix, j), Op: op})
	}
	return conds
}

// MismatchConditions returns one single-condition guard per indexer bit, each
// holding when that bit differs from the slot's pattern.
func MismatchConditions(prefix string, slot, width int) [][]Condition {
	out := make([][]Condition, 0, width)
	for j := 1; j <= width; j++ {
		op := OpIf
		if IndexBit(slot, j) {
			op = OpIfNot
		}
		out = append(out, []Condition{{Param: IndexerParam(prefix, j), Op: op}})
	}
	return out
}

// IndexerDrivers sets every indexer bit to the slot's pattern.
func IndexerDrivers(prefix string, slot, width int) []Driver {
	drivers := make([]Driver, 0, width)
	for j := 1; j <= width; j++ {
		v := 0.0
		if IndexBit(slot, j) {
			v = 1
		}
		drivers = append(drivers, Driver{Op: DriverSet, Dest: IndexerParam(prefix, j), Value: v})
	}
	return drivers
}
