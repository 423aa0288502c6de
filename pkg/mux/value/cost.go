package value

// Cost returns the channel bit cost of v: 1 for Bool, 8 for Int and Float,
// 0 when the value is not synced.
func Cost(v ValueSpec) int {
	if !v.Synced {
		return 0
	}
	return v.Class().Cost()
}

// TotalCost sums Cost over values.
func TotalCost(values []ValueSpec) int {
	total := 0
	for _, v := range values {
		total += Cost(v)
	}
	return total
}
