package value

import "fmt"

const (
	DefaultMaxTotalCost  = 256
	DefaultMaxValueCount = 8192
)

// ChannelBudget is the ceiling the shared channel imposes on total cost and
// on the number of distinct values.
type ChannelBudget struct {
	MaxTotalCost  int `koanf:"max_total_cost"`
	MaxValueCount int `koanf:"max_value_count"`
}

// DefaultBudget returns the reference budget of 256 cost units and 8192 values.
func DefaultBudget() ChannelBudget {
	return ChannelBudget{
		MaxTotalCost:  DefaultMaxTotalCost,
		MaxValueCount: DefaultMaxValueCount,
	}
}

func (b ChannelBudget) Validate() error {
	if b.MaxTotalCost <= 0 {
		return fmt.Errorf("budget max_total_cost must be positive, got %d", b.MaxTotalCost)
	}
	if b.MaxValueCount <= 0 {
		return fmt.Errorf("budget max_value_count must be positive, got %d", b.MaxValueCount)
	}
	return nil
}

// Allows reports whether cost and count both fit.
func (b ChannelBudget) Allows(cost, count int) bool {
	return cost <= b.MaxTotalCost && count <= b.MaxValueCount
}
