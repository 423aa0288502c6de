// Package runtime executes compiled programs: each peer interprets its role's
// machine and the two only share a Channel.
package runtime

import (
	"math"
	"sort"
	"sync"

	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/value"
)

// Channel is the set of synced parameters. A write is visible to the other
// peer as soon as it returns.
type Channel struct {
	mu    sync.RWMutex
	kinds map[string]value.Kind
	vals  map[string]float64
}

// NewChannel holds the synced parameters of params.
func NewChannel(params []schedule.Parameter) *Channel {
	c := &Channel{
		kinds: make(map[string]value.Kind),
		vals:  make(map[string]float64),
	}
	for _, p := range params {
		if !p.Synced {
			continue
		}
		c.kinds[p.Name] = p.Kind
		c.vals[p.Name] = coerce(p.Kind, p.Default)
	}
	return c
}

// Has reports whether name is carried by the channel. The parameter set never
// changes after construction.
func (c *Channel) Has(name string) bool {
	_, ok := c.kinds[name]
	return ok
}

func (c *Channel) Get(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals[name]
}

// Set stores v coerced to the parameter's kind and returns what was stored.
func (c *Channel) Set(name string, v float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(name, v)
}

// atomically runs fn with the channel locked, so a peer's guard evaluation and
// state entry are seen by the other peer as one write.
func (c *Channel) atomically(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}

func (c *Channel) load(name string) float64 {
	return c.vals[name]
}

func (c *Channel) store(name string, v float64) float64 {
	stored := coerce(c.kinds[name], v)
	c.vals[name] = stored
	return stored
}

// Snapshot copies every channel value.
func (c *Channel) Snapshot() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.vals))
	for k, v := range c.vals {
		out[k] = v
	}
	return out
}

func (c *Channel) Names() []string {
	names := make([]string, 0, len(c.kinds))
	for n := range c.kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Bits is the channel cost of the parameters it carries.
func (c *Channel) Bits() int {
	total := 0
	for _, k := range c.kinds {
		total += value.ClassOf(k).Cost()
	}
	return total
}

// coerce models the wire: bools are 0/1, ints a rounded byte.
func coerce(kind value.Kind, v float64) float64 {
	switch kind {
	case value.KindBool:
		if v != 0 {
			return 1
		}
		return 0
	case value.KindInt:
		return math.Min(255, math.Max(0, math.Round(v)))
	default:
		return v
	}
}
