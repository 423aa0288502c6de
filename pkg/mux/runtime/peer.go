package runtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/transfer"
	"github.com/provide-io/paramux/pkg/mux/value"
)

// Event records a state entry.
type Event struct {
	Role  schedule.Role
	State string
	Slot  int
	At    time.Duration
}

// Delivery records a value a receiver copied out of the channel.
type Delivery struct {
	Slot  int
	Name  string
	Value float64
	At    time.Duration
}

type PeerOptions struct {
	Logger  hclog.Logger
	Metrics *Metrics

	// Inputs feeds the sender's values before every tick.
	Inputs value.LiveReader
	// Outputs receives every value a receiver delivers.
	Outputs value.LiveWriter

	OnEnter    func(Event)
	OnDelivery func(Delivery)
}

// Peer interprets one role's machine. It touches only its own parameters and
// the channel; a Peer must be driven from one goroutine.
type Peer struct {
	role    schedule.Role
	def     schedule.MachineDef
	ch      *Channel
	local   map[string]float64
	states  map[string]schedule.State
	out     map[string][]schedule.Transition
	filters []schedule.Filter
	smooth  string
	inputs  []string
	opts    PeerOptions
	logger  hclog.Logger

	started bool
	current string
	elapsed time.Duration
	now     time.Duration
}

// NewPeer validates role's machine in prog and binds it to ch.
func NewPeer(role schedule.Role, prog *schedule.Program, ch *Channel, opts PeerOptions) (*Peer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	def := *prog.Machine(role)
	p := &Peer{
		role:   role,
		def:    def,
		ch:     ch,
		local:  make(map[string]float64),
		states: make(map[string]schedule.State, len(def.States)),
		out:    make(map[string][]schedule.Transition),
		opts:   opts,
		logger: logger.Named(role.String()),
	}

	for _, s := range def.States {
		p.states[s.Name] = s
	}
	if _, ok := p.states[def.Entry]; !ok {
		return nil, fmt.Errorf("%w: entry %q", muxerrors.ErrUnknownState, def.Entry)
	}
	for _, t := range def.Transitions {
		if _, ok := p.states[t.From]; !ok {
			return nil, fmt.Errorf("%w: %q", muxerrors.ErrUnknownState, t.From)
		}
		if _, ok := p.states[t.To]; !ok {
			return nil, fmt.Errorf("%w: %q", muxerrors.ErrUnknownState, t.To)
		}
		p.out[t.From] = append(p.out[t.From], t)
	}

	seen := make(map[string]bool)
	for _, s := range def.States {
		for _, d := range s.Drivers {
			if d.Op != schedule.DriverCopy {
				continue
			}
			if _, err := transfer.Get(d.Transfer); err != nil {
				return nil, fmt.Errorf("state %s: %w", s.Name, err)
			}
			if role == schedule.RoleSender && !ch.Has(d.Source) && !seen[d.Source] {
				seen[d.Source] = true
				p.inputs = append(p.inputs, d.Source)
			}
		}
	}

	for _, prm := range prog.Parameters {
		if !prm.Synced {
			p.local[prm.Name] = prm.Default
		}
	}
	if role == schedule.RoleSender {
		p.filters = prog.Filters
		p.smooth = prog.Smoothing
	}
	return p, nil
}

func (p *Peer) Role() schedule.Role { return p.role }

// State is the current state name; empty before Start.
func (p *Peer) State() string { return p.current }

func (p *Peer) Now() time.Duration { return p.now }

func (p *Peer) Started() bool { return p.started }

// Get reads a parameter, from the channel when it is synced.
func (p *Peer) Get(name string) float64 {
	if p.ch.Has(name) {
		return p.ch.Get(name)
	}
	return p.local[name]
}

// Set writes a parameter and returns the stored value.
func (p *Peer) Set(name string, v float64) float64 {
	if p.ch.Has(name) {
		return p.ch.Set(name, v)
	}
	p.local[name] = v
	return v
}

func (p *Peer) read(name string) float64 {
	if p.ch.Has(name) {
		return p.ch.load(name)
	}
	return p.local[name]
}

func (p *Peer) write(name string, v float64) float64 {
	if p.ch.Has(name) {
		return p.ch.store(name, v)
	}
	p.local[name] = v
	return v
}

// Start enters the entry state at virtual time at and takes any transition
// that already holds, the way a controller leaves its entry node immediately.
func (p *Peer) Start(at time.Duration) error {
	p.now = at
	p.started = true
	p.logger.Debug("▶️ Peer started", "entry", p.def.Entry, "at", at)
	if p.role == schedule.RoleSender {
		p.pullInputs()
	}
	return p.ch.atomically(func() error {
		if err := p.enter(p.def.Entry); err != nil {
			return err
		}
		return p.fire()
	})
}

// Tick advances the peer by dt, refreshes filters and fires at most one
// transition.
func (p *Peer) Tick(dt time.Duration) error {
	if !p.started {
		return fmt.Errorf("%s peer ticked before start", p.role)
	}
	p.now += dt
	p.elapsed += dt

	if p.role == schedule.RoleSender {
		p.pullInputs()
		p.refreshFilters()
	}

	return p.ch.atomically(p.fire)
}

// fire takes the first transition out of the current state that is due and
// whose conditions hold. The channel lock must be held.
func (p *Peer) fire() error {
	for _, t := range p.out[p.current] {
		if t.Timed && p.elapsed < t.After {
			continue
		}
		if !p.holds(t.Conditions) {
			continue
		}
		return p.enter(t.To)
	}
	return nil
}

func (p *Peer) holds(conds []schedule.Condition) bool {
	for _, c := range conds {
		if !c.Holds(p.read(c.Param)) {
			return false
		}
	}
	return true
}

func (p *Peer) pullInputs() {
	if p.opts.Inputs == nil {
		return
	}
	for _, name := range p.inputs {
		if v, ok := p.opts.Inputs.Live(name); ok {
			p.local[name] = v
		}
	}
}

// refreshFilters runs one smoothing step: smoothed moves toward the input by
// the shared smoothing amount and the differential is input minus smoothed.
func (p *Peer) refreshFilters() {
	if p.smooth == "" {
		return
	}
	a := math.Min(1, math.Max(0, p.Get(p.smooth)))
	for _, f := range p.filters {
		in := p.Get(f.Source)
		if f.Copy != "" {
			in *= f.Scale
			p.Set(f.Copy, in)
		}
		s := p.Get(f.Smoothed)
		s += a * (in - s)
		s = math.Min(f.Max, math.Max(f.Min, s))
		p.Set(f.Smoothed, s)
		p.Set(f.Differential, in-s)
	}
}

func (p *Peer) enter(name string) error {
	st, ok := p.states[name]
	if !ok {
		return fmt.Errorf("%w: %q", muxerrors.ErrUnknownState, name)
	}
	for _, d := range st.Drivers {
		stored, err := p.apply(d)
		if err != nil {
			return fmt.Errorf("state %s: %w", name, err)
		}
		if p.role == schedule.RoleReceiver && d.Op == schedule.DriverCopy {
			p.deliver(st.Slot, d.Dest, stored)
		}
	}

	p.logger.Trace("🔀 Entered state", "from", p.current, "to", name, "at", p.now)
	p.current = name
	p.elapsed = 0

	if st.Slot != schedule.NoSlot && p.opts.Metrics != nil {
		slot := strconv.Itoa(st.Slot)
		if strings.HasPrefix(name, schedule.StateResettle) {
			p.opts.Metrics.Resettles.WithLabelValues(slot).Inc()
		} else {
			p.opts.Metrics.SlotEntries.WithLabelValues(p.role.String(), slot).Inc()
		}
	}
	if p.opts.OnEnter != nil {
		p.opts.OnEnter(Event{Role: p.role, State: name, Slot: st.Slot, At: p.now})
	}
	return nil
}

func (p *Peer) apply(d schedule.Driver) (float64, error) {
	switch d.Op {
	case schedule.DriverSet:
		return p.write(d.Dest, d.Value), nil
	case schedule.DriverCopy:
		v, err := transfer.Apply(d.Transfer, p.read(d.Source), d.Reverse)
		if err != nil {
			return 0, err
		}
		return p.write(d.Dest, v), nil
	default:
		return 0, fmt.Errorf("unknown driver op %d", d.Op)
	}
}

func (p *Peer) deliver(slot int, name string, v float64) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.Deliveries.WithLabelValues(strconv.Itoa(slot)).Inc()
	}
	if p.opts.Outputs != nil {
		p.opts.Outputs.SetLive(name, v)
	}
	if p.opts.OnDelivery != nil {
		p.opts.OnDelivery(Delivery{Slot: slot, Name: name, Value: v, At: p.now})
	}
}
