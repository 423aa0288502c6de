package runtime

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/value"
)

const DefaultTick = 10 * time.Millisecond

type SimOptions struct {
	SenderTick   time.Duration
	ReceiverTick time.Duration

	// ReceiverJoin is when the receiver starts; zero joins with the sender.
	ReceiverJoin time.Duration

	Inputs  value.LiveReader
	Outputs value.LiveWriter
	Logger  hclog.Logger
	Metrics *Metrics
}

// Simulator drives both peers over one channel in virtual time. Each peer has
// its own clock; when both are due at the same instant the sender goes first.
type Simulator struct {
	Program  *schedule.Program
	Channel  *Channel
	Sender   *Peer
	Receiver *Peer

	opts         SimOptions
	now          time.Duration
	nextSender   time.Duration
	nextReceiver time.Duration
	deliveries   []Delivery
	events       []Event
}

func NewSimulator(prog *schedule.Program, opts SimOptions) (*Simulator, error) {
	if opts.SenderTick <= 0 {
		opts.SenderTick = DefaultTick
	}
	if opts.ReceiverTick <= 0 {
		opts.ReceiverTick = DefaultTick
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	logger := opts.Logger.Named("sim")

	s := &Simulator{Program: prog, Channel: NewChannel(prog.Parameters), opts: opts}
	onEnter := func(e Event) { s.events = append(s.events, e) }

	var err error
	s.Sender, err = NewPeer(schedule.RoleSender, prog, s.Channel, PeerOptions{
		Logger:  logger,
		Metrics: opts.Metrics,
		Inputs:  opts.Inputs,
		OnEnter: onEnter,
	})
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	s.Receiver, err = NewPeer(schedule.RoleReceiver, prog, s.Channel, PeerOptions{
		Logger:     logger,
		Metrics:    opts.Metrics,
		Outputs:    opts.Outputs,
		OnEnter:    onEnter,
		OnDelivery: func(d Delivery) { s.deliveries = append(s.deliveries, d) },
	})
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}

	if err := s.Sender.Start(0); err != nil {
		return nil, err
	}
	s.nextSender = opts.SenderTick
	s.nextReceiver = opts.ReceiverJoin
	if opts.ReceiverJoin == 0 {
		if err := s.Receiver.Start(0); err != nil {
			return nil, err
		}
		s.nextReceiver = opts.ReceiverTick
	}
	return s, nil
}

func (s *Simulator) Now() time.Duration { return s.now }

// Step advances to the next instant either peer is due and runs it.
func (s *Simulator) Step() error {
	t := min(s.nextSender, s.nextReceiver)
	s.now = t
	if s.nextSender == t {
		if err := s.Sender.Tick(s.opts.SenderTick); err != nil {
			return fmt.Errorf("sender at %s: %w", t, err)
		}
		s.nextSender += s.opts.SenderTick
	}
	if s.nextReceiver == t {
		var err error
		if s.Receiver.Started() {
			err = s.Receiver.Tick(s.opts.ReceiverTick)
		} else {
			err = s.Receiver.Start(t)
		}
		if err != nil {
			return fmt.Errorf("receiver at %s: %w", t, err)
		}
		s.nextReceiver += s.opts.ReceiverTick
	}
	return nil
}

// RunFor runs every step due within the next d.
func (s *Simulator) RunFor(d time.Duration) error {
	end := s.now + d
	for min(s.nextSender, s.nextReceiver) <= end {
		if err := s.Step(); err != nil {
			return err
		}
	}
	s.now = end
	return nil
}

// RunCycle runs one undisturbed pass over every slot.
func (s *Simulator) RunCycle() error {
	return s.RunFor(s.Program.CycleDuration())
}

// RunUntil steps until done reports true or limit elapses.
func (s *Simulator) RunUntil(done func() bool, limit time.Duration) (bool, error) {
	end := s.now + limit
	for !done() {
		if min(s.nextSender, s.nextReceiver) > end {
			s.now = end
			return false, nil
		}
		if err := s.Step(); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Simulator) Deliveries() []Delivery { return s.deliveries }

func (s *Simulator) Events() []Event { return s.events }

// Entered returns when role entered state, in order.
func (s *Simulator) Entered(role schedule.Role, state string) []time.Duration {
	var out []time.Duration
	for _, e := range s.events {
		if e.Role == role && e.State == state {
			out = append(out, e.At)
		}
	}
	return out
}

// DeliveryCounts counts deliveries per value name.
func (s *Simulator) DeliveryCounts() map[string]int {
	counts := make(map[string]int)
	for _, d := range s.deliveries {
		counts[d.Name]++
	}
	return counts
}
