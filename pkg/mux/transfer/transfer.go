// Package transfer holds the copy instructions a generated program uses to move
// a value between a local parameter and a channel slot.
package transfer

import (
	"fmt"
	"strings"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
)

// Transfer identifiers. Stored in artifacts, so never renumber.
const (
	Copy       uint8 = 0x00 // plain copy
	UnitToByte uint8 = 0x01 // [0,1] -> [0,255]
	WideToByte uint8 = 0x02 // [-1,1] -> [0,255]
)

// Transfer is a linear mapping applied while copying one parameter into another.
type Transfer interface {
	// ID returns the transfer identifier (e.g., UnitToByte)
	ID() uint8

	// Name returns the human-readable name
	Name() string

	// Apply maps a source-domain value into the destination domain
	Apply(v float64) float64

	// Reverse maps a destination-domain value back
	Reverse(v float64) float64

	// CanReverse returns true if Reverse is defined
	CanReverse() bool
}

// BaseTransfer provides common functionality for transfers.
type BaseTransfer struct {
	TID   uint8
	TName string
}

func (t *BaseTransfer) ID() uint8 {
	return t.TID
}

func (t *BaseTransfer) Name() string {
	return t.TName
}

func (t *BaseTransfer) CanReverse() bool {
	return true
}

// Range is a closed numeric interval.
type Range struct {
	Min float64
	Max float64
}

func (r Range) Span() float64 {
	return r.Max - r.Min
}

// Rescale maps From onto To linearly. Values outside From extrapolate; the
// channel clamps what it stores.
type Rescale struct {
	BaseTransfer
	From Range
	To   Range
}

func (r *Rescale) Apply(v float64) float64 {
	return r.To.Min + (v-r.From.Min)*r.To.Span()/r.From.Span()
}

func (r *Rescale) Reverse(v float64) float64 {
	return r.From.Min + (v-r.To.Min)*r.From.Span()/r.To.Span()
}

type identity struct {
	BaseTransfer
}

func (identity) Apply(v float64) float64   { return v }
func (identity) Reverse(v float64) float64 { return v }

// Registry maps transfer IDs to implementations
var Registry = make(map[uint8]Transfer)

// Register registers a transfer implementation
func Register(t Transfer) {
	Registry[t.ID()] = t
}

// Get retrieves a transfer by ID
func Get(id uint8) (Transfer, error) {
	t, ok := Registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", muxerrors.ErrUnknownTransfer, id)
	}
	return t, nil
}

// Lookup retrieves a transfer by its case-insensitive name.
func Lookup(name string) (Transfer, error) {
	for _, t := range Registry {
		if strings.EqualFold(t.Name(), name) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", muxerrors.ErrUnknownTransfer, name)
}

// GetName returns the name of a transfer by ID
func GetName(id uint8) string {
	if t, ok := Registry[id]; ok {
		return t.Name()
	}
	return fmt.Sprintf("UNKNOWN_%02x", id)
}

// Apply runs the transfer id forward, or backward when reverse is set.
func Apply(id uint8, v float64, reverse bool) (float64, error) {
	t, err := Get(id)
	if err != nil {
		return 0, err
	}
	if !reverse {
		return t.Apply(v), nil
	}
	if !t.CanReverse() {
		return 0, fmt.Errorf("transfer %s cannot be reversed", t.Name())
	}
	return t.Reverse(v), nil
}

func init() {
	Register(&identity{BaseTransfer{TID: Copy, TName: "copy"}})
	Register(&Rescale{
		BaseTransfer: BaseTransfer{TID: UnitToByte, TName: "unit-to-byte"},
		From:         Range{Min: 0, Max: 1},
		To:           Range{Min: 0, Max: 255},
	})
	Register(&Rescale{
		BaseTransfer: BaseTransfer{TID: WideToByte, TName: "wide-to-byte"},
		From:         Range{Min: -1, Max: 1},
		To:           Range{Min: 0, Max: 255},
	})
}
