// Package value describes the values a peer replicates and what they cost on
// the synchronized channel.
package value

import (
	"fmt"
	"strings"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
)

// Kind is the replicated type of a value.
type Kind uint8

const (
	KindBool Kind = iota + 1
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind accepts the lower- or upper-case kind name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	default:
		return 0, fmt.Errorf("%w: %q", muxerrors.ErrUnknownKind, s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < KindBool || k > KindFloat {
		return nil, fmt.Errorf("%w: %d", muxerrors.ErrUnknownKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// CostClass groups kinds by their channel cost.
type CostClass uint8

const (
	ClassBool CostClass = iota
	ClassWide
)

func (c CostClass) String() string {
	if c == ClassBool {
		return "bool"
	}
	return "wide"
}

// Cost is the per-value bit cost of the class.
func (c CostClass) Cost() int {
	if c == ClassBool {
		return 1
	}
	return 8
}

// ClassOf maps Int and Float to ClassWide and Bool to ClassBool.
func ClassOf(k Kind) CostClass {
	if k == KindBool {
		return ClassBool
	}
	return ClassWide
}

// Key is the identity of a value. Renaming or retyping yields a new key.
type Key struct {
	Name string
	Kind Kind
}

func (k Key) String() string {
	return k.Name + ":" + k.Kind.String()
}

// ValueSpec is one replicated value as supplied by a Source.
type ValueSpec struct {
	Name   string `toml:"name" json:"name" cbor:"name"`
	Kind   Kind   `toml:"kind" json:"kind" cbor:"kind"`
	Synced bool   `toml:"synced" json:"synced" cbor:"synced"`
}

func (v ValueSpec) Key() Key {
	return Key{Name: v.Name, Kind: v.Kind}
}

func (v ValueSpec) Class() CostClass {
	return ClassOf(v.Kind)
}

// Candidate is a value together with the user's selection for optimization.
type Candidate struct {
	Spec     ValueSpec
	Selected bool
}

// Specs returns the specs of the candidates in order.
func Specs(candidates []Candidate) []ValueSpec {
	out := make([]ValueSpec, len(candidates))
	for i, c := range candidates {
		out[i] = c.Spec
	}
	return out
}
