package value

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
)

// Source supplies candidate values and takes back their sync flags after
// install and uninstall. Adapters for third-party value providers implement it;
// the compiler never looks at concrete types.
type Source interface {
	Candidates() []Candidate
	SetSynced(key Key, synced bool) error
}

// LiveReader is the optional capability of reporting a value's current live value.
type LiveReader interface {
	Live(name string) (float64, bool)
}

// LiveWriter is the optional capability of accepting a replicated value.
type LiveWriter interface {
	SetLive(name string, v float64)
}

// StaticSource is an in-memory Source. It is safe for concurrent use.
type StaticSource struct {
	mu     sync.RWMutex
	values []Candidate
	live   map[string]float64
}

// NewStaticSource returns a source over candidates. Duplicate keys are rejected.
func NewStaticSource(candidates ...Candidate) (*StaticSource, error) {
	seen := make(map[Key]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.Spec.Key()]; dup {
			return nil, fmt.Errorf("%w: %s", muxerrors.ErrDuplicateValue, c.Spec.Key())
		}
		seen[c.Spec.Key()] = struct{}{}
	}
	values := make([]Candidate, len(candidates))
	copy(values, candidates)
	return &StaticSource{values: values, live: make(map[string]float64)}, nil
}

func (s *StaticSource) Candidates() []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Candidate, len(s.values))
	copy(out, s.values)
	return out
}

func (s *StaticSource) SetSynced(key Key, synced bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.values {
		if s.values[i].Spec.Key() == key {
			s.values[i].Spec.Synced = synced
			return nil
		}
	}
	return fmt.Errorf("%w: %s", muxerrors.ErrUnknownParameter, key)
}

// Lookup returns the candidate with key.
func (s *StaticSource) Lookup(key Key) (Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.values {
		if c.Spec.Key() == key {
			return c, true
		}
	}
	return Candidate{}, false
}

// Select marks the named keys as selected and everything else as not.
func (s *StaticSource) Select(keys ...Key) {
	want := make(map[Key]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.values {
		s.values[i].Selected = want[s.values[i].Spec.Key()]
	}
}

func (s *StaticSource) Live(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.live[name]
	return v, ok
}

func (s *StaticSource) SetLive(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[name] = v
}

// LiveNames returns the names with a recorded live value, sorted.
func (s *StaticSource) LiveNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.live))
	for n := range s.live {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StableNamer is the optional capability of mapping a provider's decorated
// name to one that survives rebuilds. Saved selections match on stable names.
type StableNamer interface {
	StableName(name string) string
}

// StableKey returns k under its stable name when src decorates names.
func StableKey(src Source, k Key) Key {
	if sn, ok := src.(StableNamer); ok {
		k.Name = sn.StableName(k.Name)
	}
	return k
}

// PrefixedSource adapts a source whose provider decorates value names with a
// generated prefix (for example "VF12_Toggle"). Candidates keep the decorated
// name the host knows them by; StableName strips the prefix for matching saved
// selections across rebuilds.
type PrefixedSource struct {
	inner   Source
	pattern *regexp.Regexp
}

// NewPrefixedSource strips matches of pattern (anchored at the start) from
// names. Two values whose stripped keys collide are rejected.
func NewPrefixedSource(inner Source, pattern string) (*PrefixedSource, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("compiling prefix pattern %q: %w", pattern, err)
	}
	p := &PrefixedSource{inner: inner, pattern: re}
	seen := make(map[Key]string)
	for _, c := range inner.Candidates() {
		k := StableKey(p, c.Spec.Key())
		if other, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: %s and %s both strip to %s", muxerrors.ErrDuplicateValue, other, c.Spec.Name, k)
		}
		seen[k] = c.Spec.Name
	}
	return p, nil
}

func (p *PrefixedSource) StableName(name string) string {
	return p.pattern.ReplaceAllString(name, "")
}

func (p *PrefixedSource) Candidates() []Candidate {
	return p.inner.Candidates()
}

func (p *PrefixedSource) SetSynced(key Key, synced bool) error {
	return p.inner.SetSynced(key, synced)
}

func (p *PrefixedSource) Live(name string) (float64, bool) {
	lr, ok := p.inner.(LiveReader)
	if !ok {
		return 0, false
	}
	return lr.Live(name)
}
