package value

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ManifestValue is one [[value]] entry of a manifest file.
type ManifestValue struct {
	Name   string `toml:"name"`
	Kind   Kind   `toml:"kind"`
	Synced bool   `toml:"synced"`
	// Selected defaults to true when omitted.
	Selected *bool    `toml:"selected,omitempty"`
	Live     *float64 `toml:"live,omitempty"`
}

// Manifest lists the values of an artifact in TOML:
//
//	name = "avatar"
//	strip_prefix = "VF\\d+_"
//
//	[[value]]
//	name = "Toggle"
//	kind = "bool"
//	synced = true
//	live = 1.0
type Manifest struct {
	Name        string          `toml:"name"`
	StripPrefix string          `toml:"strip_prefix,omitempty"`
	Values      []ManifestValue `toml:"value"`
}

func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("manifest %s: unknown keys %v", path, undecoded)
	}
	for i, v := range m.Values {
		if v.Name == "" {
			return nil, fmt.Errorf("manifest %s: value %d has no name", path, i)
		}
		if v.Kind == 0 {
			return nil, fmt.Errorf("manifest %s: value %q has no kind", path, v.Name)
		}
	}
	return &m, nil
}

func SaveManifest(path string, m *Manifest) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest %s: %w", path, err)
	}
	return nil
}

// Static builds an in-memory source holding the manifest's values and live
// values under their manifest names.
func (m *Manifest) Static() (*StaticSource, error) {
	candidates := make([]Candidate, len(m.Values))
	for i, v := range m.Values {
		candidates[i] = Candidate{
			Spec:     ValueSpec{Name: v.Name, Kind: v.Kind, Synced: v.Synced},
			Selected: v.Selected == nil || *v.Selected,
		}
	}
	src, err := NewStaticSource(candidates...)
	if err != nil {
		return nil, err
	}
	for _, v := range m.Values {
		if v.Live != nil {
			src.SetLive(v.Name, *v.Live)
		}
	}
	return src, nil
}

// Source wraps Static in a PrefixedSource when strip_prefix is set.
func (m *Manifest) Source() (Source, *StaticSource, error) {
	static, err := m.Static()
	if err != nil {
		return nil, nil, err
	}
	if m.StripPrefix == "" {
		return static, static, nil
	}
	prefixed, err := NewPrefixedSource(static, m.StripPrefix)
	if err != nil {
		return nil, nil, err
	}
	return prefixed, static, nil
}

// Update copies sync flags from src back into the manifest.
func (m *Manifest) Update(src *StaticSource) {
	for i, v := range m.Values {
		if c, ok := src.Lookup(Key{Name: v.Name, Kind: v.Kind}); ok {
			m.Values[i].Synced = c.Spec.Synced
		}
	}
}
