package schedule

import "strings"

// Marker identifies a generated install. It is threaded from compile output
// into uninstall input; hosts realize each tag as an inert node on the layer it
// marks and count those nodes for presence detection.
type Marker struct {
	Prefix      string `json:"prefix" cbor:"prefix"`
	SyncingTag  string `json:"syncing_tag" cbor:"syncing_tag"`
	LoweringTag string `json:"lowering_tag" cbor:"lowering_tag"`
}

func DefaultMarker() Marker {
	return Marker{
		Prefix:      DefaultPrefix,
		SyncingTag:  DefaultSyncingTag,
		LoweringTag: DefaultLoweringTag,
	}
}

// Generated reports whether name belongs to this install.
func (m Marker) Generated(name string) bool {
	return m.Prefix != "" && strings.HasPrefix(name, m.Prefix)
}

// SyncingLayer and ChangeTreeLayer name the layers an install adds.
func (m Marker) SyncingLayer() string    { return m.Prefix + SyncingLayer }
func (m Marker) ChangeTreeLayer() string { return m.Prefix + ChangeTreeLayer }

// Valid reports whether the marker can identify an install.
func (m Marker) Valid() bool {
	return m.Prefix != "" && m.SyncingTag != "" && m.LoweringTag != "" && m.SyncingTag != m.LoweringTag
}
