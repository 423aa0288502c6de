// Package install puts a compiled multiplexer into a host and takes it out
// again.
package install

import (
	"github.com/provide-io/paramux/pkg/mux/host"
	"github.com/provide-io/paramux/pkg/mux/schedule"
)

// MarkerKind selects which of the two install markers to count.
type MarkerKind uint8

const (
	MarkerSyncing MarkerKind = iota
	MarkerLowering
)

func (k MarkerKind) String() string {
	if k == MarkerLowering {
		return "lowering"
	}
	return "syncing"
}

func tagFor(m schedule.Marker, kind MarkerKind) string {
	if kind == MarkerLowering {
		return m.LoweringTag
	}
	return m.SyncingTag
}

// CountMarkers counts marker nodes of kind in h.
func CountMarkers(h host.Host, m schedule.Marker, kind MarkerKind) int {
	return len(h.Markers(tagFor(m, kind)))
}

// IsInstalled is true when exactly one syncing marker is present and the
// lowering marker count is one with change detection filters and zero without.
func IsInstalled(h host.Host, m schedule.Marker) bool {
	if CountMarkers(h, m, MarkerSyncing) != 1 {
		return false
	}
	want := 0
	if hasFilters(h, m) {
		want = 1
	}
	return CountMarkers(h, m, MarkerLowering) == want
}

// hasFilters reports whether the change detection layer carries its tree.
func hasFilters(h host.Host, m schedule.Marker) bool {
	l, ok := h.Layer(m.ChangeTreeLayer())
	return ok && l.Tree != nil && len(l.Tree.Filters) > 0
}

// AnyMarkers reports whether any trace of an install is present.
func AnyMarkers(h host.Host, m schedule.Marker) bool {
	return CountMarkers(h, m, MarkerSyncing) > 0 || CountMarkers(h, m, MarkerLowering) > 0
}

// generatedChannelParameters lists synced parameters carrying the marker prefix.
func generatedChannelParameters(h host.Host, m schedule.Marker) []string {
	var out []string
	for _, p := range h.Parameters() {
		if p.Synced && m.Generated(p.Name) {
			out = append(out, p.Name)
		}
	}
	return out
}
