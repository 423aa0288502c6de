package host

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	muxerrors "github.com/provide-io/paramux/pkg/mux/errors"
	"github.com/provide-io/paramux/pkg/mux/schedule"
	"github.com/provide-io/paramux/pkg/mux/value"
)

func compiled(t *testing.T, bools, ints, floats, slots int, changeDetection bool) *schedule.Program {
	t.Helper()
	var cands []value.Candidate
	add := func(prefix string, kind value.Kind, n int) {
		for i := 0; i < n; i++ {
			cands = append(cands, value.Candidate{
				Spec:     value.ValueSpec{Name: fmt.Sprintf("%s%d", prefix, i), Kind: kind, Synced: true},
				Selected: true,
			})
		}
	}
	add("b", value.KindBool, bools)
	add("i", value.KindInt, ints)
	add("f", value.KindFloat, floats)

	plan, err := schedule.Classify(cands, slots)
	require.NoError(t, err)
	prog, err := schedule.Compile(plan, value.DefaultBudget(), schedule.DefaultOptions())
	require.NoError(t, err)
	if changeDetection {
		require.NoError(t, schedule.PlanChangeDetection(prog, schedule.DefaultChangeDetection()))
	}
	return prog
}

func TestGraphParameters(t *testing.T) {
	g := NewGraph("fx")
	require.NoError(t, g.AddParameter(schedule.Parameter{Name: "a", Kind: value.KindBool}))
	assert.Error(t, g.AddParameter(schedule.Parameter{Name: "a", Kind: value.KindInt}))
	assert.True(t, g.HasParameter("a"))
	assert.True(t, g.RemoveParameter("a"))
	assert.False(t, g.RemoveParameter("a"))
	assert.Empty(t, g.Parameters())
}

func TestGraphLayersAndMarkers(t *testing.T) {
	g := NewGraph("fx")
	require.NoError(t, g.AddLayer(Layer{Name: "Base"}))
	assert.Error(t, g.AddLayer(Layer{Name: "Base"}))
	assert.Error(t, g.AddMarker("Missing", "tag"))

	require.NoError(t, g.AddMarker("Base", "tag"))
	require.NoError(t, g.AddMarker("Base", "tag"))
	assert.Equal(t, []string{"Base", "Base"}, g.Markers("tag"))
	assert.Empty(t, g.Markers("other"))

	l, ok := g.Layer("Base")
	require.True(t, ok)
	assert.True(t, l.AnyState[0].Muted)
	assert.True(t, l.AnyState[0].IsExit)

	assert.True(t, g.RemoveLayer("Base"))
	assert.Empty(t, g.LayerNames())
}

func TestLowerAndRaise(t *testing.T) {
	prog := compiled(t, 4, 2, 2, 2, true)
	g := NewGraph("fx")
	require.NoError(t, g.AddParameter(schedule.Parameter{Name: "b0", Kind: value.KindBool}))

	require.NoError(t, Lower(g, prog))
	assert.Equal(t, []string{"PMux_Syncing", "PMux_ChangeDetection"}, g.LayerNames())
	assert.Len(t, g.Markers(prog.Marker.SyncingTag), 1)
	assert.Len(t, g.Markers(prog.Marker.LoweringTag), 1)
	assert.Len(t, g.Parameters(), 1+len(prog.Parameters))

	raised, err := Raise(g, prog.Marker)
	require.NoError(t, err)
	assert.Equal(t, prog.SlotCount, raised.SlotCount)
	assert.Equal(t, prog.IndexerBits, raised.IndexerBits)
	assert.Equal(t, prog.BoolSlots, raised.BoolSlots)
	assert.Equal(t, prog.WideSlots, raised.WideSlots)
	assert.Equal(t, prog.StepDelay, raised.StepDelay)
	assert.Equal(t, prog.Smoothing, raised.Smoothing)
	assert.Equal(t, prog.Filters, raised.Filters)
	assert.Equal(t, prog.Sender, raised.Sender)
	assert.Equal(t, prog.Receiver, raised.Receiver)

	for i, s := range prog.Slots {
		assert.Equal(t, s.IndexBits, raised.Slots[i].IndexBits)
		assert.Len(t, raised.Slots[i].Values(), len(s.Values()))
		for k, v := range s.Values() {
			assert.Equal(t, v.Key(), raised.Slots[i].Values()[k].Key())
		}
	}
}

func TestLowerRejectsConflicts(t *testing.T) {
	prog := compiled(t, 4, 0, 0, 2, false)
	g := NewGraph("fx")
	require.NoError(t, g.AddParameter(schedule.Parameter{Name: "PMux_Indexer 1", Kind: value.KindBool}))

	assert.Error(t, Lower(g, prog))
	assert.Empty(t, g.LayerNames())
	assert.Len(t, g.Parameters(), 1)
}

func TestRaiseNotInstalled(t *testing.T) {
	_, err := Raise(NewGraph("fx"), schedule.DefaultMarker())
	assert.ErrorIs(t, err, muxerrors.ErrNotInstalled)
}

func TestRaiseAmbiguous(t *testing.T) {
	prog := compiled(t, 4, 0, 0, 2, false)
	g := NewGraph("fx")
	require.NoError(t, Lower(g, prog))
	require.NoError(t, g.AddMarker(prog.Marker.SyncingLayer(), prog.Marker.SyncingTag))

	_, err := Raise(g, prog.Marker)
	assert.ErrorIs(t, err, muxerrors.ErrStructuralAmbiguity)
}

func TestCodecRoundTrip(t *testing.T) {
	prog := compiled(t, 6, 3, 3, 3, true)
	g := NewGraph("fx")
	require.NoError(t, Lower(g, prog))

	for _, enc := range []Encoding{EncodingCBOR, EncodingJSON} {
		t.Run(enc.String(), func(t *testing.T) {
			a := Artifact{InstallID: "2f1c1f54-6f6c-4bb4-9d0e-7d1b0f1a2c3d", Graph: g}
			data, err := Encode(a, enc)
			require.NoError(t, err)

			back, got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, enc, got)
			assert.Equal(t, a.InstallID, back.InstallID)
			assert.Equal(t, g.LayerNames(), back.Graph.LayerNames())

			again, err := Encode(back, enc)
			require.NoError(t, err)
			assert.Equal(t, data, again)

			raised, err := Raise(back.Graph, prog.Marker)
			require.NoError(t, err)
			assert.Equal(t, prog.SlotCount, raised.SlotCount)
		})
	}
}

func TestCodecDetectsTampering(t *testing.T) {
	g := NewGraph("fx")
	require.NoError(t, g.AddParameter(schedule.Parameter{Name: "Hat", Kind: value.KindBool}))

	data, err := Encode(Artifact{Graph: g}, EncodingJSON)
	require.NoError(t, err)
	tampered := bytes.Replace(data, []byte(`"Hat"`), []byte(`"Cap"`), 1)
	require.NotEqual(t, data, tampered)
	_, _, err = Decode(tampered)
	assert.ErrorIs(t, err, muxerrors.ErrChecksumMismatch)

	_, _, err = Decode([]byte("{\"format\":\"other\"}"))
	assert.ErrorIs(t, err, muxerrors.ErrInvalidFormat)

	_, _, err = Decode([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, muxerrors.ErrInvalidFormat)
}

func TestChecksum(t *testing.T) {
	sum := Checksum([]byte("paramux"))
	ok, err := VerifyChecksum([]byte("paramux"), sum)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyChecksum([]byte("paramuy"), sum)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyChecksum(nil, "adler32:1234")
	assert.ErrorIs(t, err, muxerrors.ErrInvalidFormat)
}

func TestFileRoundTrip(t *testing.T) {
	prog := compiled(t, 4, 0, 2, 2, false)
	g := NewGraph("fx")
	require.NoError(t, Lower(g, prog))

	dir := t.TempDir()
	for _, name := range []string{"fx.cbor", "fx.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, Artifact{InstallID: "id", Graph: g}))

		a, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "id", a.InstallID)
		assert.Len(t, a.Graph.Markers(prog.Marker.SyncingTag), 1)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "fx.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"format\": \"paramux-graph\"")

	_, err = ReadFile(filepath.Join(dir, "missing.cbor"))
	assert.Error(t, err)
	assert.Equal(t, EncodingJSON, EncodingFor("a/B.JSON"))
}
